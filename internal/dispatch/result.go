package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/queue"
)

// Request is a descriptor for one outgoing request. Write requests carry the
// entity metadata the queue needs if the send has to be deferred.
type Request struct {
	Method string
	URL    string
	Body   []byte

	// Write metadata, ignored for reads.
	EntityType    models.EntityType
	Kind          queue.Kind
	LocalEntityID string
	DependsOn     string
}

// Source says where a result body came from.
type Source int

const (
	SourceNetwork Source = iota
	SourceCache
	SourceShell
	SourcePlaceholder
	SourceOfflinePage
	SourceQueued
)

func (s Source) String() string {
	switch s {
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	case SourceShell:
		return "shell"
	case SourcePlaceholder:
		return "placeholder"
	case SourceOfflinePage:
		return "offline-page"
	case SourceQueued:
		return "queued"
	}
	return "unknown"
}

// Result is the typed outcome of PerformRequest. Exactly one of the three
// shapes applies: a served body (Queued == nil), a queued write acceptance
// (Queued != nil, Status 202), or a server rejection / *OfflineError carried
// on the error return instead.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
	Source      Source

	// OfflineFallback marks a body served in degraded offline mode (shell
	// substitution or the dedicated offline page) so the consumer can
	// render its offline state instead of trusting the document.
	OfflineFallback bool

	// Queued is set when a write was accepted into the pending queue. It is
	// nil for a queued delete that cancelled an unsent create (there is
	// nothing left to send).
	Queued *queue.Operation
}

// CreatedID extracts the server-assigned id from a successful create
// response body, or the queued temporary id for an accepted-offline create.
func (r *Result) CreatedID() string {
	if r.Queued != nil {
		return r.Queued.LocalEntityID
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return ""
	}
	return body.ID
}

// OfflineError is returned for an api-read that failed with no cached copy:
// the caller can distinguish "no data available offline" from a server
// error and render an explicit offline/empty state.
type OfflineError struct {
	Method string
	URL    string
	Cause  error
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("offline, no cached data for %s %s: %v", e.Method, e.URL, e.Cause)
}

func (e *OfflineError) Unwrap() error { return e.Cause }
