package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/riverwalks/rw/internal/apiclient"
	"github.com/riverwalks/rw/internal/dispatch"
	"github.com/riverwalks/rw/internal/offline"
	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/queue"
)

// sendWrite routes a mutation through the dispatcher and reports failures in
// the standard way. A nil error means the write either reached the server or
// was accepted into the pending queue.
func sendWrite(ctx context.Context, layer *offline.Layer, req dispatch.Request) (*dispatch.Result, error) {
	res, err := layer.PerformRequest(ctx, req)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			output.Error("server rejected the change (%d): %s", apiErr.StatusCode, apiErr.Message)
		} else {
			output.Error("%v", err)
		}
		return nil, err
	}
	return res, nil
}

// readList fetches a collection endpoint through the dispatcher and decodes
// the JSON body into out. Returns dispatch.OfflineError via errors.As when
// offline with nothing cached; callers fall back to the local mirror.
func readList(ctx context.Context, layer *offline.Layer, url string, out any) (fromCache bool, err error) {
	res, err := layer.PerformRequest(ctx, dispatch.Request{Method: "GET", URL: url})
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return false, err
	}
	return res.Source == dispatch.SourceCache, nil
}

// submitWrite routes an update or delete. Targets that still carry a
// temporary id have never existed on the server, so the live attempt is
// skipped and the operation queues behind the pending create.
func submitWrite(ctx context.Context, layer *offline.Layer, req dispatch.Request) (queued bool, err error) {
	if strings.HasPrefix(req.LocalEntityID, "tmp-") && req.Kind != queue.KindCreate {
		_, err := layer.Queue.Enqueue(queue.Operation{
			EntityType:    req.EntityType,
			Kind:          req.Kind,
			Method:        req.Method,
			URL:           req.URL,
			Payload:       req.Body,
			LocalEntityID: req.LocalEntityID,
			DependsOn:     req.DependsOn,
		})
		if err != nil {
			output.Error("%v", err)
			return false, err
		}
		return true, nil
	}

	res, err := sendWrite(ctx, layer, req)
	if err != nil {
		return false, err
	}
	return res.Queued != nil, nil
}

// isLocalOnly reports whether an id is a temporary one the server has not
// assigned yet.
func isLocalOnly(id string) bool {
	return strings.HasPrefix(id, "tmp-")
}

// pendingCreateOp resolves the queued create operation for a temporary
// entity id so children queued behind it are held back until the parent has
// a real server id. Empty when the parent already synced.
func pendingCreateOp(layer *offline.Layer, localID string) string {
	if !strings.HasPrefix(localID, "tmp-") {
		return ""
	}
	ops, err := layer.Queue.List(queue.Filter{Status: queue.StatusPending})
	if err != nil {
		return ""
	}
	for _, op := range ops {
		if op.Kind == queue.KindCreate && op.LocalEntityID == localID {
			return op.ID
		}
	}
	return ""
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
