// Package dispatch decides how each outgoing request is satisfied: straight
// from the network, from the request cache, or by queueing for later replay
// when a write cannot reach the server. It is the single entry point the
// rest of the application uses to talk to the backend.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/riverwalks/rw/internal/apiclient"
	"github.com/riverwalks/rw/internal/cache"
	"github.com/riverwalks/rw/internal/queue"

	"github.com/google/uuid"
)

// offlinePage is the last-resort document when neither the requested
// document nor the app shell was ever cached.
const offlinePage = `<!doctype html>
<html>
<head><title>Offline</title></head>
<body data-rw-offline="1">
<h1>You are offline</h1>
<p>This page has not been saved for offline use yet. Your measurements are
safe and will sync when you are back online.</p>
</body>
</html>`

// offlineMarker is injected into a substituted shell document so the
// client-side router renders the requested view instead of a 404.
const offlineMarker = `<script>window.__RW_OFFLINE__=true;</script>`

// ConnectivityReporter receives the observed outcome of real network
// attempts. Satisfied by *netmon.Monitor.
type ConnectivityReporter interface {
	Report(online bool)
}

// Dispatcher routes requests per class strategy and keeps the cache and
// queue coherent.
type Dispatcher struct {
	cache    *cache.Cache
	queue    *queue.Queue
	client   *apiclient.Client
	reporter ConnectivityReporter
	shellURL string // canonical app-shell document, cached at install time
}

// New creates a dispatcher. shellURL names the app-shell document used for
// document substitution when an uncached path is requested offline; it may
// be empty if no shell is available. reporter may be nil.
func New(c *cache.Cache, q *queue.Queue, client *apiclient.Client, reporter ConnectivityReporter, shellURL string) *Dispatcher {
	return &Dispatcher{
		cache:    c,
		queue:    q,
		client:   client,
		reporter: reporter,
		shellURL: shellURL,
	}
}

// PerformRequest satisfies the request per its class strategy. The error
// return carries server rejections and terminal offline misses (as
// *OfflineError for api-reads); every recoverable path returns a Result.
func (d *Dispatcher) PerformRequest(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", req.URL, err)
	}

	switch Classify(req.Method, u) {
	case ClassAPIWrite:
		return d.doWrite(ctx, req)
	case ClassStaticAsset:
		return d.doStatic(ctx, req, u)
	case ClassAPIRead:
		return d.doAPIRead(ctx, req)
	default:
		return d.doDocument(ctx, req)
	}
}

// fetch performs one network attempt and feeds the connectivity monitor:
// any response, even an error status, proves the server is reachable.
func (d *Dispatcher) fetch(ctx context.Context, method, rawURL string, body []byte, idempotencyKey string) (*apiclient.Response, error) {
	resp, err := d.client.Do(ctx, method, rawURL, body, idempotencyKey)
	if d.reporter != nil {
		d.reporter.Report(err == nil)
	}
	return resp, err
}

// doStatic: cache-first. A miss fetches and stores; a fetch failure with no
// cache entry propagates, except for the reference diagram which degrades
// to a generated placeholder so the form never shows a broken image.
func (d *Dispatcher) doStatic(ctx context.Context, req Request, u *url.URL) (*Result, error) {
	if e, err := d.cache.Get(req.Method, req.URL); err == nil && e != nil {
		return &Result{Status: e.Status, ContentType: e.ContentType, Body: e.Body, Source: SourceCache}, nil
	}

	resp, err := d.fetch(ctx, req.Method, req.URL, nil, "")
	if err != nil {
		if strings.EqualFold(u.Path, PlaceholderAssetPath) {
			return &Result{
				Status:          http.StatusOK,
				ContentType:     "image/png",
				Body:            placeholderImage(),
				Source:          SourcePlaceholder,
				OfflineFallback: true,
			}, nil
		}
		return nil, fmt.Errorf("fetch static asset: %w", err)
	}
	if err := apiclient.ResponseError(resp); err != nil {
		return nil, err
	}

	if err := d.cache.Put(req.Method, req.URL, cache.PartitionStatic, resp.Status, resp.ContentType, resp.Body); err != nil {
		slog.Warn("cache static asset", "url", req.URL, "err", err)
	}
	return &Result{Status: resp.Status, ContentType: resp.ContentType, Body: resp.Body, Source: SourceNetwork}, nil
}

// doDocument: network-first with cache fallback, then shell substitution,
// then the dedicated offline page. A document request never errors on a
// connectivity failure; something renderable always comes back.
func (d *Dispatcher) doDocument(ctx context.Context, req Request) (*Result, error) {
	resp, err := d.fetch(ctx, req.Method, req.URL, nil, "")
	if err == nil {
		if rerr := apiclient.ResponseError(resp); rerr != nil {
			return nil, rerr
		}
		if cerr := d.cache.Put(req.Method, req.URL, cache.PartitionDocuments, resp.Status, resp.ContentType, resp.Body); cerr != nil {
			slog.Warn("cache document", "url", req.URL, "err", cerr)
		}
		return &Result{Status: resp.Status, ContentType: resp.ContentType, Body: resp.Body, Source: SourceNetwork}, nil
	}

	if e, cerr := d.cache.Get(req.Method, req.URL); cerr == nil && e != nil {
		return &Result{Status: e.Status, ContentType: e.ContentType, Body: e.Body, Source: SourceCache}, nil
	}

	if d.shellURL != "" {
		if e, cerr := d.cache.Get(http.MethodGet, d.shellURL); cerr == nil && e != nil {
			return &Result{
				Status:          e.Status,
				ContentType:     e.ContentType,
				Body:            injectOfflineMarker(e.Body),
				Source:          SourceShell,
				OfflineFallback: true,
			}, nil
		}
	}

	slog.Debug("serving offline page", "url", req.URL)
	return &Result{
		Status:          http.StatusOK,
		ContentType:     "text/html; charset=utf-8",
		Body:            []byte(offlinePage),
		Source:          SourceOfflinePage,
		OfflineFallback: true,
	}, nil
}

// doAPIRead: network-first with cache fallback. Unlike documents there is no
// shell substitute; a miss while offline is a terminal *OfflineError for
// this call.
func (d *Dispatcher) doAPIRead(ctx context.Context, req Request) (*Result, error) {
	resp, err := d.fetch(ctx, req.Method, req.URL, nil, "")
	if err == nil {
		if rerr := apiclient.ResponseError(resp); rerr != nil {
			return nil, rerr
		}
		if cerr := d.cache.Put(req.Method, req.URL, cache.PartitionAPI, resp.Status, resp.ContentType, resp.Body); cerr != nil {
			slog.Warn("cache api read", "url", req.URL, "err", cerr)
		}
		return &Result{Status: resp.Status, ContentType: resp.ContentType, Body: resp.Body, Source: SourceNetwork}, nil
	}

	if e, cerr := d.cache.Get(req.Method, req.URL); cerr == nil && e != nil {
		return &Result{Status: e.Status, ContentType: e.ContentType, Body: e.Body, Source: SourceCache}, nil
	}

	return nil, &OfflineError{Method: req.Method, URL: req.URL, Cause: err}
}

// doWrite: network-only. Connectivity failures enqueue the operation and
// return a synthetic accepted result so the caller can apply its optimistic
// update; server rejections surface immediately and are never queued.
func (d *Dispatcher) doWrite(ctx context.Context, req Request) (*Result, error) {
	idempotencyKey := ""
	if req.Kind == queue.KindCreate {
		// One key for the live attempt and any replay, so the server can
		// deduplicate if the response was lost on the way back.
		idempotencyKey = uuid.NewString()
	}

	resp, err := d.fetch(ctx, req.Method, req.URL, req.Body, idempotencyKey)
	if err == nil {
		if rerr := apiclient.ResponseError(resp); rerr != nil {
			return nil, rerr
		}
		if _, cerr := d.cache.InvalidateURL(req.URL); cerr != nil {
			slog.Warn("invalidate after write", "url", req.URL, "err", cerr)
		}
		return &Result{Status: resp.Status, ContentType: resp.ContentType, Body: resp.Body, Source: SourceNetwork}, nil
	}

	op, qerr := d.queue.Enqueue(queue.Operation{
		EntityType:     req.EntityType,
		Kind:           req.Kind,
		Method:         req.Method,
		URL:            req.URL,
		Payload:        req.Body,
		LocalEntityID:  req.LocalEntityID,
		DependsOn:      req.DependsOn,
		IdempotencyKey: idempotencyKey,
	})
	if qerr != nil {
		return nil, fmt.Errorf("queue write after failure (%v): %w", err, qerr)
	}
	if op != nil {
		slog.Info("write queued for sync", "entity", req.EntityType, "kind", req.Kind, "op", op.ID)
	}
	// No response was obtained, so the body source is the queue itself.
	return &Result{Status: http.StatusAccepted, Source: SourceQueued, Queued: op}, nil
}

// injectOfflineMarker adds the offline-mode script to an HTML shell. The
// marker goes before </head> when one exists, otherwise it is appended.
func injectOfflineMarker(body []byte) []byte {
	s := string(body)
	if i := strings.Index(strings.ToLower(s), "</head>"); i >= 0 {
		return []byte(s[:i] + offlineMarker + s[i:])
	}
	return append(append([]byte{}, body...), []byte(offlineMarker)...)
}
