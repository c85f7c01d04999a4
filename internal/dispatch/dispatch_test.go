package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/riverwalks/rw/internal/apiclient"
	"github.com/riverwalks/rw/internal/cache"
	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/queue"
)

// testRig wires a dispatcher over in-memory stores and a live test server
// whose handler can be swapped and whose request count is observable.
type testRig struct {
	dispatcher *Dispatcher
	cache      *cache.Cache
	queue      *queue.Queue
	server     *httptest.Server
	requests   atomic.Int64
	handler    atomic.Value // http.HandlerFunc
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		cache: cache.New(cache.NewMemStore()),
		queue: queue.New(queue.NewMemStore()),
	}
	rig.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	rig.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rig.requests.Add(1)
		rig.handler.Load().(http.HandlerFunc)(w, r)
	}))
	t.Cleanup(rig.server.Close)

	client := apiclient.New(rig.server.URL, "", "test-device")
	rig.dispatcher = New(rig.cache, rig.queue, client, nil, rig.server.URL+"/")
	return rig
}

func (rig *testRig) respond(status int, contentType, body string) {
	rig.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

// goOffline makes every request fail at the transport level.
func (rig *testRig) goOffline() {
	rig.server.CloseClientConnections()
	rig.server.Close()
}

func TestAPIRead_CachedThenServedOffline(t *testing.T) {
	rig := newRig(t)
	rig.respond(200, "application/json", `[{"id":"s1"}]`)

	readURL := rig.server.URL + "/v1/sites?walk=9"

	res, err := rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: readURL})
	if err != nil {
		t.Fatalf("online read: %v", err)
	}
	if res.Source != SourceNetwork {
		t.Errorf("source: got %s, want network", res.Source)
	}

	rig.goOffline()

	res, err = rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: readURL})
	if err != nil {
		t.Fatalf("offline read: %v", err)
	}
	if res.Source != SourceCache {
		t.Errorf("source: got %s, want cache", res.Source)
	}
	if string(res.Body) != `[{"id":"s1"}]` {
		t.Errorf("body: got %s", res.Body)
	}
	if n := rig.requests.Load(); n != 1 {
		t.Errorf("network calls: got %d, want 1", n)
	}
}

func TestAPIRead_OfflineMissIsTypedError(t *testing.T) {
	rig := newRig(t)
	rig.goOffline()

	_, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "GET", URL: rig.server.URL + "/v1/sites?walk=9",
	})
	var offline *OfflineError
	if !errors.As(err, &offline) {
		t.Fatalf("want *OfflineError, got %T: %v", err, err)
	}
	if offline.URL == "" || offline.Cause == nil {
		t.Errorf("offline error missing context: %+v", offline)
	}
}

func TestAPIRead_ServerErrorIsNotOffline(t *testing.T) {
	rig := newRig(t)
	rig.respond(500, "application/json", `{"code":"internal","message":"boom"}`)

	_, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "GET", URL: rig.server.URL + "/v1/sites?walk=9",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var offline *OfflineError
	if errors.As(err, &offline) {
		t.Error("server error must not classify as offline")
	}
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("want *APIError, got %T: %v", err, err)
	}
}

func TestDocument_CacheFallbackAndShell(t *testing.T) {
	rig := newRig(t)
	shell := `<html><head><title>rw</title></head><body>shell</body></html>`
	rig.respond(200, "text/html", shell)

	// Prime the shell (server root) and one document.
	if _, err := rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: rig.server.URL + "/"}); err != nil {
		t.Fatalf("prime shell: %v", err)
	}
	docURL := rig.server.URL + "/walks/9"
	if _, err := rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: docURL}); err != nil {
		t.Fatalf("prime doc: %v", err)
	}

	rig.goOffline()

	// Exact document cached: serve it as-is.
	res, err := rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: docURL})
	if err != nil {
		t.Fatalf("offline doc: %v", err)
	}
	if res.Source != SourceCache || res.OfflineFallback {
		t.Errorf("cached doc: source=%s fallback=%v", res.Source, res.OfflineFallback)
	}
	if string(res.Body) != shell {
		t.Errorf("cached doc body: got %s", res.Body)
	}

	// Never-cached document: substitute the shell with the offline marker.
	res, err = rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: rig.server.URL + "/walks/10"})
	if err != nil {
		t.Fatalf("shell substitution: %v", err)
	}
	if res.Source != SourceShell || !res.OfflineFallback {
		t.Errorf("substituted doc: source=%s fallback=%v", res.Source, res.OfflineFallback)
	}
	if !strings.Contains(string(res.Body), "__RW_OFFLINE__") {
		t.Error("offline marker not injected")
	}
	if !strings.Contains(string(res.Body), "<title>rw</title>") {
		t.Error("shell content missing")
	}
}

func TestDocument_OfflinePageWhenNothingCached(t *testing.T) {
	rig := newRig(t)
	rig.goOffline()

	res, err := rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: rig.server.URL + "/walks/9"})
	if err != nil {
		t.Fatalf("offline page: %v", err)
	}
	if res.Source != SourceOfflinePage || !res.OfflineFallback {
		t.Errorf("got source=%s fallback=%v", res.Source, res.OfflineFallback)
	}
	if res.Status != http.StatusOK {
		t.Errorf("status: got %d, want 200", res.Status)
	}
}

func TestStatic_CacheFirstNoSecondFetch(t *testing.T) {
	rig := newRig(t)
	rig.respond(200, "application/javascript", "console.log(1)")

	assetURL := rig.server.URL + "/assets/main.4f8a1c2b.js"
	for i := 0; i < 3; i++ {
		res, err := rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: assetURL})
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		wantSource := SourceCache
		if i == 0 {
			wantSource = SourceNetwork
		}
		if res.Source != wantSource {
			t.Errorf("fetch %d source: got %s, want %s", i, res.Source, wantSource)
		}
	}
	if n := rig.requests.Load(); n != 1 {
		t.Errorf("network calls: got %d, want 1", n)
	}
}

func TestStatic_PlaceholderForReferenceDiagram(t *testing.T) {
	rig := newRig(t)
	rig.goOffline()

	res, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "GET", URL: rig.server.URL + PlaceholderAssetPath,
	})
	if err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	if res.Source != SourcePlaceholder {
		t.Errorf("source: got %s", res.Source)
	}
	if res.ContentType != "image/png" || len(res.Body) == 0 {
		t.Errorf("placeholder body: type=%s len=%d", res.ContentType, len(res.Body))
	}

	// Any other asset propagates the failure.
	if _, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "GET", URL: rig.server.URL + "/uploads/site1.jpg",
	}); err == nil {
		t.Error("non-diagram asset should propagate the fetch failure")
	}
}

func TestWrite_NeverCached(t *testing.T) {
	rig := newRig(t)
	rig.respond(201, "application/json", `{"id":"srv-1"}`)

	_, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "POST", URL: rig.server.URL + "/v1/sites",
		Body:       []byte(`{"site_number":1}`),
		EntityType: models.EntitySite, Kind: queue.KindCreate,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	n, _ := rig.cache.Len()
	if n != 0 {
		t.Errorf("cache entries after write: got %d, want 0", n)
	}
}

func TestWrite_QueuedOnConnectivityFailure(t *testing.T) {
	rig := newRig(t)
	rig.goOffline()

	res, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "POST", URL: rig.server.URL + "/v1/sites",
		Body:       []byte(`{"site_number":1,"river_width":10}`),
		EntityType: models.EntitySite, Kind: queue.KindCreate,
	})
	if err != nil {
		t.Fatalf("offline write: %v", err)
	}
	if res.Status != http.StatusAccepted {
		t.Errorf("status: got %d, want 202", res.Status)
	}
	if res.Source != SourceQueued {
		t.Errorf("source: got %s, want queued", res.Source)
	}
	if res.Queued == nil {
		t.Fatal("expected queued operation")
	}
	if !strings.HasPrefix(res.Queued.LocalEntityID, "tmp-") {
		t.Errorf("local id: got %q", res.Queued.LocalEntityID)
	}
	if res.Queued.IdempotencyKey == "" {
		t.Error("queued create should keep the idempotency key of the live attempt")
	}

	pending, _, err := rig.queue.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if pending != 1 {
		t.Errorf("pending: got %d, want 1", pending)
	}
}

func TestWrite_ServerRejectionNotQueued(t *testing.T) {
	rig := newRig(t)
	rig.respond(422, "application/json", `{"code":"validation","message":"river_width must be positive"}`)

	_, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "POST", URL: rig.server.URL + "/v1/sites",
		Body:       []byte(`{"river_width":-1}`),
		EntityType: models.EntitySite, Kind: queue.KindCreate,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %T: %v", err, err)
	}

	pending, failed, _ := rig.queue.Counts()
	if pending != 0 || failed != 0 {
		t.Errorf("queue after rejection: pending=%d failed=%d, want 0/0", pending, failed)
	}
}

func TestWrite_SuccessInvalidatesCachedReads(t *testing.T) {
	rig := newRig(t)
	rig.respond(200, "application/json", `[{"id":"s1"}]`)

	readURL := rig.server.URL + "/v1/sites?walk=9"
	if _, err := rig.dispatcher.PerformRequest(context.Background(), Request{Method: "GET", URL: readURL}); err != nil {
		t.Fatalf("prime read: %v", err)
	}

	rig.respond(201, "application/json", `{"id":"srv-2"}`)
	if _, err := rig.dispatcher.PerformRequest(context.Background(), Request{
		Method: "POST", URL: rig.server.URL + "/v1/sites",
		Body:       []byte(`{"site_number":2}`),
		EntityType: models.EntitySite, Kind: queue.KindCreate,
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if e, _ := rig.cache.Get("GET", readURL); e != nil {
		t.Error("cached read should be invalidated by the write")
	}
}
