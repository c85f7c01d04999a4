package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riverwalks/rw/internal/apiclient"
	"github.com/riverwalks/rw/internal/db"
	"github.com/riverwalks/rw/internal/dispatch"
	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/queue"
)

// flakyServer is a backend that can be taken down and brought back on the
// same address, so tests can walk a layer through offline and back.
type flakyServer struct {
	addr     string
	handler  atomic.Value // http.HandlerFunc
	requests atomic.Int64
	srv      *http.Server
}

func newFlakyServer(t *testing.T) *flakyServer {
	t.Helper()
	fs := &flakyServer{}
	fs.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fs.addr = ln.Addr().String()
	fs.serve(ln)
	t.Cleanup(func() { fs.stop() })
	return fs
}

func (fs *flakyServer) serve(ln net.Listener) {
	fs.srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)
		fs.handler.Load().(http.HandlerFunc)(w, r)
	})}
	go fs.srv.Serve(ln)
}

func (fs *flakyServer) stop() {
	if fs.srv != nil {
		fs.srv.Close()
		fs.srv = nil
	}
}

func (fs *flakyServer) restart(t *testing.T) {
	t.Helper()
	var ln net.Listener
	var err error
	for i := 0; i < 20; i++ {
		ln, err = net.Listen("tcp", fs.addr)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("relisten on %s: %v", fs.addr, err)
	}
	fs.serve(ln)
}

func (fs *flakyServer) url() string { return "http://" + fs.addr }

func (fs *flakyServer) respond(status int, contentType, body string) {
	fs.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func newLayer(t *testing.T, fs *flakyServer) *Layer {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Initialize(dir)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	database.Close()

	l, err := Open(context.Background(), Options{
		BaseDir:       dir,
		APIURL:        fs.url(),
		AppURL:        fs.url(),
		Debounce:      10 * time.Millisecond,
		ProbeInterval: time.Hour,
		MaxAttempts:   3,
	})
	if err != nil {
		t.Fatalf("open layer: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// Offline create queues, reconnect drains, idempotency key rides along.
func TestLayer_OfflineCreateThenDrain(t *testing.T) {
	fs := newFlakyServer(t)
	l := newLayer(t, fs)
	fs.stop()

	res, err := l.PerformRequest(context.Background(), dispatch.Request{
		Method:     "POST",
		URL:        l.Client.SitesPath(""),
		Body:       []byte(`{"site_number":1,"river_width":8.5}`),
		EntityType: models.EntitySite,
		Kind:       queue.KindCreate,
	})
	if err != nil {
		t.Fatalf("offline create: %v", err)
	}
	if res.Status != http.StatusAccepted || res.Queued == nil {
		t.Fatalf("offline create: status=%d queued=%v", res.Status, res.Queued)
	}
	queuedKey := res.Queued.IdempotencyKey
	if queuedKey == "" {
		t.Fatal("queued create lost its idempotency key")
	}
	if st := l.SyncStatus(); st.PendingCount != 1 {
		t.Fatalf("pending: got %d, want 1", st.PendingCount)
	}

	var gotKey atomic.Value
	fs.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(201)
		w.Write([]byte(`{"id":"srv-1"}`))
	}))
	fs.restart(t)

	if err := l.ForceSync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	st := l.SyncStatus()
	if st.PendingCount != 0 || st.FailedCount != 0 {
		t.Errorf("after drain: pending=%d failed=%d", st.PendingCount, st.FailedCount)
	}
	if k, _ := gotKey.Load().(string); k != queuedKey {
		t.Errorf("idempotency key: sent %q, queued %q", k, queuedKey)
	}
}

// A site and its points captured offline replay in order with rewritten ids.
func TestLayer_OfflineHierarchyReplaysInOrder(t *testing.T) {
	fs := newFlakyServer(t)
	l := newLayer(t, fs)
	fs.stop()

	ctx := context.Background()
	siteRes, err := l.PerformRequest(ctx, dispatch.Request{
		Method:     "POST",
		URL:        l.Client.SitesPath(""),
		Body:       []byte(`{"site_number":1,"river_width":8.5}`),
		EntityType: models.EntitySite,
		Kind:       queue.KindCreate,
	})
	if err != nil {
		t.Fatalf("offline site create: %v", err)
	}
	tmpID := siteRes.Queued.LocalEntityID

	for i := 1; i <= 2; i++ {
		if _, err := l.PerformRequest(ctx, dispatch.Request{
			Method:     "POST",
			URL:        l.Client.PointsPath(tmpID),
			Body:       []byte(fmt.Sprintf(`{"site_id":"%s","point_number":%d,"depth":0.4}`, tmpID, i)),
			EntityType: models.EntityMeasurementPoint,
			Kind:       queue.KindCreate,
			DependsOn:  siteRes.Queued.ID,
		}); err != nil {
			t.Fatalf("offline point create %d: %v", i, err)
		}
	}

	var mu sync.Mutex
	var urls []string
	fs.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		urls = append(urls, r.URL.Path)
		n := len(urls)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(201)
		fmt.Fprintf(w, `{"id":"srv-%d"}`, n)
	}))
	fs.restart(t)

	if err := l.ForceSync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// Points were skipped on the first pass until the site create resolved
	// their DependsOn; a second run flushes them.
	if err := l.ForceSync(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(urls) != 3 {
		t.Fatalf("replayed: got %d requests (%v), want 3", len(urls), urls)
	}
	if urls[0] != "/v1/sites" {
		t.Errorf("site create should replay first, got %s", urls[0])
	}
	for _, u := range urls[1:] {
		if strings.Contains(u, tmpID) {
			t.Errorf("point url not rewritten: %s", u)
		}
		if !strings.Contains(u, "srv-1") {
			t.Errorf("point url should carry the server site id: %s", u)
		}
	}
	if st := l.SyncStatus(); st.PendingCount != 0 {
		t.Errorf("pending after drain: %d", st.PendingCount)
	}
}

// A read seen online once is served from cache when the network goes away.
func TestLayer_ReadServedFromCacheOffline(t *testing.T) {
	fs := newFlakyServer(t)
	l := newLayer(t, fs)
	fs.respond(200, "application/json", `[{"id":"w1","name":"Derwent"}]`)

	ctx := context.Background()
	readURL := l.Client.WalksPath()

	res, err := l.PerformRequest(ctx, dispatch.Request{Method: "GET", URL: readURL})
	if err != nil {
		t.Fatalf("online read: %v", err)
	}
	if res.Source != dispatch.SourceNetwork {
		t.Errorf("online source: %s", res.Source)
	}

	fs.stop()

	res, err = l.PerformRequest(ctx, dispatch.Request{Method: "GET", URL: readURL})
	if err != nil {
		t.Fatalf("offline read: %v", err)
	}
	if res.Source != dispatch.SourceCache {
		t.Errorf("offline source: %s", res.Source)
	}
	if !strings.Contains(string(res.Body), "Derwent") {
		t.Errorf("offline body: %s", res.Body)
	}

	// A URL never fetched online has nothing to fall back to.
	_, err = l.PerformRequest(ctx, dispatch.Request{Method: "GET", URL: l.Client.SitesPath("w1")})
	var offErr *dispatch.OfflineError
	if !errors.As(err, &offErr) {
		t.Errorf("uncached offline read: want *OfflineError, got %v", err)
	}
}

// Server rejections are surfaced, never queued.
func TestLayer_RejectionNotQueued(t *testing.T) {
	fs := newFlakyServer(t)
	l := newLayer(t, fs)
	fs.respond(422, "application/json", `{"code":"validation","message":"river_width must be positive"}`)

	_, err := l.PerformRequest(context.Background(), dispatch.Request{
		Method:     "POST",
		URL:        l.Client.SitesPath(""),
		Body:       []byte(`{"river_width":-1}`),
		EntityType: models.EntitySite,
		Kind:       queue.KindCreate,
	})
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}

	if st := l.SyncStatus(); st.PendingCount != 0 || st.FailedCount != 0 {
		t.Errorf("queue after rejection: pending=%d failed=%d", st.PendingCount, st.FailedCount)
	}
}

// Offline document requests substitute the primed shell with the marker.
func TestLayer_ShellSubstitutionAfterPriming(t *testing.T) {
	fs := newFlakyServer(t)
	l := newLayer(t, fs)
	fs.respond(200, "text/html", `<html><head><title>riverwalks</title></head><body></body></html>`)

	ctx := context.Background()
	l.PrimeShell(ctx, fs.url())
	fs.stop()

	res, err := l.PerformRequest(ctx, dispatch.Request{Method: "GET", URL: fs.url() + "/walks/9"})
	if err != nil {
		t.Fatalf("offline document: %v", err)
	}
	if res.Source != dispatch.SourceShell || !res.OfflineFallback {
		t.Errorf("got source=%s fallback=%v", res.Source, res.OfflineFallback)
	}
	if !strings.Contains(string(res.Body), "__RW_OFFLINE__") {
		t.Error("offline marker missing from substituted shell")
	}
}

// Without a local database the layer still works, in memory only.
func TestLayer_DegradedModeWithoutDatabase(t *testing.T) {
	fs := newFlakyServer(t)

	l, err := Open(context.Background(), Options{
		BaseDir:       t.TempDir(), // never initialized
		APIURL:        fs.url(),
		Debounce:      10 * time.Millisecond,
		ProbeInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("open degraded layer: %v", err)
	}
	defer l.Close()

	if !l.Degraded() {
		t.Fatal("layer should report degraded mode")
	}

	fs.stop()
	res, err := l.PerformRequest(context.Background(), dispatch.Request{
		Method:     "POST",
		URL:        l.Client.SitesPath(""),
		Body:       []byte(`{"site_number":1}`),
		EntityType: models.EntitySite,
		Kind:       queue.KindCreate,
	})
	if err != nil {
		t.Fatalf("degraded offline write: %v", err)
	}
	if res.Queued == nil {
		t.Fatal("degraded write should still queue in memory")
	}
	if st := l.SyncStatus(); st.PendingCount != 1 {
		t.Errorf("pending: got %d, want 1", st.PendingCount)
	}
}

// Queued work survives process restart: a new layer over the same directory
// sees and drains it.
func TestLayer_QueueSurvivesReopen(t *testing.T) {
	fs := newFlakyServer(t)
	dir := t.TempDir()
	database, err := db.Initialize(dir)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	database.Close()

	open := func() *Layer {
		l, err := Open(context.Background(), Options{
			BaseDir:       dir,
			APIURL:        fs.url(),
			Debounce:      10 * time.Millisecond,
			ProbeInterval: time.Hour,
		})
		if err != nil {
			t.Fatalf("open layer: %v", err)
		}
		return l
	}

	l := open()
	fs.stop()
	if _, err := l.PerformRequest(context.Background(), dispatch.Request{
		Method:     "POST",
		URL:        l.Client.SitesPath(""),
		Body:       []byte(`{"site_number":1}`),
		EntityType: models.EntitySite,
		Kind:       queue.KindCreate,
	}); err != nil {
		t.Fatalf("offline write: %v", err)
	}
	l.Close()

	var decoded struct {
		SiteNumber int `json:"site_number"`
	}
	fs.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&decoded)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(201)
		w.Write([]byte(`{"id":"srv-1"}`))
	}))
	fs.restart(t)

	l2 := open()
	defer l2.Close()
	if st := l2.SyncStatus(); st.PendingCount != 1 {
		t.Fatalf("pending after reopen: got %d, want 1", st.PendingCount)
	}
	if err := l2.ForceSync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st := l2.SyncStatus(); st.PendingCount != 0 {
		t.Errorf("pending after drain: %d", st.PendingCount)
	}
	if decoded.SiteNumber != 1 {
		t.Errorf("replayed payload: %+v", decoded)
	}
}
