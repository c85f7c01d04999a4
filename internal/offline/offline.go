// Package offline is the composition root of the resilience layer: it wires
// the request cache, pending-operation queue, connectivity monitor,
// dispatcher and sync orchestrator over the local database, and presents the
// single surface the CLI talks to.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/riverwalks/rw/internal/apiclient"
	"github.com/riverwalks/rw/internal/cache"
	"github.com/riverwalks/rw/internal/db"
	"github.com/riverwalks/rw/internal/dispatch"
	"github.com/riverwalks/rw/internal/netmon"
	"github.com/riverwalks/rw/internal/queue"
	"github.com/riverwalks/rw/internal/syncer"
)

// Options configures an offline layer.
type Options struct {
	BaseDir  string // project directory holding .rw/
	APIURL   string
	AppURL   string // web app origin the shell document is cached from
	APIKey   string
	DeviceID string

	Debounce      time.Duration // connectivity debounce, 0 = default
	ProbeInterval time.Duration // health probe cadence, 0 = default
	MaxAttempts   int           // retry budget per queued op, 0 = default
	AutoSync      bool          // drain automatically on reconnect
}

// Layer is the assembled offline resilience layer.
type Layer struct {
	DB           *db.DB // nil when running degraded
	Cache        *cache.Cache
	Queue        *queue.Queue
	Client       *apiclient.Client
	Monitor      *netmon.Monitor
	Dispatcher   *dispatch.Dispatcher
	Orchestrator *syncer.Orchestrator

	degraded bool
	cancel   context.CancelFunc
}

// Open assembles the layer. When the local database cannot be opened the
// layer still comes up in a degraded in-memory mode: requests pass through
// and writes queue for the life of the process, but nothing persists.
func Open(ctx context.Context, opts Options) (*Layer, error) {
	if opts.APIURL == "" {
		return nil, fmt.Errorf("offline: APIURL is required")
	}

	l := &Layer{
		Client: apiclient.New(opts.APIURL, opts.APIKey, opts.DeviceID),
	}

	database, err := db.Open(opts.BaseDir)
	if err != nil {
		// Storage-unavailable degraded mode: warn once, keep working.
		slog.Warn("local storage unavailable, offline persistence disabled for this session", "err", err)
		l.degraded = true
		l.Cache = cache.New(cache.NewMemStore())
		l.Queue = queue.New(queue.NewMemStore())
	} else {
		l.DB = database
		l.Cache = cache.New(database.CacheStore())
		l.Queue = queue.New(database.QueueStore())
	}

	l.Monitor = netmon.New(
		netmon.ProberFunc(l.Client.Health),
		opts.Debounce,
		opts.ProbeInterval,
	)

	shellURL := ""
	if opts.AppURL != "" {
		shellURL = strings.TrimRight(opts.AppURL, "/") + "/"
	}
	l.Dispatcher = dispatch.New(l.Cache, l.Queue, l.Client, l.Monitor, shellURL)

	l.Orchestrator = syncer.New(l.Queue, l.Cache, l.Client, l.Monitor)
	if opts.MaxAttempts > 0 {
		l.Orchestrator.SetMaxAttempts(opts.MaxAttempts)
	}
	if l.DB != nil {
		l.Orchestrator.SetReconciler(l.DB)
	}

	monCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.Monitor.Start(monCtx)
	if opts.AutoSync {
		l.Orchestrator.Start()
	}

	return l, nil
}

// Degraded reports whether the layer is running without durable storage.
func (l *Layer) Degraded() bool {
	return l.degraded
}

// PerformRequest routes one request through the dispatcher.
func (l *Layer) PerformRequest(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	return l.Dispatcher.PerformRequest(ctx, req)
}

// SyncStatus returns the current sync projection.
func (l *Layer) SyncStatus() syncer.Status {
	return l.Orchestrator.Status()
}

// ForceSync triggers a queue drain regardless of connectivity signals.
func (l *Layer) ForceSync(ctx context.Context) error {
	return l.Orchestrator.Sync(ctx)
}

// ForceSyncAsync kicks off a drain in the background. Used by interactive
// surfaces that must not block on the network.
func (l *Layer) ForceSyncAsync() {
	go func() {
		if err := l.Orchestrator.Sync(context.Background()); err != nil {
			slog.Debug("background sync", "err", err)
		}
	}()
}

// ListOps returns every queued operation in sequence order.
func (l *Layer) ListOps() ([]queue.Operation, error) {
	return l.Queue.List(queue.Filter{})
}

// SubscribeStatus registers cb for sync status updates.
func (l *Layer) SubscribeStatus(cb func(syncer.Status)) func() {
	return l.Orchestrator.Subscribe(cb)
}

// SubscribeConnectivity registers cb for committed online/offline
// transitions.
func (l *Layer) SubscribeConnectivity(cb func(online bool)) func() {
	return l.Monitor.OnChange(cb)
}

// PrimeShell fetches and caches the app-shell document so offline document
// substitution has something to serve. Best effort; failures are logged and
// swallowed because priming is an optimization, not a requirement.
func (l *Layer) PrimeShell(ctx context.Context, appURL string) {
	if appURL == "" {
		return
	}
	shellURL := strings.TrimRight(appURL, "/") + "/"
	if _, err := l.Dispatcher.PerformRequest(ctx, dispatch.Request{Method: http.MethodGet, URL: shellURL}); err != nil {
		slog.Debug("prime app shell", "url", shellURL, "err", err)
	}
}

// Close tears the layer down: monitor loop, sync subscription, database.
func (l *Layer) Close() error {
	l.Orchestrator.Close()
	l.Monitor.Close()
	if l.cancel != nil {
		l.cancel()
	}
	if l.DB != nil {
		return l.DB.Close()
	}
	return nil
}
