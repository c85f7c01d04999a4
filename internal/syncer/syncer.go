// Package syncer drains the pending-operation queue against the real
// backend when connectivity allows, reconciles temporary ids with
// server-assigned ids, and projects a live SyncStatus for the UI.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/riverwalks/rw/internal/apiclient"
	"github.com/riverwalks/rw/internal/cache"
	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/queue"
)

// DefaultMaxAttempts is how many connectivity failures an operation absorbs
// before it is parked as failed for manual intervention.
const DefaultMaxAttempts = 3

// Status is the read projection over the queue and connectivity monitor.
// Recomputed on every change; never persisted.
type Status struct {
	PendingCount int
	FailedCount  int
	IsSyncing    bool
	IsOnline     bool
	LastSyncTime time.Time
	LastError    string
}

// Sender performs one backend request. Satisfied by *apiclient.Client.
type Sender interface {
	Do(ctx context.Context, method, url string, body []byte, idempotencyKey string) (*apiclient.Response, error)
}

// Connectivity is the slice of the monitor the orchestrator needs.
// Satisfied by *netmon.Monitor.
type Connectivity interface {
	IsOnline() bool
	OnChange(cb func(online bool)) func()
	Report(online bool)
}

// Reconciler renames a temporary entity id to the server-assigned one in
// the local mirror. Satisfied by *db.DB.
type Reconciler interface {
	ReconcileID(entityType models.EntityType, tmpID, serverID string) error
}

// Orchestrator coordinates queue drains. At most one drain runs at a time;
// triggers while one is in flight are no-ops.
type Orchestrator struct {
	queue       *queue.Queue
	cache       *cache.Cache
	sender      Sender
	conn        Connectivity
	reconciler  Reconciler
	maxAttempts int

	mu        sync.Mutex
	syncing   bool
	lastSync  time.Time
	lastError string
	subs      map[int]func(Status)
	nextSub   int
	unsubConn func()
}

// New creates an orchestrator. cache may be nil when running without a
// request cache (the drain then skips read-freshening).
func New(q *queue.Queue, c *cache.Cache, sender Sender, conn Connectivity) *Orchestrator {
	return &Orchestrator{
		queue:       q,
		cache:       c,
		sender:      sender,
		conn:        conn,
		maxAttempts: DefaultMaxAttempts,
		subs:        make(map[int]func(Status)),
	}
}

// SetReconciler wires the local mirror id rename. Optional; without it the
// mirror keeps its temporary ids.
func (o *Orchestrator) SetReconciler(r Reconciler) {
	o.reconciler = r
}

// SetMaxAttempts overrides the per-operation retry budget.
func (o *Orchestrator) SetMaxAttempts(n int) {
	if n > 0 {
		o.maxAttempts = n
	}
}

// Start subscribes to connectivity transitions so an offline→online edge
// triggers a drain automatically.
func (o *Orchestrator) Start() {
	o.unsubConn = o.conn.OnChange(func(online bool) {
		if online {
			go func() {
				if err := o.Sync(context.Background()); err != nil {
					slog.Warn("reconnect sync", "err", err)
				}
			}()
		} else {
			o.emit()
		}
	})
}

// Close detaches the connectivity subscription.
func (o *Orchestrator) Close() {
	if o.unsubConn != nil {
		o.unsubConn()
		o.unsubConn = nil
	}
}

// Status returns the current projection.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() Status {
	pending, failed, err := o.queue.Counts()
	if err != nil {
		slog.Warn("queue counts", "err", err)
	}
	return Status{
		PendingCount: pending,
		FailedCount:  failed,
		IsSyncing:    o.syncing,
		IsOnline:     o.conn.IsOnline(),
		LastSyncTime: o.lastSync,
		LastError:    o.lastError,
	}
}

// Subscribe registers cb for status updates and returns an unsubscribe
// function. An update is emitted after every drained item and once at
// completion of each run.
func (o *Orchestrator) Subscribe(cb func(Status)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = cb
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

func (o *Orchestrator) emit() {
	o.mu.Lock()
	st := o.statusLocked()
	cbs := make([]func(Status), 0, len(o.subs))
	for _, cb := range o.subs {
		cbs = append(cbs, cb)
	}
	o.mu.Unlock()
	for _, cb := range cbs {
		cb(st)
	}
}

// Sync drains a snapshot of the pending queue in creation order. Operations
// enqueued during the run wait for the next one. Calling Sync while a drain
// is in flight returns immediately with no error.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	if o.syncing {
		o.mu.Unlock()
		return nil
	}
	o.syncing = true
	o.lastError = ""
	o.mu.Unlock()
	o.emit()

	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.lastSync = time.Now().UTC()
		o.mu.Unlock()
		o.emit()
	}()

	snapshot, err := o.queue.List(queue.Filter{Status: queue.StatusPending})
	if err != nil {
		return fmt.Errorf("snapshot queue: %w", err)
	}

	// Entities whose earlier op in this run failed on connectivity. Sending
	// a later op for the same entity would apply it ahead of the pending
	// retry and reorder that entity's history.
	stalled := make(map[string]bool)

	for _, op := range snapshot {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		o.drainOne(ctx, op.ID, stalled)
		o.emit()
	}
	return nil
}

// drainOne sends a single operation. The op is re-read from the queue
// because an earlier item in this run may have rewritten its references or
// removed it outright (delete-supersedes-create).
func (o *Orchestrator) drainOne(ctx context.Context, opID string, stalled map[string]bool) {
	op, err := o.queue.Get(opID)
	if err != nil {
		slog.Warn("sync: load op", "op", opID, "err", err)
		return
	}
	if op == nil || op.Status != queue.StatusPending {
		return
	}
	if op.DependsOn != "" {
		// The dependency has not succeeded yet (success clears the link),
		// so sending now would reference an id the server never assigned.
		slog.Debug("sync: dependency unresolved, skipping", "op", op.ID, "depends_on", op.DependsOn)
		return
	}
	if op.Kind != queue.KindCreate && strings.HasPrefix(op.LocalEntityID, "tmp-") {
		// The entity's own create has not synced yet; its success would
		// have rewritten this temporary id to the server id.
		slog.Debug("sync: entity not yet created, skipping", "op", op.ID, "local_id", op.LocalEntityID)
		return
	}
	if op.LocalEntityID != "" && stalled[op.LocalEntityID] {
		// An earlier op for this entity is waiting to retry; it must land
		// first or the entity's writes arrive out of order.
		slog.Debug("sync: earlier op for entity pending retry, skipping", "op", op.ID, "local_id", op.LocalEntityID)
		return
	}

	if err := o.queue.MarkInFlight(op.ID); err != nil {
		slog.Warn("sync: mark in-flight", "op", op.ID, "err", err)
		return
	}

	resp, err := o.sender.Do(ctx, op.Method, op.URL, op.Payload, op.IdempotencyKey)
	if err != nil {
		// Connectivity-class failure: retry on a later run, up to the cap.
		o.conn.Report(false)
		if op.LocalEntityID != "" {
			stalled[op.LocalEntityID] = true
		}
		final, nerr := o.queue.NoteFailure(op.ID, err.Error(), o.maxAttempts)
		if nerr != nil {
			slog.Warn("sync: note failure", "op", op.ID, "err", nerr)
		}
		o.setLastError(fmt.Sprintf("%s %s: %v", op.Kind, op.EntityType, err))
		if final {
			slog.Warn("sync: op exhausted retries", "op", op.ID, "entity", op.EntityType, "err", err)
		}
		return
	}
	o.conn.Report(true)

	if rerr := apiclient.ResponseError(resp); rerr != nil {
		// The server saw it and said no. Retrying would repeat the answer.
		if ferr := o.queue.MarkFailed(op.ID, rerr.Error()); ferr != nil {
			slog.Warn("sync: mark failed", "op", op.ID, "err", ferr)
		}
		o.setLastError(fmt.Sprintf("%s %s rejected: %v", op.Kind, op.EntityType, rerr))
		return
	}

	serverID := ""
	if op.Kind == queue.KindCreate {
		var created struct {
			ID string `json:"id"`
		}
		if jerr := json.Unmarshal(resp.Body, &created); jerr == nil {
			serverID = created.ID
		}
	}

	if err := o.queue.MarkSucceeded(op.ID, serverID); err != nil {
		slog.Warn("sync: mark succeeded", "op", op.ID, "err", err)
		return
	}
	if o.reconciler != nil && op.Kind == queue.KindCreate && serverID != "" && strings.HasPrefix(op.LocalEntityID, "tmp-") {
		if err := o.reconciler.ReconcileID(op.EntityType, op.LocalEntityID, serverID); err != nil {
			slog.Warn("sync: reconcile mirror id", "op", op.ID, "entity", op.EntityType, "err", err)
		}
	}
	o.freshenCache(op, serverID, resp)
	slog.Info("sync: op replayed", "op", op.ID, "entity", op.EntityType, "kind", op.Kind, "server_id", serverID)
}

// freshenCache updates the request cache for the resource a drained write
// touched, so the next read does not serve the pre-sync body.
func (o *Orchestrator) freshenCache(op *queue.Operation, serverID string, resp *apiclient.Response) {
	if o.cache == nil {
		return
	}
	if _, err := o.cache.InvalidateURL(op.URL); err != nil {
		slog.Warn("sync: invalidate cache", "url", op.URL, "err", err)
	}
	if op.Kind == queue.KindCreate && serverID != "" && len(resp.Body) > 0 {
		itemURL := op.URL
		if i := strings.IndexByte(itemURL, '?'); i >= 0 {
			itemURL = itemURL[:i]
		}
		itemURL = strings.TrimRight(itemURL, "/") + "/" + serverID
		if err := o.cache.Put("GET", itemURL, cache.PartitionAPI, 200, "application/json", resp.Body); err != nil {
			slog.Warn("sync: freshen item", "url", itemURL, "err", err)
		}
	}
}

func (o *Orchestrator) setLastError(msg string) {
	o.mu.Lock()
	o.lastError = msg
	o.mu.Unlock()
}
