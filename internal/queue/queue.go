// Package queue implements the durable pending-operation queue: writes that
// could not reach the server are recorded here in submission order and
// replayed by the sync orchestrator when connectivity returns.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riverwalks/rw/internal/models"
)

// Status is the lifecycle state of a queued operation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusFailed   Status = "failed"
)

// Kind is the write operation kind.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Operation is one queued write. Succeeded operations are removed from the
// queue, so the stored statuses are only pending, in_flight and failed.
type Operation struct {
	ID             string
	Seq            int64 // creation order, assigned by the store
	EntityType     models.EntityType
	Kind           Kind
	Method         string
	URL            string
	Payload        json.RawMessage
	LocalEntityID  string // temporary id for a not-yet-persisted entity
	DependsOn      string // ID of an earlier operation this one needs resolved
	IdempotencyKey string
	Status         Status
	Attempts       int
	LastError      string
	CreatedAt      time.Time
}

// Filter restricts List results. Zero values match everything.
type Filter struct {
	EntityType models.EntityType
	Status     Status
}

// Store is the durable substrate behind the queue. Implemented by the
// sqlite-backed local database and by MemStore.
type Store interface {
	// InsertOp persists op and assigns op.Seq.
	InsertOp(op *Operation) error
	GetOp(id string) (*Operation, error)
	// ListOps returns matching operations ordered by Seq ascending.
	ListOps(f Filter) ([]Operation, error)
	UpdateOp(op Operation) error
	DeleteOp(id string) error
}

// Queue provides the pending-operation API over a Store. All mutating
// methods are safe for concurrent use only to the extent the Store is; the
// offline layer serializes access through a single orchestrator.
type Queue struct {
	store Store
}

// New creates a queue over the given store.
func New(store Store) *Queue {
	return &Queue{store: store}
}

// TempID generates a temporary local entity id for a not-yet-persisted
// entity. The tmp- prefix is what id rewriting looks for after sync.
func TempID() string {
	return "tmp-" + uuid.NewString()
}

// Enqueue appends op with status pending and returns it with its assigned
// id. A delete for a local entity whose create is still pending cancels the
// queued create/updates instead; in that case Enqueue returns (nil, nil)
// because nothing needs to reach the server.
func (q *Queue) Enqueue(op Operation) (*Operation, error) {
	if !op.EntityType.Valid() {
		return nil, fmt.Errorf("enqueue: unknown entity type %q", op.EntityType)
	}

	if op.Kind == KindDelete && op.LocalEntityID != "" {
		cancelled, err := q.cancelSuperseded(op.LocalEntityID)
		if err != nil {
			return nil, err
		}
		if cancelled {
			// The create never reached the server, so the delete has
			// nothing to undo remotely.
			return nil, nil
		}
	}

	op.ID = uuid.NewString()
	op.Status = StatusPending
	op.Attempts = 0
	op.CreatedAt = time.Now().UTC()
	if op.Kind == KindCreate {
		if op.LocalEntityID == "" {
			op.LocalEntityID = TempID()
		}
		if op.IdempotencyKey == "" {
			op.IdempotencyKey = uuid.NewString()
		}
	}

	if err := q.store.InsertOp(&op); err != nil {
		return nil, fmt.Errorf("enqueue %s %s: %w", op.Kind, op.EntityType, err)
	}
	return &op, nil
}

// cancelSuperseded removes still-pending create/update operations for a
// local entity id. Returns true when a pending create was cancelled, meaning
// the entity was never sent and the delete itself should be dropped.
func (q *Queue) cancelSuperseded(localEntityID string) (bool, error) {
	ops, err := q.store.ListOps(Filter{Status: StatusPending})
	if err != nil {
		return false, fmt.Errorf("list pending: %w", err)
	}

	createCancelled := false
	for _, op := range ops {
		if op.LocalEntityID != localEntityID {
			continue
		}
		switch op.Kind {
		case KindCreate, KindUpdate:
			if err := q.store.DeleteOp(op.ID); err != nil {
				return false, fmt.Errorf("cancel op %s: %w", op.ID, err)
			}
			if op.Kind == KindCreate {
				createCancelled = true
			}
		}
	}
	return createCancelled, nil
}

// List returns operations matching f, oldest first.
func (q *Queue) List(f Filter) ([]Operation, error) {
	return q.store.ListOps(f)
}

// Get returns the operation with the given id, or nil when absent.
func (q *Queue) Get(id string) (*Operation, error) {
	return q.store.GetOp(id)
}

// MarkInFlight transitions a pending operation to in_flight.
func (q *Queue) MarkInFlight(id string) error {
	op, err := q.mustGet(id)
	if err != nil {
		return err
	}
	if op.Status != StatusPending {
		return fmt.Errorf("mark in-flight %s: status is %s, want pending", id, op.Status)
	}
	op.Status = StatusInFlight
	op.Attempts++
	if err := q.store.UpdateOp(*op); err != nil {
		return fmt.Errorf("mark in-flight %s: %w", id, err)
	}
	return nil
}

// MarkSucceeded removes the operation and, when it was a create that got a
// server-assigned id, rewrites every remaining operation that referenced the
// temporary id: DependsOn links are released and payload/URL references are
// substituted with serverID before those operations are attempted.
func (q *Queue) MarkSucceeded(id, serverID string) error {
	op, err := q.mustGet(id)
	if err != nil {
		return err
	}
	if err := q.store.DeleteOp(id); err != nil {
		return fmt.Errorf("remove succeeded %s: %w", id, err)
	}

	remaining, err := q.store.ListOps(Filter{})
	if err != nil {
		return fmt.Errorf("list for rewrite: %w", err)
	}
	for _, rem := range remaining {
		changed := false
		if rem.DependsOn == op.ID {
			rem.DependsOn = ""
			changed = true
		}
		if serverID != "" && op.LocalEntityID != "" {
			if rewriteOp(&rem, op.LocalEntityID, serverID) {
				changed = true
			}
		}
		if changed {
			if err := q.store.UpdateOp(rem); err != nil {
				return fmt.Errorf("rewrite op %s: %w", rem.ID, err)
			}
		}
	}
	return nil
}

// rewriteOp substitutes tmpID with serverID everywhere the operation can
// carry it: its own entity reference, its URL and its JSON payload.
func rewriteOp(op *Operation, tmpID, serverID string) bool {
	changed := false
	if op.LocalEntityID == tmpID {
		op.LocalEntityID = serverID
		changed = true
	}
	if strings.Contains(op.URL, tmpID) {
		op.URL = strings.ReplaceAll(op.URL, tmpID, serverID)
		changed = true
	}
	if len(op.Payload) > 0 && strings.Contains(string(op.Payload), tmpID) {
		op.Payload = json.RawMessage(strings.ReplaceAll(string(op.Payload), tmpID, serverID))
		changed = true
	}
	return changed
}

// NoteFailure records a failed attempt. Under maxAttempts the operation goes
// back to pending for the next sync run; at or over it the operation is
// marked failed and retained for user-visible intervention. Returns whether
// the failure was final.
func (q *Queue) NoteFailure(id, errMsg string, maxAttempts int) (bool, error) {
	op, err := q.mustGet(id)
	if err != nil {
		return false, err
	}
	op.LastError = errMsg
	if op.Attempts >= maxAttempts {
		op.Status = StatusFailed
	} else {
		op.Status = StatusPending
	}
	if err := q.store.UpdateOp(*op); err != nil {
		return false, fmt.Errorf("note failure %s: %w", id, err)
	}
	return op.Status == StatusFailed, nil
}

// MarkFailed transitions an operation straight to failed, bypassing retries.
// Used for server-side rejections that would only repeat on resend.
func (q *Queue) MarkFailed(id, errMsg string) error {
	op, err := q.mustGet(id)
	if err != nil {
		return err
	}
	op.Status = StatusFailed
	op.LastError = errMsg
	if err := q.store.UpdateOp(*op); err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// Requeue puts a failed operation back to pending with a fresh attempt
// budget (manual retry).
func (q *Queue) Requeue(id string) error {
	op, err := q.mustGet(id)
	if err != nil {
		return err
	}
	if op.Status != StatusFailed {
		return fmt.Errorf("requeue %s: status is %s, want failed", id, op.Status)
	}
	op.Status = StatusPending
	op.Attempts = 0
	op.LastError = ""
	if err := q.store.UpdateOp(*op); err != nil {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	return nil
}

// Remove hard-deletes an operation regardless of status.
func (q *Queue) Remove(id string) error {
	if err := q.store.DeleteOp(id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// Counts returns the number of pending (including in-flight) and failed
// operations, for the sync status projection.
func (q *Queue) Counts() (pending, failed int, err error) {
	ops, err := q.store.ListOps(Filter{})
	if err != nil {
		return 0, 0, err
	}
	for _, op := range ops {
		switch op.Status {
		case StatusFailed:
			failed++
		default:
			pending++
		}
	}
	return pending, failed, nil
}

func (q *Queue) mustGet(id string) (*Operation, error) {
	op, err := q.store.GetOp(id)
	if err != nil {
		return nil, fmt.Errorf("get op %s: %w", id, err)
	}
	if op == nil {
		return nil, fmt.Errorf("op %s not found", id)
	}
	return op, nil
}
