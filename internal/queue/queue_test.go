package queue

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/riverwalks/rw/internal/models"
)

func enqueueCreate(t *testing.T, q *Queue, entity models.EntityType, payload string) *Operation {
	t.Helper()
	op, err := q.Enqueue(Operation{
		EntityType: entity,
		Kind:       KindCreate,
		Method:     "POST",
		URL:        "https://api.example.com/" + string(entity),
		Payload:    json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if op == nil {
		t.Fatal("enqueue returned nil op")
	}
	return op
}

func TestEnqueue_AssignsIDsAndPending(t *testing.T) {
	q := New(NewMemStore())

	op := enqueueCreate(t, q, models.EntitySite, `{"site_number":1,"river_width":10}`)

	if op.ID == "" {
		t.Error("ID should be assigned")
	}
	if !strings.HasPrefix(op.LocalEntityID, "tmp-") {
		t.Errorf("LocalEntityID: got %q, want tmp- prefix", op.LocalEntityID)
	}
	if op.IdempotencyKey == "" {
		t.Error("creates should carry an idempotency key")
	}
	if op.Status != StatusPending {
		t.Errorf("status: got %s, want pending", op.Status)
	}

	pending, failed, err := q.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if pending != 1 || failed != 0 {
		t.Errorf("counts: got pending=%d failed=%d, want 1/0", pending, failed)
	}
}

func TestEnqueue_RejectsUnknownEntity(t *testing.T) {
	q := New(NewMemStore())
	if _, err := q.Enqueue(Operation{EntityType: "teapot", Kind: KindCreate}); err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestList_FIFOOrder(t *testing.T) {
	q := New(NewMemStore())

	first := enqueueCreate(t, q, models.EntitySite, `{"site_number":1}`)
	second := enqueueCreate(t, q, models.EntityMeasurementPoint, `{"point_number":1}`)
	third := enqueueCreate(t, q, models.EntityMeasurementPoint, `{"point_number":2}`)

	ops, err := q.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("list: got %d ops, want 3", len(ops))
	}
	for i, want := range []string{first.ID, second.ID, third.ID} {
		if ops[i].ID != want {
			t.Errorf("ops[%d]: got %s, want %s", i, ops[i].ID, want)
		}
	}

	points, err := q.List(Filter{EntityType: models.EntityMeasurementPoint})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("filtered list: got %d, want 2", len(points))
	}
}

func TestEnqueue_DeleteCancelsPendingCreate(t *testing.T) {
	q := New(NewMemStore())

	create := enqueueCreate(t, q, models.EntitySite, `{"site_number":1}`)
	if _, err := q.Enqueue(Operation{
		EntityType:    models.EntitySite,
		Kind:          KindUpdate,
		Method:        "PUT",
		URL:           "https://api.example.com/site/" + create.LocalEntityID,
		LocalEntityID: create.LocalEntityID,
		Payload:       json.RawMessage(`{"notes":"x"}`),
	}); err != nil {
		t.Fatalf("enqueue update: %v", err)
	}

	del, err := q.Enqueue(Operation{
		EntityType:    models.EntitySite,
		Kind:          KindDelete,
		Method:        "DELETE",
		URL:           "https://api.example.com/site/" + create.LocalEntityID,
		LocalEntityID: create.LocalEntityID,
	})
	if err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}
	if del != nil {
		t.Errorf("delete of unsent create should be dropped, got op %s", del.ID)
	}

	ops, _ := q.List(Filter{})
	if len(ops) != 0 {
		t.Errorf("queue should be empty, got %d ops", len(ops))
	}
}

func TestEnqueue_DeleteQueuedWhenCreateAlreadySent(t *testing.T) {
	q := New(NewMemStore())

	// No pending create for this entity: it already synced.
	del, err := q.Enqueue(Operation{
		EntityType:    models.EntitySite,
		Kind:          KindDelete,
		Method:        "DELETE",
		URL:           "https://api.example.com/site/srv-42",
		LocalEntityID: "srv-42",
	})
	if err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}
	if del == nil {
		t.Fatal("delete should be queued when no pending create exists")
	}
}

func TestMarkSucceeded_RewritesDependents(t *testing.T) {
	q := New(NewMemStore())

	site := enqueueCreate(t, q, models.EntitySite, `{"site_number":1,"river_width":10}`)
	tmp := site.LocalEntityID

	var pointIDs []string
	for i := 1; i <= 3; i++ {
		op, err := q.Enqueue(Operation{
			EntityType: models.EntityMeasurementPoint,
			Kind:       KindCreate,
			Method:     "POST",
			URL:        "https://api.example.com/site/" + tmp + "/points",
			Payload:    json.RawMessage(`{"site_id":"` + tmp + `","point_number":` + string(rune('0'+i)) + `}`),
			DependsOn:  site.ID,
		})
		if err != nil {
			t.Fatalf("enqueue point %d: %v", i, err)
		}
		pointIDs = append(pointIDs, op.ID)
	}

	if err := q.MarkInFlight(site.ID); err != nil {
		t.Fatalf("mark in-flight: %v", err)
	}
	if err := q.MarkSucceeded(site.ID, "srv-42"); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	if op, _ := q.Get(site.ID); op != nil {
		t.Error("succeeded op should be removed")
	}

	for _, id := range pointIDs {
		op, err := q.Get(id)
		if err != nil || op == nil {
			t.Fatalf("get point op: %v", err)
		}
		if op.DependsOn != "" {
			t.Errorf("DependsOn should be released, got %q", op.DependsOn)
		}
		if strings.Contains(op.URL, tmp) {
			t.Errorf("URL still references tmp id: %s", op.URL)
		}
		if !strings.Contains(op.URL, "srv-42") {
			t.Errorf("URL should reference server id: %s", op.URL)
		}
		if strings.Contains(string(op.Payload), tmp) {
			t.Errorf("payload still references tmp id: %s", op.Payload)
		}
	}
}

func TestNoteFailure_RetriesThenFails(t *testing.T) {
	q := New(NewMemStore())
	op := enqueueCreate(t, q, models.EntitySite, `{}`)

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := q.MarkInFlight(op.ID); err != nil {
			t.Fatalf("attempt %d in-flight: %v", attempt, err)
		}
		final, err := q.NoteFailure(op.ID, "connection refused", maxAttempts)
		if err != nil {
			t.Fatalf("attempt %d note failure: %v", attempt, err)
		}
		wantFinal := attempt == maxAttempts
		if final != wantFinal {
			t.Errorf("attempt %d: final=%v, want %v", attempt, final, wantFinal)
		}
	}

	got, _ := q.Get(op.ID)
	if got.Status != StatusFailed {
		t.Errorf("status: got %s, want failed", got.Status)
	}
	if got.LastError != "connection refused" {
		t.Errorf("last error: got %q", got.LastError)
	}

	// Manual retry resets the attempt budget.
	if err := q.Requeue(op.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	got, _ = q.Get(op.ID)
	if got.Status != StatusPending || got.Attempts != 0 {
		t.Errorf("after requeue: status=%s attempts=%d, want pending/0", got.Status, got.Attempts)
	}
}

func TestMarkInFlight_RequiresPending(t *testing.T) {
	q := New(NewMemStore())
	op := enqueueCreate(t, q, models.EntitySite, `{}`)

	if err := q.MarkInFlight(op.ID); err != nil {
		t.Fatalf("first in-flight: %v", err)
	}
	if err := q.MarkInFlight(op.ID); err == nil {
		t.Error("second in-flight should fail")
	}
}
