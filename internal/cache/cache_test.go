package cache

import (
	"bytes"
	"testing"
)

func TestCache_PutGetReplace(t *testing.T) {
	c := New(NewMemStore())

	if err := c.Put("GET", "https://api.example.com/sites?walk=9", PartitionAPI, 200, "application/json", []byte(`[{"id":"s1"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Same logical request, different query order
	e, err := c.Get("GET", "https://api.example.com/sites?walk=9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e == nil {
		t.Fatal("expected entry, got nil")
	}
	if !bytes.Equal(e.Body, []byte(`[{"id":"s1"}]`)) {
		t.Errorf("body: got %s", e.Body)
	}
	if e.Partition != PartitionAPI {
		t.Errorf("partition: got %s, want %s", e.Partition, PartitionAPI)
	}
	if e.StoredAt.IsZero() {
		t.Error("StoredAt should be stamped")
	}

	// Whole-entry replace
	if err := c.Put("GET", "https://api.example.com/sites?walk=9", PartitionAPI, 200, "application/json", []byte(`[]`)); err != nil {
		t.Fatalf("put replace: %v", err)
	}
	e, _ = c.Get("GET", "https://api.example.com/sites?walk=9")
	if string(e.Body) != `[]` {
		t.Errorf("replaced body: got %s, want []", e.Body)
	}

	n, err := c.Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Errorf("len: got %d, want 1", n)
	}
}

func TestCache_GetMissReturnsNil(t *testing.T) {
	c := New(NewMemStore())
	e, err := c.Get("GET", "https://api.example.com/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e != nil {
		t.Errorf("expected nil on miss, got %+v", e)
	}
}

func TestCache_InvalidateURL(t *testing.T) {
	c := New(NewMemStore())

	urls := []string{
		"https://api.example.com/v1/sites?walk=9",
		"https://api.example.com/v1/sites?walk=10",
		"https://api.example.com/v1/sites/srv-42",
		"https://api.example.com/v1/walks",
	}
	for _, u := range urls {
		if err := c.Put("GET", u, PartitionAPI, 200, "", []byte("x")); err != nil {
			t.Fatalf("put %s: %v", u, err)
		}
	}

	n, err := c.InvalidateURL("https://api.example.com/v1/sites?walk=9")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if n != 3 {
		t.Errorf("invalidated: got %d, want 3 (query variants and item)", n)
	}
	if e, _ := c.Get("GET", "https://api.example.com/v1/walks"); e == nil {
		t.Error("unrelated entry should survive")
	}
}

func TestCache_DeleteAndPurge(t *testing.T) {
	c := New(NewMemStore())

	puts := []struct {
		url string
		p   Partition
	}{
		{"https://app.example.com/main.abc123.js", PartitionStatic},
		{"https://app.example.com/logo.png", PartitionStatic},
		{"https://app.example.com/walks/9", PartitionDocuments},
		{"https://api.example.com/sites?walk=9", PartitionAPI},
	}
	for _, p := range puts {
		if err := c.Put("GET", p.url, p.p, 200, "", []byte("x")); err != nil {
			t.Fatalf("put %s: %v", p.url, err)
		}
	}

	if err := c.Delete("GET", "https://app.example.com/logo.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if e, _ := c.Get("GET", "https://app.example.com/logo.png"); e != nil {
		t.Error("entry should be gone after delete")
	}

	n, err := c.Purge(PartitionStatic)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged: got %d, want 1", n)
	}

	total, _ := c.Len()
	if total != 2 {
		t.Errorf("remaining: got %d, want 2", total)
	}
}
