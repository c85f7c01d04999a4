package netmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (p *fakeProber) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// collector records committed transitions.
type collector struct {
	mu     sync.Mutex
	states []bool
}

func (c *collector) record(online bool) {
	c.mu.Lock()
	c.states = append(c.states, online)
	c.mu.Unlock()
}

func (c *collector) snapshot() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bool, len(c.states))
	copy(out, c.states)
	return out
}

func TestStart_SeedsFromProbe(t *testing.T) {
	p := &fakeProber{}
	m := New(p, 10*time.Millisecond, time.Hour)
	defer m.Close()
	m.Start(context.Background())

	if !m.IsOnline() {
		t.Error("healthy probe should seed online")
	}

	p.set(errors.New("dial tcp: no route"))
	m2 := New(p, 10*time.Millisecond, time.Hour)
	defer m2.Close()
	m2.Start(context.Background())
	if m2.IsOnline() {
		t.Error("failing probe should seed offline")
	}
}

func TestReport_DebouncedTransition(t *testing.T) {
	p := &fakeProber{err: errors.New("offline")}
	m := New(p, 20*time.Millisecond, time.Hour)
	defer m.Close()
	m.Start(context.Background())

	var c collector
	unsub := m.OnChange(c.record)
	defer unsub()

	m.Report(true)
	if m.IsOnline() {
		t.Error("state should not commit before the debounce window")
	}

	time.Sleep(60 * time.Millisecond)
	if !m.IsOnline() {
		t.Error("state should commit after the debounce window")
	}
	if got := c.snapshot(); len(got) != 1 || !got[0] {
		t.Errorf("notifications: got %v, want [true]", got)
	}
}

func TestReport_FlapCoalesced(t *testing.T) {
	p := &fakeProber{}
	m := New(p, 30*time.Millisecond, time.Hour)
	defer m.Close()
	m.Start(context.Background()) // seeds online

	var c collector
	unsub := m.OnChange(c.record)
	defer unsub()

	// Offline blip that recovers inside the window.
	m.Report(false)
	time.Sleep(5 * time.Millisecond)
	m.Report(true)

	time.Sleep(80 * time.Millisecond)
	if !m.IsOnline() {
		t.Error("flap should leave state online")
	}
	if got := c.snapshot(); len(got) != 0 {
		t.Errorf("flap should produce no notifications, got %v", got)
	}
}

func TestOnChange_Unsubscribe(t *testing.T) {
	p := &fakeProber{}
	m := New(p, 5*time.Millisecond, time.Hour)
	defer m.Close()
	m.Start(context.Background())

	var c collector
	unsub := m.OnChange(c.record)
	unsub()

	m.Report(false)
	time.Sleep(30 * time.Millisecond)
	if got := c.snapshot(); len(got) != 0 {
		t.Errorf("unsubscribed callback ran: %v", got)
	}
}

func TestReport_RepeatedSameStateNoDuplicateNotify(t *testing.T) {
	p := &fakeProber{}
	m := New(p, 5*time.Millisecond, time.Hour)
	defer m.Close()
	m.Start(context.Background())

	var c collector
	unsub := m.OnChange(c.record)
	defer unsub()

	m.Report(false)
	m.Report(false)
	m.Report(false)
	time.Sleep(40 * time.Millisecond)

	if got := c.snapshot(); len(got) != 1 || got[0] {
		t.Errorf("notifications: got %v, want [false]", got)
	}
}
