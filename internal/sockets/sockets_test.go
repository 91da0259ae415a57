package sockets

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

type fakeViewer struct {
	id     string
	mu     sync.Mutex
	frames int
	broken bool
	closed bool
}

func (v *fakeViewer) ID() string { return v.id }

func (v *fakeViewer) Send(frame []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.broken || v.closed {
		return domain.ErrDelivery
	}
	v.frames++
	return nil
}

func (v *fakeViewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func TestBroadcastPrunesFailedViewers(t *testing.T) {
	p := NewViewerPool()
	good := &fakeViewer{id: "good"}
	bad := &fakeViewer{id: "bad", broken: true}
	p.Register(good)
	p.Register(bad)

	if n := p.Broadcast([]byte("frame")); n != 1 {
		t.Errorf("Broadcast() = %d, want 1", n)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
	if !bad.closed {
		t.Error("failed viewer was not closed")
	}

	p.Broadcast([]byte("frame"))
	if good.frames != 2 {
		t.Errorf("good viewer frames = %d, want 2", good.frames)
	}
}

func TestBroadcastEmptyPool(t *testing.T) {
	if n := NewViewerPool().Broadcast([]byte("frame")); n != 0 {
		t.Errorf("Broadcast() = %d, want 0", n)
	}
}

func TestRegisterReplacesSameID(t *testing.T) {
	p := NewViewerPool()
	first := &fakeViewer{id: "v"}
	second := &fakeViewer{id: "v"}
	p.Register(first)
	p.Register(second)

	if !first.closed {
		t.Error("replaced viewer was not closed")
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	p := NewViewerPool()
	p.Register(&fakeViewer{id: "v"})
	p.Unregister("v")
	p.Unregister("v")
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	block   chan struct{}
	fail    bool
	closed  bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func TestWSViewerDelivers(t *testing.T) {
	conn := &fakeConn{}
	v := NewWSViewer("v", conn, 4, time.Second)
	defer v.Close()

	for range 3 {
		if err := v.Send([]byte("f")); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for conn.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if conn.count() != 3 {
		t.Errorf("written = %d, want 3", conn.count())
	}
}

func TestWSViewerDropsWhenQueueFull(t *testing.T) {
	conn := &fakeConn{block: make(chan struct{})}
	v := NewWSViewer("v", conn, 1, time.Second)

	// One frame is held by the blocked writer, one fills the queue, the
	// rest are dropped without blocking.
	for range 10 {
		if err := v.Send([]byte("f")); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	close(conn.block)
	_ = v.Close()
}

func TestWSViewerFailedWrite(t *testing.T) {
	conn := &fakeConn{fail: true}
	v := NewWSViewer("v", conn, 1, time.Second)
	_ = v.Send([]byte("f"))

	select {
	case <-v.Done():
	case <-time.After(time.Second):
		t.Fatal("viewer still open after write failure")
	}
	if err := v.Send([]byte("f")); !errors.Is(err, domain.ErrDelivery) {
		t.Errorf("Send() error = %v, want %v", err, domain.ErrDelivery)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if !conn.closed {
		t.Error("connection not closed")
	}
}
