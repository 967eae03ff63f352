package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeConn is an in-memory stand-in for an established SSH connection. Its
// Dial returns one end of a net.Pipe whose other end is served by echo.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
	dead   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{dead: make(chan struct{})}
}

func (c *fakeConn) Dial(network, addr string) (net.Conn, error) {
	local, remote := net.Pipe()
	go echo(remote)
	return local, nil
}

func (c *fakeConn) Wait() error {
	<-c.dead
	return errors.New("connection lost")
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.dead)
	}
	return nil
}

// drop simulates the remote side going away without Close being called.
func (c *fakeConn) drop() {
	c.Close()
}

func echo(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			return
		}
	}
}

// fakeDialer hands out fakeConns and counts dial attempts.
type fakeDialer struct {
	dials atomic.Int64
	err   error
	delay time.Duration

	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func newTestManager(t *testing.T, d Dialer, onDrop func()) *Manager {
	t.Helper()
	cfg := Config{
		LocalPort:  freePort(t),
		RemoteHost: "127.0.0.1",
		RemotePort: 3306,
	}
	m := NewManager(cfg, d, onDrop, zerolog.Nop())
	t.Cleanup(m.Close)
	return m
}

func TestOpenIdempotent(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if got := d.dials.Load(); got != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", got)
	}
	if !m.Alive() {
		t.Fatal("expected tunnel alive after open")
	}
}

func TestOpenDialFailureLeavesNoHandle(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{err: errors.New("auth failed")}
	m := newTestManager(t, d, nil)

	if err := m.Open(context.Background()); err == nil {
		t.Fatal("expected open to fail")
	}
	if m.Alive() {
		t.Fatal("expected no handle after failed open")
	}
	// The local port must not have been left bound.
	l, err := net.Listen("tcp", m.LocalAddr())
	if err != nil {
		t.Fatalf("local port still bound after failed open: %v", err)
	}
	l.Close()
}

func TestOpenBindFailureClosesConn(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	// Occupy the local port so the bind fails.
	blocker, err := net.Listen("tcp", m.LocalAddr())
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer blocker.Close()

	if err := m.Open(context.Background()); err == nil {
		t.Fatal("expected open to fail on bind")
	}
	if m.Alive() {
		t.Fatal("expected no handle after bind failure")
	}
	conn := d.lastConn()
	if conn == nil {
		t.Fatal("expected a dial to have happened")
	}
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Fatal("expected ssh connection closed after bind failure")
	}
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	m.Close() // no handle yet, must not panic

	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	m.Close()
	m.Close()
	if m.Alive() {
		t.Fatal("expected handle cleared after close")
	}
}

func TestForwardingRelaysBytes(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	m := newTestManager(t, d, nil)

	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	conn, err := net.Dial("tcp", m.LocalAddr())
	if err != nil {
		t.Fatalf("failed to dial local end: %v", err)
	}
	defer conn.Close()

	msg := []byte("SELECT 1")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("expected %q echoed back, got %q", msg, buf)
	}
}

func TestUnsolicitedDropClearsHandleAndNotifies(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	dropped := make(chan struct{})
	m := newTestManager(t, d, func() { close(dropped) })

	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	d.lastConn().drop()

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("onDrop was not invoked after connection drop")
	}
	if m.Alive() {
		t.Fatal("expected handle cleared after drop")
	}

	// A subsequent open must re-establish rather than reuse the dead handle.
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := d.dials.Load(); got != 2 {
		t.Fatalf("expected a fresh dial on reopen, got %d total dials", got)
	}
}

func TestDeliberateCloseDoesNotNotify(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	var notified atomic.Bool
	m := newTestManager(t, d, func() { notified.Store(true) })

	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	m.Close()

	// Give the watcher goroutine a chance to run after Close.
	time.Sleep(100 * time.Millisecond)
	if notified.Load() {
		t.Fatal("onDrop must not fire for deliberate Close")
	}
}

func TestConcurrentOpenSingleDial(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{delay: 50 * time.Millisecond}
	m := newTestManager(t, d, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Open(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
	}
	if got := d.dials.Load(); got != 1 {
		t.Fatalf("expected exactly 1 dial for concurrent opens, got %d", got)
	}
}
