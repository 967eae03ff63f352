// Package tunnel manages the lifecycle of a single SSH-forwarded local port.
//
// The Manager owns at most one tunnel handle at a time: an SSH connection to
// the bastion host plus a local TCP listener whose accepted connections are
// relayed to the remote database endpoint over direct-tcpip channels. The
// handle is created by Open, destroyed by Close, and cleared asynchronously
// when the underlying SSH connection drops on its own.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Conn is the subset of an established SSH client connection the Manager
// needs: opening channels to the remote side, observing connection death,
// and teardown.
type Conn interface {
	// Dial opens a forwarded connection to addr on the remote side.
	Dial(network, addr string) (net.Conn, error)
	// Wait blocks until the underlying connection is closed, returning the
	// close reason.
	Wait() error
	Close() error
}

// Dialer establishes SSH connections. The production implementation lives in
// ssh.go; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Config holds the endpoints of the forwarding path.
type Config struct {
	LocalPort  int    // local listener port
	RemoteHost string // database host as seen from the SSH host
	RemotePort int    // database port as seen from the SSH host
}

// Manager owns the single tunnel handle.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	dialer Dialer
	onDrop func()
	handle *handle
	logger zerolog.Logger
}

// handle bundles the live SSH connection with its local listener.
type handle struct {
	conn Conn
	ln   net.Listener
}

// NewManager creates a Manager. onDrop, if non-nil, is invoked from a
// background goroutine whenever the SSH connection closes without Close
// having been called — never for deliberate teardown.
func NewManager(cfg Config, dialer Dialer, onDrop func(), logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		onDrop: onDrop,
		logger: logger,
	}
}

// Open establishes the tunnel if it is not already up. Idempotent: when a
// handle exists it returns immediately with no side effects. Concurrent
// callers serialize on the manager's mutex, so a second caller blocks until
// the first attempt resolves and then observes its outcome. On failure no
// partial state is retained.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		return nil
	}

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("ssh connect failed: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", m.cfg.LocalPort))
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			m.logger.Warn().Err(cerr).Msg("closing ssh connection after bind failure")
		}
		return fmt.Errorf("local bind failed on port %d: %w", m.cfg.LocalPort, err)
	}

	h := &handle{conn: conn, ln: ln}
	m.handle = h

	go m.serve(h)
	go m.watch(h)

	m.logger.Info().
		Str("local_addr", ln.Addr().String()).
		Str("remote", fmt.Sprintf("%s:%d", m.cfg.RemoteHost, m.cfg.RemotePort)).
		Msg("tunnel opened")
	return nil
}

// Close tears the tunnel down. Idempotent: a no-op when no handle exists.
// Teardown errors are logged, never propagated, and the handle is cleared
// unconditionally.
func (m *Manager) Close() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if h == nil {
		return
	}
	// Clearing the handle before closing the connection keeps the watcher
	// from treating this as an unsolicited drop.
	if err := h.ln.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("closing tunnel listener")
	}
	if err := h.conn.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("closing ssh connection")
	}
	m.logger.Info().Msg("tunnel closed")
}

// Alive reports whether a handle currently exists.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// LocalAddr returns the address queries should connect to.
func (m *Manager) LocalAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", m.cfg.LocalPort)
}

// serve accepts local connections and relays each through the SSH connection
// until the listener is closed.
func (m *Manager) serve(h *handle) {
	remoteAddr := fmt.Sprintf("%s:%d", m.cfg.RemoteHost, m.cfg.RemotePort)
	for {
		local, err := h.ln.Accept()
		if err != nil {
			// Listener closed during teardown or drop.
			return
		}
		go m.forward(h, local, remoteAddr)
	}
}

// forward relays bytes between a local connection and a fresh channel to the
// remote database endpoint.
func (m *Manager) forward(h *handle, local net.Conn, remoteAddr string) {
	remote, err := h.conn.Dial("tcp", remoteAddr)
	if err != nil {
		m.logger.Warn().Err(err).Str("remote", remoteAddr).Msg("forward dial failed")
		local.Close()
		return
	}
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
	local.Close()
	remote.Close()
	<-done
}

// watch blocks on the SSH connection and clears the handle when it dies out
// from under us, so a later Open re-establishes instead of trusting a stale
// handle.
func (m *Manager) watch(h *handle) {
	err := h.conn.Wait()

	m.mu.Lock()
	dropped := m.handle == h
	if dropped {
		m.handle = nil
	}
	m.mu.Unlock()

	if !dropped {
		// Deliberate Close already cleared the handle.
		return
	}

	m.logger.Warn().Err(err).Msg("ssh connection dropped")
	if cerr := h.ln.Close(); cerr != nil {
		m.logger.Warn().Err(cerr).Msg("closing listener after drop")
	}
	if m.onDrop != nil {
		m.onDrop()
	}
}
