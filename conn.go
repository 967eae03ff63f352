package mytunmcp

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Session is the database side of the orchestrator: a lazily-created pool
// bound to the tunnel's local endpoint. internal/session provides the real
// implementation; tests substitute fakes.
type Session interface {
	// DB returns the existing pool or lazily constructs one. Only called
	// after the tunnel is confirmed open.
	DB(ctx context.Context) (*sql.DB, error)
	// TestConnection reports health as a bool, never an error.
	TestConnection(ctx context.Context) bool
	// Close ends the pool; safe to call when none exists.
	Close()
}

// tunnelControl is the tunnel manager surface the orchestrator drives.
type tunnelControl interface {
	Open(ctx context.Context) error
	Close()
	Alive() bool
	LocalAddr() string
}

// connState tracks where the orchestrator is in the tunnel lifecycle.
type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateReady
	stateRecovering
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateReady:
		return "ready"
	case stateRecovering:
		return "recovering"
	default:
		return "idle"
	}
}

// Orchestrator composes the tunnel manager and the database session. It is
// the exclusive owner of both: every create and clear happens under its
// mutex, so a query is never dispatched while teardown is in progress.
//
// A tunnel and its session are always torn down together. The generation
// counter increments on every teardown, which lets the idle timer and the
// asynchronous drop notification detect that the incarnation they were
// armed for is already gone.
type Orchestrator struct {
	mu          sync.Mutex
	tun         tunnelControl
	openSession func(localAddr string) Session
	sess        Session
	state       connState
	gen         uint64
	idle        *time.Timer
	idleTimeout time.Duration
	closed      bool
	logger      zerolog.Logger
}

func newOrchestrator(tun tunnelControl, openSession func(string) Session, idleTimeout time.Duration, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		tun:         tun,
		openSession: openSession,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// Run ensures the tunnel and session exist, then executes fn. A transient
// connection failure triggers exactly one teardown+reopen+retry cycle; a
// second transient failure is surfaced as-is. Non-transient errors surface
// immediately with the tunnel left warm. The idle timer is reset on success.
func (o *Orchestrator) Run(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	for attempt := 0; ; attempt++ {
		sess, gen, err := o.acquire(ctx)
		if err != nil {
			return &TunnelError{Cause: err}
		}

		err = fn(ctx, sess)
		if err == nil {
			o.touch(gen)
			return nil
		}
		if !isTransient(err) {
			// The query failed, not the connection: keep the tunnel warm.
			return err
		}
		if attempt >= 1 {
			o.logger.Error().Err(err).Msg("retry after reconnect failed, surfacing error")
			return err
		}

		o.logger.Warn().Err(err).Msg("transient connection error, reconnecting for a single retry")
		o.recover(gen)
	}
}

// TunnelAlive reports whether a tunnel handle currently exists.
func (o *Orchestrator) TunnelAlive() bool {
	return o.tun.Alive()
}

// State returns the current lifecycle state name.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.String()
}

// Shutdown synchronously cancels the idle timer and closes session and
// tunnel. Cleanup is best-effort; the orchestrator refuses further work.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.teardownLocked()
	o.logger.Info().Msg("orchestrator shut down")
}

// acquire returns the current session, opening tunnel and session first when
// needed. Serialized on the mutex: a second caller arriving while an open is
// in flight blocks here and then observes the first caller's outcome instead
// of racing a duplicate open.
func (o *Orchestrator) acquire(ctx context.Context) (Session, uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, 0, errors.New("orchestrator is shut down")
	}
	if o.sess != nil && o.tun.Alive() {
		return o.sess, o.gen, nil
	}

	// Either nothing is open yet, or the tunnel died under a session that
	// still exists. Start from a clean slate in both cases.
	o.teardownLocked()

	o.state = stateConnecting
	if err := o.tun.Open(ctx); err != nil {
		o.state = stateIdle
		return nil, 0, err
	}

	o.sess = o.openSession(o.tun.LocalAddr())
	o.state = stateReady
	o.armTimerLocked()
	o.logger.Debug().Uint64("generation", o.gen).Msg("tunnel and session ready")
	return o.sess, o.gen, nil
}

// touch reschedules the idle timer after a successful operation, unless the
// incarnation it belongs to is already gone.
func (o *Orchestrator) touch(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.gen || o.sess == nil {
		return
	}
	o.armTimerLocked()
}

// recover tears down the given incarnation ahead of a retry. A no-op when
// another path (drop notification, concurrent recovery) got there first.
func (o *Orchestrator) recover(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.gen {
		return
	}
	o.state = stateRecovering
	o.teardownLocked()
}

// handleDrop is registered as the tunnel manager's drop callback. It runs on
// the watcher goroutine, so all it does is post the teardown into the
// orchestrator's serialized control path.
func (o *Orchestrator) handleDrop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.sess == nil {
		return
	}
	if o.tun.Alive() {
		// The manager clears its handle before notifying, so a live tunnel
		// here means the drop belonged to an earlier incarnation that has
		// already been replaced.
		return
	}
	o.logger.Warn().Uint64("generation", o.gen).Msg("tunnel dropped, invalidating session")
	o.teardownLocked()
}

// armTimerLocked cancels any pending idle timer and schedules a new one.
// At most one live timer exists at a time. Caller holds the mutex.
func (o *Orchestrator) armTimerLocked() {
	if o.idle != nil {
		o.idle.Stop()
	}
	gen := o.gen
	o.idle = time.AfterFunc(o.idleTimeout, func() { o.idleFire(gen) })
}

// idleFire tears everything down after a full idle window with no activity.
// The generation check makes firing against a newer tunnel a no-op.
func (o *Orchestrator) idleFire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.gen {
		return
	}
	o.logger.Info().Dur("idle_timeout", o.idleTimeout).Msg("idle timeout reached, closing tunnel and session")
	o.teardownLocked()
}

// teardownLocked closes session then tunnel, cancels the timer, and bumps
// the generation. The timer is always cancelled before the closes, so the
// idle path can never re-enter a teardown in progress. Cleanup errors are
// suppressed inside the components. Caller holds the mutex.
func (o *Orchestrator) teardownLocked() {
	if o.idle != nil {
		o.idle.Stop()
		o.idle = nil
	}
	if o.sess != nil {
		o.sess.Close()
		o.sess = nil
	}
	o.tun.Close()
	o.gen++
	o.state = stateIdle
}
