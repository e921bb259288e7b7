package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradegate/internal/domain"
)

// Supervisor is the single authority for connecting the session. Every
// request path calls EnsureConnected before touching the upstream; at most
// one physical connect attempt is in flight at any time, and all concurrent
// callers share that attempt's outcome.
//
// Retry policy: one primary attempt bounded by connectTimeout, then one
// blocking fallback. If both fail the state moves to Failed; the next inbound
// request still retries lazily. There is deliberately no background
// reconnection loop.
type Supervisor struct {
	session        *Session
	connectTimeout time.Duration
	log            *slog.Logger

	mu       sync.Mutex
	inflight *connectAttempt
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// NewSupervisor creates a Supervisor for the session. connectTimeout bounds
// the primary (non-blocking) connect path.
func NewSupervisor(session *Session, connectTimeout time.Duration, log *slog.Logger) *Supervisor {
	return &Supervisor{
		session:        session,
		connectTimeout: connectTimeout,
		log:            log.With("component", "supervisor"),
	}
}

// EnsureConnected is idempotent and safe for many concurrent callers. If the
// session is already connected it returns immediately; otherwise exactly one
// caller performs the connect while the rest await its result.
func (v *Supervisor) EnsureConnected(ctx context.Context) error {
	if v.session.IsConnected() {
		return nil
	}

	v.mu.Lock()
	if v.session.IsConnected() {
		v.mu.Unlock()
		return nil
	}
	if a := v.inflight; a != nil {
		v.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &connectAttempt{done: make(chan struct{})}
	v.inflight = a
	v.mu.Unlock()

	a.err = v.connect(ctx)

	v.mu.Lock()
	v.inflight = nil
	v.mu.Unlock()
	close(a.done)

	return a.err
}

// connect runs the primary attempt with its short timeout, then the single
// blocking fallback.
func (v *Supervisor) connect(ctx context.Context) error {
	v.session.setState(StateConnecting, nil)

	cctx, cancel := context.WithTimeout(ctx, v.connectTimeout)
	primaryErr := v.session.api.Connect(cctx)
	cancel()
	if primaryErr == nil {
		v.session.setState(StateConnected, nil)
		v.log.Info("upstream connected", "provider", v.session.Provider())
		return nil
	}

	v.log.Warn("primary connect failed, trying blocking fallback", "error", primaryErr)

	fallbackErr := v.session.api.Connect(ctx)
	if fallbackErr != nil {
		err := fmt.Errorf("%w (primary: %v, fallback: %v)", domain.ErrConnectionFailed, primaryErr, fallbackErr)
		v.session.setState(StateFailed, err)
		v.log.Error("all connect attempts failed", "error", fallbackErr)
		return err
	}

	v.session.setState(StateConnected, nil)
	v.log.Info("upstream connected via fallback", "provider", v.session.Provider())
	return nil
}
