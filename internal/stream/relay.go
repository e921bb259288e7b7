package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradegate/internal/domain"
	"tradegate/internal/upstream"
	"tradegate/internal/util"
)

// Journal persists order events. The sqlite store implements it; a nil
// journal disables persistence.
type Journal interface {
	Append(ctx context.Context, u domain.OrderUpdate) error
}

// Relay owns the single upstream order-event listener. Every event updates
// the in-memory order table, is appended to the journal, and is fanned out
// to the attached WebSocket listeners. Listeners attach and detach
// symmetrically; a full listener buffer drops events for that listener only.
type Relay struct {
	session *upstream.Session
	journal Journal
	buf     int
	log     *slog.Logger

	mu        sync.Mutex
	listeners map[string]chan domain.OrderUpdate
	orders    map[string]domain.Order
}

// NewRelay creates a Relay. journal may be nil. buf sizes each listener's
// event buffer.
func NewRelay(session *upstream.Session, journal Journal, buf int, log *slog.Logger) *Relay {
	return &Relay{
		session:   session,
		journal:   journal,
		buf:       buf,
		log:       log.With("component", "relay"),
		listeners: make(map[string]chan domain.OrderUpdate),
		orders:    make(map[string]domain.Order),
	}
}

// Run keeps the upstream listener alive for the life of ctx. While the
// session is down it idles; once connected it streams until the stream or
// the session fails, then waits for the next connect.
func (r *Relay) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if !r.session.IsConnected() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		err := r.session.StreamOrderUpdates(ctx, r.dispatch)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrNotConnected) {
			r.log.Warn("order stream ended", "error", err)
			// Pause before redialing so a stream that fails immediately, with
			// the session still up, cannot spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
}

// dispatch handles one upstream event.
func (r *Relay) dispatch(u domain.OrderUpdate) {
	r.mu.Lock()
	o := r.orders[u.OrderID]
	o.ID = u.OrderID
	if u.PermID != "" {
		o.PermID = u.PermID
	}
	if u.Symbol != "" {
		o.Symbol = u.Symbol
	}
	o.Status = u.Status
	o.FilledQty = u.FilledQty
	o.RemainingQty = u.RemainingQty
	o.AvgFillPrice = u.AvgFillPrice
	o.UpdatedAt = u.At
	r.orders[u.OrderID] = o

	// Fan out under the lock: sends are non-blocking, and Detach closes
	// channels under the same lock, so no send can race a close.
	for _, ch := range r.listeners {
		select {
		case ch <- u:
		default:
			// Listener buffer full; it misses this event.
		}
	}
	r.mu.Unlock()

	if r.journal != nil {
		// A transient write failure should not lose the event.
		err := util.Retry(context.Background(), 3, 50*time.Millisecond, func() error {
			return r.journal.Append(context.Background(), u)
		})
		if err != nil {
			r.log.Warn("journal append failed", "orderId", u.OrderID, "error", err)
		}
	}
}

// Attach registers a listener and returns its id and event channel.
func (r *Relay) Attach() (string, <-chan domain.OrderUpdate) {
	id := uuid.NewString()
	ch := make(chan domain.OrderUpdate, r.buf)

	r.mu.Lock()
	r.listeners[id] = ch
	n := len(r.listeners)
	r.mu.Unlock()

	r.log.Debug("order listener attached", "listener", id, "total", n)
	return id, ch
}

// Detach removes a listener. Unknown ids are ignored.
func (r *Relay) Detach(id string) {
	r.mu.Lock()
	ch, ok := r.listeners[id]
	if ok {
		delete(r.listeners, id)
		close(ch)
	}
	r.mu.Unlock()

	if ok {
		r.log.Debug("order listener detached", "listener", id)
	}
}

// Orders returns a copy of the current order table.
func (r *Relay) Orders() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out
}

// Order looks one order up by id.
func (r *Relay) Order(id string) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	return o, ok
}
