// Package await correlates operations that expect an asynchronous device
// reply with the event that answers them. A registration is keyed either by
// an exact token (acknowledgment codes) or by event kind alone (replies
// that carry no token, like login results). Each event is claimed by at
// most one waiter; unclaimed events stay available to the caller for
// passive display.
package await

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"meshpilot/internal/logger"
	"meshpilot/pkg/pilottypes"
)

// DefaultFallback is the reply wait applied when neither the contact nor
// the device suggests a timeout.
const DefaultFallback = 5 * time.Second

// Wait outcomes and registration failures.
var (
	ErrTimeout       = errors.New("timed out waiting for reply")
	ErrCanceled      = errors.New("wait canceled")
	ErrDuplicateWait = errors.New("a wait is already registered for this key")
)

// Wait is one outstanding registration. Its result channel is buffered so
// delivery never blocks the event pump.
type Wait struct {
	ID    string
	Kind  pilottypes.EventKind
	Token string // "" matches the first event of Kind

	kinds  []pilottypes.EventKind // Kind plus alternates for any-of waits
	coord  *Coordinator
	result chan pilottypes.Event
}

func (w *Wait) matches(kind pilottypes.EventKind) bool {
	for _, k := range w.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Coordinator owns the waiter table. Deliver is called from the event pump;
// Register, Await and Cancel from the session loop.
type Coordinator struct {
	mu      sync.Mutex
	waiters []*Wait // registration order, scanned FIFO
	log     *log.Logger
}

// New returns an empty coordinator.
func New() *Coordinator {
	return &Coordinator{log: logger.NewStyledLogger("Await")}
}

// Register creates a wait for the next event of kind whose token matches.
// An empty token matches the first event of the kind regardless of token.
// Only one wait may be outstanding per (kind, token) key; a second
// registration fails with ErrDuplicateWait so callers serialize instead of
// racing for the same reply.
func (c *Coordinator) Register(kind pilottypes.EventKind, token string) (*Wait, error) {
	return c.register([]pilottypes.EventKind{kind}, token)
}

// RegisterAny creates a tokenless wait fulfilled by the first event matching
// any of the given kinds. Used where either of two kinds answers the same
// question, like a direct or a channel message both ending a message wait.
func (c *Coordinator) RegisterAny(kinds ...pilottypes.EventKind) (*Wait, error) {
	if len(kinds) == 0 {
		return nil, errors.New("wait needs at least one event kind")
	}
	return c.register(kinds, "")
}

func (c *Coordinator) register(kinds []pilottypes.EventKind, token string) (*Wait, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.waiters {
		for _, k := range kinds {
			if w.matches(k) && w.Token == token {
				return nil, ErrDuplicateWait
			}
		}
	}
	w := &Wait{
		ID:     uuid.NewString(),
		Kind:   kinds[0],
		Token:  token,
		kinds:  kinds,
		coord:  c,
		result: make(chan pilottypes.Event, 1),
	}
	c.waiters = append(c.waiters, w)
	c.log.Debug("Wait registered", "id", w.ID, "event", kindLabel(kinds), "token", token)
	return w, nil
}

func kindLabel(kinds []pilottypes.EventKind) string {
	if len(kinds) == 1 {
		return kinds[0].String()
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "|")
}

// Pending returns the number of outstanding registrations.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Deliver offers an event to the waiter table and reports whether a waiter
// claimed it. Exact-token waiters are checked before first-of-kind ones so
// a tokenless wait cannot steal another operation's acknowledgment; events
// whose token matches no exact waiter fall through to the first tokenless
// waiter of the kind, registration order deciding ties. A claimed waiter
// leaves the table before the event is handed over, so a concurrent
// timeout observes either the claim or the registration, never both.
func (c *Coordinator) Deliver(ev pilottypes.Event) bool {
	token := ev.Token()

	c.mu.Lock()
	defer c.mu.Unlock()

	if token != "" {
		for i, w := range c.waiters {
			if w.matches(ev.Kind) && w.Token == token {
				c.claimLocked(i, ev)
				return true
			}
		}
	}
	for i, w := range c.waiters {
		if w.matches(ev.Kind) && w.Token == "" {
			c.claimLocked(i, ev)
			return true
		}
	}
	return false
}

func (c *Coordinator) claimLocked(i int, ev pilottypes.Event) {
	w := c.waiters[i]
	c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
	w.result <- ev
	c.log.Debug("Wait fulfilled", "id", w.ID, "event", ev.Kind.String(), "token", ev.Token())
}

// remove drops a wait from the table; reports whether it was still there.
func (c *Coordinator) remove(w *Wait) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cand := range c.waiters {
		if cand == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Await blocks until the wait is fulfilled, the timeout elapses, or ctx is
// done. The timeout is a wall-clock deadline, not dependent on events
// flowing. Expiry removes the registration and returns ErrTimeout; if the
// reply was claimed in the same instant, the reply wins. Context
// cancellation behaves the same way with ErrCanceled.
func (c *Coordinator) Await(ctx context.Context, w *Wait, timeout time.Duration) (pilottypes.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.result:
		return ev, nil
	case <-timer.C:
		if !c.remove(w) {
			// Claimed while the timer fired; the reply is already buffered.
			select {
			case ev := <-w.result:
				return ev, nil
			default:
			}
		}
		c.log.Debug("Wait timed out", "id", w.ID, "event", kindLabel(w.kinds), "timeout", timeout)
		return pilottypes.Event{}, ErrTimeout
	case <-ctx.Done():
		if !c.remove(w) {
			select {
			case ev := <-w.result:
				return ev, nil
			default:
			}
		}
		return pilottypes.Event{}, ErrCanceled
	}
}

// Cancel withdraws the registration. Idempotent; a reply that was already
// claimed for this wait is discarded.
func (w *Wait) Cancel() {
	if w.coord.remove(w) {
		w.coord.log.Debug("Wait canceled", "id", w.ID, "event", w.Kind.String())
		return
	}
	select {
	case <-w.result:
		w.coord.log.Debug("Wait canceled after fulfillment, reply dropped", "id", w.ID)
	default:
	}
}

// Effective computes the reply wait for an operation: the contact's own
// override when set, else the device-suggested value scaled up by a
// quarter to absorb scheduling jitter, else the fallback (DefaultFallback
// when the caller passes none).
func Effective(c *pilottypes.Contact, suggested, fallback time.Duration) time.Duration {
	if c != nil && c.ResponseTimeout > 0 {
		return c.ResponseTimeout
	}
	if suggested > 0 {
		return suggested + suggested/4
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultFallback
}
