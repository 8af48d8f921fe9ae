// Package correlation issues the opaque ids that tie results back to the
// commands that produced them, and holds the front-end's pending-request
// bookkeeping.
package correlation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// Outcome is delivered to exactly one waiter per correlation id: either a
// decoded result or a terminal error, never both.
type Outcome struct {
	Result protocol.Result
	Err    error
}

type pendingCall struct {
	ch       chan Outcome
	issuedAt time.Time
}

// Tracker matches inbound results to outstanding requests. All map access is
// serialized behind the mutex, so resolution and timeout removal are
// mutually exclusive: whichever path claims the entry first owns the waiter.
type Tracker struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]pendingCall
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:  logger.Named("correlation"),
		pending: make(map[string]pendingCall),
	}
}

// NewID returns a correlation id unique among outstanding requests for this
// process run.
func (t *Tracker) NewID() string {
	return uuid.New().String()
}

// Register creates a pending entry for id and returns the channel its
// outcome will arrive on. The channel is buffered so the resolving side
// never blocks on a caller that has already moved on.
func (t *Tracker) Register(id string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	t.mu.Lock()
	t.pending[id] = pendingCall{ch: ch, issuedAt: time.Now()}
	t.mu.Unlock()
	return ch
}

// Resolve fulfills the pending entry for id, returning true iff one existed.
// An unknown id is a logged no-op: a late reply to a timed-out call must not
// crash the caller.
func (t *Tracker) Resolve(id string, res protocol.Result) bool {
	call, ok := t.take(id)
	if !ok {
		t.logger.Debug("Dropping result with no pending request (likely timed out)",
			zap.String("correlation_id", id), zap.String("resource", res.Resource))
		return false
	}
	call.ch <- Outcome{Result: res}
	return true
}

// Reject fails the pending entry for id with err, returning true iff one
// existed.
func (t *Tracker) Reject(id string, err error) bool {
	call, ok := t.take(id)
	if !ok {
		return false
	}
	call.ch <- Outcome{Err: err}
	return true
}

// Remove discards the pending entry for id without delivering anything. The
// gateway calls this on its timeout path; a result arriving afterwards is
// dropped as unmatched.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// RejectAll fails every pending entry with err. Used on transport teardown
// so no caller hangs on a dead socket.
func (t *Tracker) RejectAll(err error) {
	t.mu.Lock()
	drained := t.pending
	t.pending = make(map[string]pendingCall)
	t.mu.Unlock()

	for id, call := range drained {
		t.logger.Debug("Rejecting pending request on transport teardown",
			zap.String("correlation_id", id),
			zap.Duration("age", time.Since(call.issuedAt)))
		call.ch <- Outcome{Err: err}
	}
}

// PendingCount reports how many requests are currently outstanding.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// take claims and removes the entry for id under the lock.
func (t *Tracker) take(id string) (pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return call, ok
}
