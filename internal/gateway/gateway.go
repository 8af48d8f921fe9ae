// Package gateway is the front-end's call-and-await surface: it allocates a
// correlation id per command, sends it over whichever transport endpoints
// are open, and parks the caller until the matching result or a timeout
// arrives, whichever is first, never both.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabwire/internal/correlation"
	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// DefaultCallTimeout bounds a call when the caller does not set one.
const DefaultCallTimeout = 30 * time.Second

// ErrTimeout is returned when no matching result arrives within the
// deadline. It is distinct from transport and agent errors so callers can
// tell "gave up waiting" from "could not send" from "agent said no".
var ErrTimeout = errors.New("gateway: timed out waiting for browser agent")

// ErrAgent wraps an explicit failure result returned by the agent for a
// single-target primitive (e.g. tab not found).
var ErrAgent = errors.New("gateway: browser agent reported an error")

// Sender is the outbound half of the transport, satisfied by
// *transport.Group.
type Sender interface {
	Send(payload []byte) error
}

// Gateway issues commands and resolves their correlated results. Concurrent
// calls are independent: any number of correlation ids may be in flight with
// no queuing between them.
type Gateway struct {
	sender  Sender
	tracker *correlation.Tracker
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Gateway. timeout <= 0 selects DefaultCallTimeout.
func New(sender Sender, tracker *correlation.Tracker, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Gateway{
		sender:  sender,
		tracker: tracker,
		timeout: timeout,
		logger:  logger.Named("gateway"),
	}
}

// Call sends cmd and blocks until its result, an error, or the timeout. The
// command's CorrelationID is assigned here; any caller-set value is
// overwritten. On timeout the pending entry is removed first, so a late
// reply is dropped as unmatched rather than delivered to a departed caller.
func (g *Gateway) Call(ctx context.Context, cmd protocol.Command) (protocol.Result, error) {
	id := g.tracker.NewID()
	cmd.CorrelationID = id

	payload, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return protocol.Result{}, err
	}

	ch := g.tracker.Register(id)

	if err := g.sender.Send(payload); err != nil {
		g.tracker.Remove(id)
		return protocol.Result{}, fmt.Errorf("send %q: %w", cmd.Cmd, err)
	}
	g.logger.Debug("Command sent", zap.String("cmd", cmd.Cmd), zap.String("correlation_id", id))

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		if outcome.Err != nil {
			return protocol.Result{}, outcome.Err
		}
		res := outcome.Result
		if res.Resource == protocol.ResourceError {
			return res, fmt.Errorf("%w: %s", ErrAgent, res.ErrorMessage)
		}
		return res, nil

	case <-timer.C:
		g.tracker.Remove(id)
		return protocol.Result{}, fmt.Errorf("%w: %q after %s", ErrTimeout, cmd.Cmd, g.timeout)

	case <-ctx.Done():
		g.tracker.Remove(id)
		return protocol.Result{}, ctx.Err()
	}
}

// HandleInbound is the channel handler for the front-end side: it decodes a
// verified result payload and resolves the matching pending call. Unmatched
// results (late replies, duplicate deliveries from a second endpoint) are
// dropped by the tracker.
func (g *Gateway) HandleInbound(payload []byte) {
	res, err := protocol.DecodeResult(payload)
	if err != nil {
		g.logger.Warn("Dropping undecodable result payload", zap.Error(err))
		return
	}
	g.tracker.Resolve(res.CorrelationID, res)
}

// OnTransportDown rejects every pending call with a connectivity error so
// no caller waits out its full timeout on a socket known to be dead. Wired
// as the transport's OnDown hook.
func (g *Gateway) OnTransportDown(err error) {
	g.tracker.RejectAll(err)
}
