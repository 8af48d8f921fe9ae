package agent

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// DefaultOpTimeout bounds one primitive execution. There is no cancel
// message on the bus: once a primitive is running it runs to completion (or
// to this deadline) even if the caller has already timed out.
const DefaultOpTimeout = 25 * time.Second

// seenCapacity bounds the duplicate-command window. The front-end fans each
// command out to every open endpoint, so an agent dialing two ports can see
// the same correlation id twice; only the first sighting is executed.
const seenCapacity = 1024

// Sender is the outbound half of the agent's transport, satisfied by
// *transport.Group.
type Sender interface {
	Send(payload []byte) error
}

// Dispatcher routes each decoded command to its primitive. One goroutine per
// command: commands are not queued against each other, so results may return
// in any order. A bad message is logged and dropped; the loop keeps serving.
type Dispatcher struct {
	ctrl      Controller
	sender    Sender
	opTimeout time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
}

// NewDispatcher creates a dispatcher. opTimeout <= 0 selects
// DefaultOpTimeout.
func NewDispatcher(ctrl Controller, sender Sender, opTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &Dispatcher{
		ctrl:      ctrl,
		sender:    sender,
		opTimeout: opTimeout,
		logger:    logger.Named("dispatcher"),
		seen:      make(map[string]struct{}, seenCapacity),
	}
}

// HandleInbound is the channel handler for the agent side. It decodes the
// verified payload and dispatches it off the read pump so a slow primitive
// cannot stall the connection's control messages.
func (d *Dispatcher) HandleInbound(payload []byte) {
	cmd, err := protocol.DecodeCommand(payload)
	if err != nil {
		d.logger.Warn("Dropping undecodable command payload", zap.Error(err))
		return
	}
	if d.isDuplicate(cmd.CorrelationID) {
		d.logger.Debug("Dropping duplicate command delivery",
			zap.String("cmd", cmd.Cmd), zap.String("correlation_id", cmd.CorrelationID))
		return
	}
	go d.dispatch(cmd)
}

// dispatch matches the closed command set exhaustively and emits exactly one
// result per accepted command.
func (d *Dispatcher) dispatch(cmd protocol.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opTimeout)
	defer cancel()

	log := d.logger.With(zap.String("cmd", cmd.Cmd), zap.String("correlation_id", cmd.CorrelationID))

	switch cmd.Cmd {
	case protocol.CmdOpenTab:
		// Security boundary, not best-effort validation: an unsafe scheme
		// drops the request entirely, no result is sent.
		if !isSafeURL(cmd.URL) {
			log.Warn("Rejecting open-tab with unsafe URL scheme", zap.String("url", cmd.URL))
			return
		}
		tabID, err := d.ctrl.OpenTab(ctx, cmd.URL)
		if err != nil {
			d.sendError(cmd, log, err)
			return
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceOpenedTabID,
			CorrelationID: cmd.CorrelationID,
			TabID:         tabID,
		})

	case protocol.CmdCloseTabs:
		// Best-effort per tab: one failure never aborts the rest, and the
		// single completion result does not distinguish partial failures.
		for _, tabID := range cmd.TabIDs {
			if err := d.ctrl.CloseTab(ctx, tabID); err != nil {
				log.Warn("Failed to close tab, continuing batch", zap.Int("tab_id", tabID), zap.Error(err))
			}
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceTabsClosed,
			CorrelationID: cmd.CorrelationID,
		})

	case protocol.CmdGetTabList:
		tabs, err := d.ctrl.ListTabs(ctx)
		if err != nil {
			d.sendError(cmd, log, err)
			return
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceTabs,
			CorrelationID: cmd.CorrelationID,
			Tabs:          tabs,
		})

	case protocol.CmdGetRecentHistory:
		items, err := d.ctrl.RecentHistory(ctx, cmd.SearchQuery)
		if err != nil {
			d.sendError(cmd, log, err)
			return
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceHistory,
			CorrelationID: cmd.CorrelationID,
			History:       items,
		})

	case protocol.CmdGetTabContent:
		content, err := d.ctrl.TabContent(ctx, cmd.TabID, cmd.Offset)
		if err != nil {
			d.sendError(cmd, log, err)
			return
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceTabContent,
			CorrelationID: cmd.CorrelationID,
			FullText:      content.Text,
			IsTruncated:   content.IsTruncated,
			Offset:        content.Offset,
			TotalLength:   content.TotalLength,
			Links:         content.Links,
		})

	case protocol.CmdReorderTabs:
		// Sequential moves in the order given; failures are logged and
		// skipped. The result echoes the requested order, not the possibly
		// partial achieved one (callers treat reorder as best-effort).
		for index, tabID := range cmd.TabOrder {
			if err := d.ctrl.MoveTab(ctx, tabID, index); err != nil {
				log.Warn("Failed to move tab, continuing batch",
					zap.Int("tab_id", tabID), zap.Int("index", index), zap.Error(err))
			}
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceTabsReordered,
			CorrelationID: cmd.CorrelationID,
			TabOrder:      cmd.TabOrder,
		})

	case protocol.CmdFindHighlight:
		count, err := d.ctrl.FindHighlight(ctx, cmd.TabID, cmd.QueryPhrase)
		if err != nil {
			d.sendError(cmd, log, err)
			return
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceFindHighlightResult,
			CorrelationID: cmd.CorrelationID,
			NoOfResults:   count,
		})

	case protocol.CmdGroupTabs:
		groupID, err := d.ctrl.GroupTabs(ctx, cmd.GroupTabIDs, cmd.IsCollapsed, cmd.GroupColor, cmd.GroupTitle)
		if err != nil {
			d.sendError(cmd, log, err)
			return
		}
		d.send(log, protocol.Result{
			Resource:      protocol.ResourceTabGroup,
			CorrelationID: cmd.CorrelationID,
			GroupID:       groupID,
		})

	default:
		// Unreachable given the closed vocabulary; a schema mismatch must
		// not kill the dispatcher.
		log.Warn("Dropping command of unknown kind")
	}
}

// send encodes and transmits a result.
func (d *Dispatcher) send(log *zap.Logger, res protocol.Result) {
	payload, err := protocol.EncodeResult(res)
	if err != nil {
		log.Error("Failed to encode result", zap.Error(err))
		return
	}
	if err := d.sender.Send(payload); err != nil {
		log.Warn("Failed to send result; caller will time out", zap.Error(err))
	}
}

// sendError reports a single-target primitive failure as an explicit error
// result rather than silence.
func (d *Dispatcher) sendError(cmd protocol.Command, log *zap.Logger, err error) {
	log.Warn("Primitive failed", zap.Error(err))
	d.send(log, protocol.Result{
		Resource:      protocol.ResourceError,
		CorrelationID: cmd.CorrelationID,
		ErrorMessage:  err.Error(),
	})
}

// isDuplicate records the correlation id and reports whether it was already
// seen within the bounded window.
func (d *Dispatcher) isDuplicate(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.seenOrder = append(d.seenOrder, id)
	if len(d.seenOrder) > seenCapacity {
		oldest := d.seenOrder[0]
		d.seenOrder = d.seenOrder[1:]
		delete(d.seen, oldest)
	}
	return false
}

// isSafeURL accepts only https targets. Anything else (http, file,
// javascript, chrome, data, ...) is rejected at the dispatch boundary.
func isSafeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "https") && u.Host != ""
}
