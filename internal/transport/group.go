package transport

import (
	"go.uber.org/zap"
)

// Group fans a send out across several independent endpoints so that one
// blocked port does not take the bus down. "Connected" is the logical OR of
// the member states; inbound duplicates (both endpoints answering) collapse
// in the correlation tracker, whose resolution is first-wins.
type Group struct {
	endpoints []Endpoint
	logger    *zap.Logger
}

// NewGroup wraps a set of endpoints.
func NewGroup(logger *zap.Logger, endpoints ...Endpoint) *Group {
	return &Group{
		endpoints: endpoints,
		logger:    logger.Named("transport_group"),
	}
}

// Send delivers payload to every Open endpoint. It fails only when no
// endpoint is Open, so in-flight callers get a prompt connectivity error
// instead of waiting out their full timeout on a dead bus.
func (g *Group) Send(payload []byte) error {
	sent := false
	for _, ep := range g.endpoints {
		if ep.State() == Open {
			ep.Send(payload)
			sent = true
		}
	}
	if !sent {
		return ErrNotConnected
	}
	return nil
}

// Connected reports whether at least one endpoint is Open.
func (g *Group) Connected() bool {
	for _, ep := range g.endpoints {
		if ep.State() == Open {
			return true
		}
	}
	return false
}

// Close tears down every endpoint.
func (g *Group) Close() {
	for _, ep := range g.endpoints {
		ep.Close()
	}
}
