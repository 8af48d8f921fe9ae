// Package transport owns channel lifecycle: connecting, detecting closure,
// and retrying on a fixed interval until the peer reappears. The front-end
// side listens for the agent; the agent side dials the front-end. Both
// present the same Endpoint surface, and a Group lets several endpoints on
// distinct ports race for connectivity.
package transport

import "errors"

// ErrNotConnected is returned by a Group send when no endpoint is Open.
// In-flight callers see it (via the tracker) when a connection drops.
var ErrNotConnected = errors.New("transport: not connected to the browser agent")

// State is the lifecycle position of one endpoint.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Endpoint is one independent transport state machine.
type Endpoint interface {
	// Send queues payload if the endpoint is Open; otherwise it drops the
	// frame (logged by the channel/endpoint, never an error to the caller).
	Send(payload []byte)
	// State reports the current lifecycle position.
	State() State
	// Close tears the endpoint down permanently.
	Close()
}
