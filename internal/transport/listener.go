package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabwire/internal/channel"
	"github.com/xkilldash9x/tabwire/internal/signature"
)

// upgrader for agent connections. The agent dials from the local machine,
// never from a browser page, so there is no Origin header to check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Listener is the front-end-side endpoint. It accepts the agent's dial on
// one local port; exactly one logical peer exists, so a new connection
// replaces any previous one. Recovery needs no retry timer here: the
// dialing side reconnects, the listener just keeps accepting.
type Listener struct {
	addr    string
	codec   *signature.Codec
	handler channel.Handler
	onDown  func()
	logger  *zap.Logger

	srv *http.Server
	ln  net.Listener

	mu    sync.Mutex
	state State
	ch    *channel.Channel

	closeOnce sync.Once
}

// NewListener creates an endpoint that will accept agent connections on
// addr (host:port; port 0 picks a free port, useful in tests).
func NewListener(addr string, codec *signature.Codec, handler channel.Handler, onDown func(), logger *zap.Logger) *Listener {
	return &Listener{
		addr:    addr,
		codec:   codec,
		handler: handler,
		onDown:  onDown,
		logger:  logger.Named("transport").With(zap.String("endpoint", addr)),
		state:   Disconnected,
	}
}

// Start binds the port and begins accepting. Binding failure is returned to
// the caller; a blocked port on one endpoint is why a Group runs several.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", l.addr, err)
	}
	l.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)
	l.srv = &http.Server{Handler: mux}

	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Error("Listener stopped unexpectedly", zap.Error(err))
		}
	}()

	l.logger.Info("Listening for browser agent", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr reports the bound address, resolving a requested port 0.
func (l *Listener) Addr() string {
	if l.ln == nil {
		return l.addr
	}
	return l.ln.Addr().String()
}

// Send queues payload on the live channel, or drops it when not Open.
func (l *Listener) Send(payload []byte) {
	l.mu.Lock()
	ch := l.ch
	state := l.state
	l.mu.Unlock()

	if state != Open || ch == nil {
		l.logger.Debug("Dropping outbound payload: endpoint not open", zap.Stringer("state", state))
		return
	}
	ch.Send(payload)
}

// State reports the endpoint's current lifecycle position.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Close stops accepting and closes any live connection.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state = Closing
		ch := l.ch
		l.mu.Unlock()

		if ch != nil {
			ch.Close()
		}
		if l.srv != nil {
			l.srv.Close()
		}
	})
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("Failed to upgrade agent connection", zap.Error(err))
		return
	}

	ch := channel.New(conn, l.codec, l.handler, l.logger)

	l.mu.Lock()
	if l.state == Closing {
		l.mu.Unlock()
		ch.Close()
		return
	}
	prev := l.ch
	l.ch = ch
	l.state = Open
	l.mu.Unlock()

	if prev != nil {
		l.logger.Warn("Agent reconnected, replacing previous connection")
		prev.Close()
	}
	l.logger.Info("Agent connected", zap.String("remote_addr", r.RemoteAddr))

	// Blocks until this connection dies.
	ch.Run()

	l.mu.Lock()
	// Only the still-current channel moves the endpoint to Disconnected; a
	// replaced connection exiting must not clobber its successor's state.
	current := l.ch == ch
	if current && l.state != Closing {
		l.ch = nil
		l.state = Disconnected
	}
	closing := l.state == Closing
	l.mu.Unlock()

	if current && !closing {
		l.logger.Warn("Agent disconnected, rejecting in-flight requests")
		if l.onDown != nil {
			l.onDown()
		}
	}
}
