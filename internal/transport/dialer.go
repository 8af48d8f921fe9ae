package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabwire/internal/channel"
	"github.com/xkilldash9x/tabwire/internal/signature"
)

// DefaultRetryInterval is the fixed delay between reconnect attempts. The
// retry loop is unconditional and unbounded: the peer may reappear at any
// time, so there is no backoff cap and no circuit breaker.
const DefaultRetryInterval = 2 * time.Second

// Dialer is the agent-side endpoint. It dials the front-end's websocket
// URL, runs the authenticated channel until the connection dies, and then
// retries on a fixed interval forever.
type Dialer struct {
	url     string
	codec   *signature.Codec
	handler channel.Handler
	onDown  func()
	retry   time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	state State
	ch    *channel.Channel

	done      chan struct{}
	closeOnce sync.Once
}

// NewDialer creates an endpoint that will dial url once started. onDown may
// be nil; when set it runs every time the endpoint falls from Open back to
// Disconnected.
func NewDialer(url string, codec *signature.Codec, handler channel.Handler, onDown func(), retry time.Duration, logger *zap.Logger) *Dialer {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Dialer{
		url:     url,
		codec:   codec,
		handler: handler,
		onDown:  onDown,
		retry:   retry,
		logger:  logger.Named("transport").With(zap.String("endpoint", url)),
		state:   Disconnected,
		done:    make(chan struct{}),
	}
}

// Start launches the connect/retry loop.
func (d *Dialer) Start() {
	go d.loop()
}

// Send queues payload on the live channel, or drops it when not Open.
func (d *Dialer) Send(payload []byte) {
	d.mu.Lock()
	ch := d.ch
	state := d.state
	d.mu.Unlock()

	if state != Open || ch == nil {
		d.logger.Debug("Dropping outbound payload: endpoint not open", zap.Stringer("state", state))
		return
	}
	ch.Send(payload)
}

// State reports the endpoint's current lifecycle position.
func (d *Dialer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close permanently stops the retry loop and closes any live connection.
func (d *Dialer) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.state = Closing
		ch := d.ch
		d.mu.Unlock()

		close(d.done)
		if ch != nil {
			ch.Close()
		}
	})
}

func (d *Dialer) loop() {
	for {
		select {
		case <-d.done:
			return
		default:
		}

		d.setState(Connecting)
		conn, _, err := websocket.DefaultDialer.Dial(d.url, nil)
		if err != nil {
			d.setState(Disconnected)
			d.logger.Debug("Connect attempt failed, will retry", zap.Error(err), zap.Duration("retry_in", d.retry))
			if !d.sleep() {
				return
			}
			continue
		}

		ch := channel.New(conn, d.codec, d.handler, d.logger)
		d.mu.Lock()
		if d.state == Closing {
			d.mu.Unlock()
			ch.Close()
			return
		}
		d.ch = ch
		d.state = Open
		d.mu.Unlock()
		d.logger.Info("Connected")

		// Blocks until the connection dies for any reason.
		ch.Run()

		d.mu.Lock()
		d.ch = nil
		closing := d.state == Closing
		if !closing {
			d.state = Disconnected
		}
		d.mu.Unlock()

		if closing {
			return
		}
		d.logger.Warn("Connection lost, rejecting in-flight requests and reconnecting",
			zap.Duration("retry_in", d.retry))
		if d.onDown != nil {
			d.onDown()
		}
		if !d.sleep() {
			return
		}
	}
}

// sleep waits out one retry interval; false means the endpoint is closing.
func (d *Dialer) sleep() bool {
	select {
	case <-d.done:
		return false
	case <-time.After(d.retry):
		return true
	}
}

func (d *Dialer) setState(s State) {
	d.mu.Lock()
	if d.state != Closing {
		d.state = s
	}
	d.mu.Unlock()
}
