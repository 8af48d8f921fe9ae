// Package channel wraps a single websocket connection with payload signing
// and verification. Everything that leaves through a Channel is signed;
// everything that arrives is verified before it can reach a handler.
package channel

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/tabwire/internal/protocol"
	"github.com/xkilldash9x/tabwire/internal/signature"
)

// Connection timeouts and limits, per the Gorilla WebSocket examples.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from the peer. Content results can carry
	// a full page window, so this is generous.
	maxMessageSize = 4 << 20
	// Send buffer size.
	sendChannelSize = 256
)

// Handler receives the verified payload bytes of each inbound frame.
type Handler func(payload []byte)

// Channel owns one websocket connection. The write pump is the only writer
// on the socket and the read pump the only reader, as gorilla requires; both
// stop when the connection dies and Run returns.
type Channel struct {
	logger  *zap.Logger
	codec   *signature.Codec
	conn    *websocket.Conn
	handler Handler

	send chan []byte

	// authLog throttles signature-mismatch logging; a peer keyed with the
	// wrong secret would otherwise flood the log at frame rate.
	authLog *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an established websocket connection. The handler is invoked from
// the read pump goroutine for every frame that parses and verifies.
func New(conn *websocket.Conn, codec *signature.Codec, handler Handler, logger *zap.Logger) *Channel {
	return &Channel{
		logger:  logger.Named("channel"),
		codec:   codec,
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendChannelSize),
		authLog: rate.NewLimiter(rate.Every(time.Second), 5),
		done:    make(chan struct{}),
	}
}

// Send signs payload, frames it, and queues it for transmission. It never
// blocks and never returns an error: when the channel is closed or the
// buffer is full the frame is logged and dropped; callers must not rely on
// Send blocking until delivery.
func (c *Channel) Send(payload []byte) {
	frame := protocol.Frame{
		Payload:   payload,
		Signature: c.codec.Sign(payload),
	}
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		c.logger.Error("Failed to encode outbound frame", zap.Error(err))
		return
	}

	select {
	case <-c.done:
		c.logger.Warn("Dropping outbound frame: channel is closed")
	case c.send <- data:
	default:
		c.logger.Error("Send buffer full, dropping outbound frame. Peer may be unresponsive.")
	}
}

// Run drives both pumps and blocks until the connection closes for any
// reason. The caller (the transport) treats its return as the signal to
// re-enter the reconnect loop.
func (c *Channel) Run() {
	go c.writePump()
	c.readPump()
}

// Close tears the connection down. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads frames until the connection errors or closes. Malformed
// frames and bad signatures are dropped here; neither ever reaches the
// handler or crashes the loop.
func (c *Channel) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Connection closed unexpectedly", zap.Error(err))
			} else {
				c.logger.Info("Connection closed")
			}
			return
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", zap.Error(err))
			continue
		}

		// Verify over the exact received payload bytes.
		if !c.codec.Verify(frame.Payload, frame.Signature) {
			if c.authLog.Allow() {
				c.logger.Warn("Dropping frame with invalid signature; check that both peers share the same secret")
			}
			continue
		}

		c.handler(frame.Payload)
	}
}

// writePump is the sole socket writer. It flushes queued frames and keeps
// the connection alive with periodic pings.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("Failed to set write deadline", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Write failed, closing connection", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("Failed to set write deadline for ping", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("Ping failed, closing connection", zap.Error(err))
				return
			}
		}
	}
}
