// Package ws carries relay frames over gorilla websockets and exposes the
// relay's HTTP surface through echo.
package ws

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatrelay/internal/relay"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var (
	// ErrClosed is returned by Send after the connection stopped accepting writes.
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the outbound queue is saturated.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Handler consumes inbound frames and connection teardown.
type Handler interface {
	Handle(c relay.Conn, frame []byte)
	Disconnect(c relay.Conn)
}

// Conn is one websocket client. Reads happen on the read pump goroutine and
// writes on the write pump goroutine; Send only enqueues.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn, sendBuffer int, maxFrame int64, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	ws.SetReadLimit(maxFrame)
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With(zap.String("conn_id", id), zap.String("remote", ws.RemoteAddr().String())),
	}
}

// ID returns the connection's generated identifier.
func (c *Conn) ID() string { return c.id }

// Send enqueues frame for the write pump without blocking.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Open reports whether Send can still succeed.
func (c *Conn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close stops accepting writes. The write pump flushes what is queued, sends
// a close frame, and tears down the socket.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump hands frames to h strictly in receipt order until the socket fails.
func (c *Conn) readPump(h Handler) {
	defer func() {
		h.Disconnect(c)
		c.Close()
	}()

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("set read deadline", zap.Error(err))
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		h.Handle(c, frame)
	}
}

func (c *Conn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeded read limit", zap.Error(err))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.logger.Info("connection closed")
	default:
		c.logger.Info("connection lost", zap.Error(err))
	}
}

// writePump drains the send queue and keeps the peer alive with pings. It
// owns closing the underlying socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
