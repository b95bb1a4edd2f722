package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

var (
	errConnClosed = errors.New("connection closed")
	errSendFull   = errors.New("send buffer full")
)

// envelope is the wire frame in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// wsConn adapts a websocket to app.Conn. Writes go through a single writer goroutine.
type wsConn struct {
	id     string
	userID string
	ws     *websocket.Conn
	log    *slog.Logger

	send      chan []byte
	closing   chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, userID string, log *slog.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:      id,
		userID:  userID,
		ws:      ws,
		log:     log.With("conn", id),
		send:    make(chan []byte, sendBuffer),
		closing: make(chan struct{}),
	}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

func (c *wsConn) Send(event string, payload any) error {
	data, err := json.Marshal(outbound{Type: event, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case <-c.closing:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendFull
	}
}

// Close asks the writer to flush queued frames and close the socket. Safe to call repeatedly.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	return nil
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Debug("write failed", "err", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closing:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
