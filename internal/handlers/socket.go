package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Brownie44l1/eeg-api/internal/canvas"
	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/logger"
	"github.com/Brownie44l1/eeg-api/internal/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer, large enough for a pasted signal file
	maxMessageSize = 1024 * 1024
)

// Message types sent by the browser besides the canvas events.
const (
	msgValues = "values"
	msgFile   = "file"
)

// ClientMessage is one message from the browser. Type is a session event
// type, "values" or "file"; only the fields for that type are read.
type ClientMessage struct {
	Type    string  `json:"type"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Buttons int     `json:"buttons"`
	PageX   float64 `json:"page_x"`
	PageY   float64 `json:"page_y"`
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`

	Values []float64 `json:"values,omitempty"`
	Text   string    `json:"text,omitempty"`
}

func (m ClientMessage) event() session.Event {
	return session.Event{
		Type:     session.EventType(m.Type),
		Pointer:  canvas.Pointer{X: m.X, Y: m.Y},
		Buttons:  m.Buttons,
		Touch:    canvas.Touch{PageX: m.PageX, PageY: m.PageY},
		Rect:     canvas.Rect{Left: m.Left, Top: m.Top},
		Viewport: canvas.Viewport{Width: m.Width, Height: m.Height},
	}
}

// ServerMessage is pushed to the browser: "state" after every session
// change, "error" when a message was rejected.
type ServerMessage struct {
	Type  string            `json:"type"`
	State *session.Snapshot `json:"state,omitempty"`
	Error *ErrorResponse    `json:"error,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	sess   *session.Session
	errs   chan ServerMessage
	done   chan struct{}
	logger *zap.SugaredLogger
}

// SessionSocket upgrades to a WebSocket that carries canvas events in and
// session snapshots out.
func (h *Handler) SessionSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err.Error())
		return
	}

	c := &client{
		conn:   conn,
		sess:   sess,
		errs:   make(chan ServerMessage, 8),
		done:   make(chan struct{}),
		logger: h.logger.With(logger.FieldSessionID, sess.ID()),
	}
	c.logger.Debugw("WebSocket connected")

	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warnw("WebSocket read error", logger.FieldError, err.Error())
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reject(errors.Wrap(errors.ErrInvalidRequest, "invalid JSON"))
			continue
		}
		if err := c.route(msg); err != nil {
			c.reject(err)
		}
	}
}

func (c *client) route(msg ClientMessage) error {
	switch msg.Type {
	case msgValues:
		return c.sess.SetValues(msg.Values)
	case msgFile:
		return c.sess.Import(msg.Text)
	default:
		_, err := c.sess.Draw(msg.event())
		return err
	}
}

// reject queues an error for the browser. Errors are dropped if the queue is full.
func (c *client) reject(err error) {
	resp := ErrorResponse{Error: err.Error(), Hints: errors.GetAllHints(err)}
	if errors.IsFatal(err) || errors.Is(err, errors.ErrSessionFailed) {
		resp.Recovery = "reload"
	}
	select {
	case c.errs <- ServerMessage{Type: "error", Error: &resp}:
	default:
	}
}

func (c *client) writePump() {
	updates, unsubscribe := c.sess.Subscribe()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case snap, ok := <-updates:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ServerMessage{Type: "state", State: &snap}); err != nil {
				c.logger.Debugw("State write error", logger.FieldError, err.Error())
				return
			}
		case msg := <-c.errs:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
