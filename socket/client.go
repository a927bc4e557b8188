package socket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"collabcore/internal/collab/model"
	"collabcore/internal/collab/presence"
	"collabcore/internal/collab/protocol"
	"collabcore/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from the web app origin; the JWT is what authorizes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection. It belongs to at most one room at a time.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Identity model.Identity
	Send     chan []byte

	connID  string
	limiter *rate.Limiter

	mu        sync.Mutex
	closed    bool
	room      string
	cursor    *presence.Throttle
	selection *presence.Throttle
}

func NewClient(hub *Hub, conn *websocket.Conn, identity model.Identity) *Client {
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Identity: identity,
		Send:     make(chan []byte, hub.cfg.SendBuffer),
		connID:   uuid.NewString(),
		limiter:  rate.NewLimiter(rate.Limit(hub.cfg.MessagesPerSecond), hub.cfg.MessageBurst),
	}
}

func (c *Client) ID() string { return c.connID }

// Enqueue queues msg for the write pump without blocking.
func (c *Client) Enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full. Dropping from room %s.", c.Identity.UserID, c.room)
		return false
	}
}

// Close stops delivery; the write pump then closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Room returns the room the client has joined, or "".
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) attach(roomID string, cursor, selection *presence.Throttle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = roomID
	c.cursor = cursor
	c.selection = selection
}

// detach forgets the room and discards throttle state at once. It returns
// the room the client was in.
func (c *Client) detach() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor != nil {
		c.cursor.Stop()
	}
	if c.selection != nil {
		c.selection.Stop()
	}
	roomID := c.room
	c.room, c.cursor, c.selection = "", nil, nil
	return roomID
}

func (c *Client) throttles() (cursor, selection *presence.Throttle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.selection
}

func (c *Client) sendError(code string, err error, requestType string) {
	msg, mErr := json.Marshal(protocol.NewError(code, err, requestType))
	if mErr != nil {
		logger.Sugar.Errorf("Error marshalling error event: %v", mErr)
		return
	}
	c.Enqueue(msg)
}

// ServeWs upgrades an authenticated request and starts the client's pumps.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, identity model.Identity) {
	if identity.UserID == "" {
		http.Error(w, "Unauthorized: missing identity", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := NewClient(hub, conn, identity)
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	limited := false
	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			if !limited {
				logger.Sugar.Warnf("Rate limit exceeded for user %s", c.Identity.UserID)
				c.sendError(protocol.CodeRateLimited, errors.New("too many messages"), "")
			}
			limited = true
			continue
		}
		limited = false

		in, err := protocol.Decode(raw)
		if err != nil {
			requestType := ""
			if in != nil {
				requestType = in.Type
			}
			logger.Sugar.Warnf("Dropping message from user %s: %v", c.Identity.UserID, err)
			c.sendError(protocol.CodeMalformed, err, requestType)
			continue
		}
		c.report(in.Type, c.Hub.Handle(c, in))
	}
}

// report turns a handler error into the matching client notice.
func (c *Client) report(requestType string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, model.ErrUnknownRoom), errors.Is(err, model.ErrUnknownUser):
		logger.Sugar.Warnf("Ignoring %s from user %s: %v", requestType, c.Identity.UserID, err)
	case errors.Is(err, model.ErrUnauthenticated):
		c.sendError(protocol.CodeUnauthenticated, err, requestType)
	case errors.Is(err, model.ErrElementLocked):
		c.sendError(protocol.CodeElementLocked, err, requestType)
	case errors.Is(err, model.ErrMalformedMessage):
		c.sendError(protocol.CodeMalformed, err, requestType)
	default:
		logger.Sugar.Errorf("Handling %s for user %s: %v", requestType, c.Identity.UserID, err)
		c.sendError(protocol.CodeInternal, err, requestType)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
