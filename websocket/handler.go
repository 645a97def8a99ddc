package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	authTimeout = 30 * time.Second
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBuffer  = 32
)

// TokenValidator resolves a JWT access token to the user it was issued to.
type TokenValidator func(ctx context.Context, token string) (primitive.ObjectID, error)

// Client represents a connected WebSocket client
type Client struct {
	UserID primitive.ObjectID
	conn   *websocket.Conn
	send   chan Notification
	once   sync.Once
	done   chan struct{}

	// gorilla connections allow one writer at a time
	writeMu sync.Mutex
}

func (c *Client) write(messageType int, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if messageType == websocket.PingMessage {
		return c.conn.WriteMessage(websocket.PingMessage, nil)
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) enqueue(n Notification) {
	select {
	case <-c.done:
	case c.send <- n:
	default:
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Handler upgrades /api/ws requests. Clients authenticate either with a
// token query parameter or by sending "AUTH:<token>" as their first message.
type Handler struct {
	hub      *Hub
	validate TokenValidator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the handler. An empty allowedOrigins accepts any origin.
func NewHandler(hub *Hub, validate TokenValidator, allowedOrigins []string, logger *zap.Logger) *Handler {
	allowed := map[string]bool{}
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub:      hub,
		validate: validate,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocket handles the WebSocket connection
func (h *Handler) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		conn: conn,
		send: make(chan Notification, sendBuffer),
		done: make(chan struct{}),
	}
	go h.writePump(client)

	if token := c.QueryParam("token"); token != "" {
		userID, err := h.validate(c.Request().Context(), token)
		if err != nil {
			h.reject(client, "Invalid or expired token")
			return nil
		}
		h.accept(client, userID)
	} else {
		client.enqueue(Notification{
			Type:         "connected",
			Message:      "WebSocket connection established. Please authenticate to receive notifications.",
			RequiresAuth: true,
		})
	}

	go h.readPump(client)
	return nil
}

func (h *Handler) accept(client *Client, userID primitive.ObjectID) {
	h.hub.authenticate(client, userID)
	client.enqueue(Notification{
		Type:    "connected",
		Message: "WebSocket connection established",
		UserID:  userID.Hex(),
	})
	h.logger.Debug("websocket client authenticated", zap.String("userId", userID.Hex()))
}

func (h *Handler) reject(client *Client, msg string) {
	client.write(websocket.TextMessage, Notification{Type: "auth_response", Message: msg, RequiresAuth: true})
	client.close()
}

func (h *Handler) readPump(client *Client) {
	defer h.hub.unregister(client)

	conn := client.conn
	conn.SetReadLimit(4096)
	if client.UserID.IsZero() {
		conn.SetReadDeadline(time.Now().Add(authTimeout))
	} else {
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		msg := string(message)
		if !strings.HasPrefix(msg, "AUTH:") {
			continue
		}
		if !client.UserID.IsZero() {
			client.enqueue(Notification{Type: "auth_response", Message: "Already authenticated"})
			continue
		}

		userID, err := h.validate(context.Background(), strings.TrimSpace(strings.TrimPrefix(msg, "AUTH:")))
		if err != nil {
			h.reject(client, "Invalid or expired token")
			return
		}
		h.accept(client, userID)
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case n := <-client.send:
			if err := client.write(websocket.TextMessage, n); err != nil {
				client.close()
				return
			}
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				client.close()
				return
			}
		}
	}
}
