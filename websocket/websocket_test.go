package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func startServer(t *testing.T, userID primitive.ObjectID) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	validate := func(ctx context.Context, token string) (primitive.ObjectID, error) {
		if token == "good" {
			return userID, nil
		}
		return primitive.NilObjectID, errors.New("bad token")
	}
	e := echo.New()
	e.GET("/api/ws", NewHandler(hub, validate, nil, zap.NewNop()).HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Notification {
	t.Helper()
	var n Notification
	require.NoError(t, conn.ReadJSON(&n))
	return n
}

func TestTokenInQuery(t *testing.T) {
	userID := primitive.NewObjectID()
	hub, url := startServer(t, userID)
	conn := dial(t, url+"?token=good")

	hello := read(t, conn)
	assert.Equal(t, "connected", hello.Type)
	assert.Equal(t, userID.Hex(), hello.UserID)
	assert.True(t, hub.IsConnected(userID))

	require.NoError(t, hub.SendToUser(userID, Notification{Type: "reward_credited", Message: "25.00 added"}))
	got := read(t, conn)
	assert.Equal(t, "reward_credited", got.Type)
	assert.Equal(t, "25.00 added", got.Message)
}

func TestAuthMessage(t *testing.T) {
	userID := primitive.NewObjectID()
	hub, url := startServer(t, userID)
	conn := dial(t, url)

	hello := read(t, conn)
	assert.True(t, hello.RequiresAuth)
	assert.False(t, hub.IsConnected(userID))
	assert.ErrorIs(t, hub.SendToUser(userID, Notification{Type: "x"}), ErrNotConnected)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("AUTH:good")))
	authed := read(t, conn)
	assert.Equal(t, "connected", authed.Type)
	assert.Equal(t, userID.Hex(), authed.UserID)
	assert.Equal(t, 1, hub.ConnectedUsers())

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsConnected(userID) }, 2*time.Second, 10*time.Millisecond)
}

func TestRejectsBadToken(t *testing.T) {
	_, url := startServer(t, primitive.NewObjectID())
	conn := dial(t, url)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("AUTH:bad")))
	resp := read(t, conn)
	assert.Equal(t, "auth_response", resp.Type)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closes after a failed auth")
}

func TestSeveralDevices(t *testing.T) {
	userID := primitive.NewObjectID()
	hub, url := startServer(t, userID)
	phone := dial(t, url+"?token=good")
	laptop := dial(t, url+"?token=good")
	read(t, phone)
	read(t, laptop)

	require.NoError(t, hub.SendToUser(userID, Notification{Type: "booking_status"}))
	assert.Equal(t, "booking_status", read(t, phone).Type)
	assert.Equal(t, "booking_status", read(t, laptop).Type)
	assert.Equal(t, 1, hub.ConnectedUsers())
}

func TestRunClosesConnections(t *testing.T) {
	userID := primitive.NewObjectID()
	hub, url := startServer(t, userID)
	conn := dial(t, url+"?token=good")
	read(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.False(t, hub.IsConnected(userID))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
