package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gupshup/internal/fanout"
	"gupshup/internal/models"
	"gupshup/internal/presence"
	"gupshup/internal/registry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type tokenAuth struct{}

func (tokenAuth) Verify(ctx context.Context, credential string) (*models.User, error) {
	switch credential {
	case "token-u1":
		return &models.User{ID: "u1", Username: "uma"}, nil
	case "token-u2":
		return &models.User{ID: "u2", Username: "vik"}, nil
	}
	return nil, errors.New("invalid token")
}

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := registry.New()
	g := New(reg, presence.NewTracker(), fanout.NewRouter(reg), tokenAuth{}, &fakeMessageRepo{saved: make(chan *models.Message, 8)})
	server := httptest.NewServer(http.HandlerFunc(g.HandleWebSocket))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Registration runs just after the handshake; give it a beat so an
	// immediate send cannot outrun it.
	time.Sleep(20 * time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame models.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func onlineUsers(t *testing.T, frame models.Frame) []string {
	t.Helper()
	raw, err := json.Marshal(frame.Data)
	require.NoError(t, err)

	var payload models.OnlineUsersPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload.Users
}

func TestHandleWebSocket_RejectsBadCredentials(t *testing.T) {
	req := require.New(t)
	server := startTestServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Missing credentials entirely
	url = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWebSocket_PresenceLifecycle(t *testing.T) {
	req := require.New(t)
	server := startTestServer(t)

	u1 := dial(t, server, "token-u1")
	u2 := dial(t, server, "token-u2")

	// u1 enters the chat context
	err := u1.WriteMessage(websocket.TextMessage, []byte(`{
		"event": "chat-joined",
		"data": {"members": ["u1", "u2"]}
	}`))
	req.NoError(err)

	// u2 learns u1 is online
	frame := readFrame(t, u2)
	req.Equal(models.EventOnlineUsers, frame.Event)
	req.Equal([]string{"u1"}, onlineUsers(t, frame))

	// u1 drops the connection; the presence change is broadcast
	u1.Close()

	frame = readFrame(t, u2)
	req.Equal(models.EventOnlineUsers, frame.Event)
	req.Empty(onlineUsers(t, frame))
}

func TestHandleWebSocket_MessageFanout(t *testing.T) {
	req := require.New(t)
	server := startTestServer(t)

	u1 := dial(t, server, "token-u1")
	u2 := dial(t, server, "token-u2")

	err := u1.WriteMessage(websocket.TextMessage, []byte(`{
		"event": "new-message",
		"data": {"chatId": "chat-1", "members": ["u1", "u2"], "message": "namaste"}
	}`))
	req.NoError(err)

	// Both members receive the message, then the alert
	for _, conn := range []*websocket.Conn{u1, u2} {
		frame := readFrame(t, conn)
		req.Equal(models.EventNewMessage, frame.Event)

		frame = readFrame(t, conn)
		req.Equal(models.EventNewMessageAlert, frame.Event)
	}
}
