package gateway

import (
	"context"
	"net/http"

	"gupshup/internal/database"
	"gupshup/internal/models"
	"gupshup/internal/presence"
	"gupshup/internal/registry"
	"gupshup/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// Authenticator verifies the credential material a connecting client
// presents. Implemented by the auth service.
type Authenticator interface {
	Verify(ctx context.Context, credential string) (*models.User, error)
}

// Dispatcher is the outbound event surface the gateway forwards to.
// Implemented by the fan-out router.
type Dispatcher interface {
	Dispatch(event models.FanoutEvent)
	Broadcast(event models.FanoutEvent)
}

// Gateway controls the lifecycle of every websocket connection:
// authenticate, register, pump inbound events into the fan-out router,
// and tear everything down on disconnect.
type Gateway struct {
	registry *registry.Registry
	presence *presence.Tracker
	router   Dispatcher
	auth     Authenticator
	messages database.MessageRepository
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func New(reg *registry.Registry, pres *presence.Tracker, router Dispatcher, auth Authenticator, messages database.MessageRepository) *Gateway {
	return &Gateway{
		registry: reg,
		presence: pres,
		router:   router,
		auth:     auth,
		messages: messages,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket takes a connection through
// Connecting -> Authenticated -> Active. Authentication failure is
// terminal: the connection closes without any registration state left
// behind.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := g.auth.Verify(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := newClient(g, conn, user.ID, user.Username)

	// A later connection from the same user replaces the earlier one.
	g.registry.Register(client.userID, client)
	logger.Info("User %s connected", client.username)

	go client.writePump()
	go client.readPump()
}

// disconnect is the single terminal transition. It runs exactly once per
// client no matter what was in flight, then tells every remaining
// connection about the presence change.
func (g *Gateway) disconnect(c *Client) {
	c.closeOnce.Do(func() {
		close(c.done)
		g.registry.UnregisterEndpoint(c.userID, c)
		g.presence.MarkOffline(c.userID)
		c.conn.Close()

		g.router.Broadcast(models.FanoutEvent{
			Kind:    models.EventOnlineUsers,
			Payload: models.OnlineUsersPayload{Users: g.presence.Snapshot()},
		})
		logger.Info("User %s disconnected", c.username)
	})
}
