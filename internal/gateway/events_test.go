package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gupshup/internal/models"
	"gupshup/internal/presence"
	"gupshup/internal/registry"

	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []models.FanoutEvent
	broadcasts []models.FanoutEvent
}

func (f *fakeDispatcher) Dispatch(event models.FanoutEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, event)
}

func (f *fakeDispatcher) Broadcast(event models.FanoutEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, event)
}

type fakeAuthenticator struct{}

func (fakeAuthenticator) Verify(ctx context.Context, credential string) (*models.User, error) {
	return nil, fmt.Errorf("not used")
}

type fakeMessageRepo struct {
	saved chan *models.Message
}

func (f *fakeMessageRepo) SaveMessage(ctx context.Context, msg *models.Message) error {
	f.saved <- msg
	return nil
}

func (f *fakeMessageRepo) ListMessages(ctx context.Context, chatID string, page, perPage int) ([]*models.Message, int, error) {
	return nil, 0, nil
}

func newTestGateway() (*Gateway, *fakeDispatcher, *fakeMessageRepo) {
	router := &fakeDispatcher{}
	messages := &fakeMessageRepo{saved: make(chan *models.Message, 1)}
	g := New(registry.New(), presence.NewTracker(), router, fakeAuthenticator{}, messages)
	return g, router, messages
}

func TestHandleInbound_NewMessage(t *testing.T) {
	req := require.New(t)
	g, router, messages := newTestGateway()
	client := newClient(g, nil, "u1", "uma")

	g.handleInbound(client, []byte(`{
		"event": "new-message",
		"data": {"chatId": "chat-1", "members": ["u1", "u2"], "message": "hello"}
	}`))

	// Fan-out happens immediately: the message, then the alert
	req.Len(router.dispatched, 2)

	msgEvent := router.dispatched[0]
	req.Equal(models.EventNewMessage, msgEvent.Kind)
	req.Equal([]string{"u1", "u2"}, msgEvent.Targets)
	payload := msgEvent.Payload.(models.NewMessagePayload)
	req.Equal("chat-1", payload.ChatID)
	req.Equal("hello", payload.Message.Content)
	req.Equal("u1", payload.Message.Sender.ID)
	req.Equal("uma", payload.Message.Sender.Name)
	req.NotEmpty(payload.Message.ID)

	alertEvent := router.dispatched[1]
	req.Equal(models.EventNewMessageAlert, alertEvent.Kind)
	req.Equal([]string{"u1", "u2"}, alertEvent.Targets)

	// Persistence is asynchronous but does happen
	select {
	case saved := <-messages.saved:
		req.Equal(payload.Message.ID, saved.ID)
		req.Equal("hello", saved.Content)
		req.Equal("u1", saved.SenderID)
	case <-time.After(time.Second):
		t.Fatal("message was never persisted")
	}
}

func TestHandleInbound_NewMessage_InvalidPayload(t *testing.T) {
	req := require.New(t)
	g, router, _ := newTestGateway()
	client := newClient(g, nil, "u1", "uma")

	// Missing message body: dropped, no fan-out
	g.handleInbound(client, []byte(`{
		"event": "new-message",
		"data": {"chatId": "chat-1", "members": ["u1", "u2"]}
	}`))

	req.Empty(router.dispatched)
}

func TestHandleInbound_Typing_ExcludesSender(t *testing.T) {
	req := require.New(t)
	g, router, _ := newTestGateway()
	client := newClient(g, nil, "u1", "uma")

	g.handleInbound(client, []byte(`{
		"event": "start-typing",
		"data": {"chatId": "chat-1", "members": ["u1", "u2", "u3"]}
	}`))
	g.handleInbound(client, []byte(`{
		"event": "stop-typing",
		"data": {"chatId": "chat-1", "members": ["u1", "u2", "u3"]}
	}`))

	req.Len(router.dispatched, 2)
	req.Equal(models.EventStartTyping, router.dispatched[0].Kind)
	req.Equal([]string{"u2", "u3"}, router.dispatched[0].Targets)
	req.Equal(models.EventStopTyping, router.dispatched[1].Kind)
	req.Equal([]string{"u2", "u3"}, router.dispatched[1].Targets)
}

func TestHandleInbound_ChatContextPresence(t *testing.T) {
	req := require.New(t)
	g, router, _ := newTestGateway()
	client := newClient(g, nil, "u1", "uma")

	// Joining a chat context marks the user online
	g.handleInbound(client, []byte(`{
		"event": "chat-joined",
		"data": {"members": ["u1", "u2"]}
	}`))

	req.Equal([]string{"u1"}, g.presence.Snapshot())
	req.Len(router.dispatched, 1)
	req.Equal(models.EventOnlineUsers, router.dispatched[0].Kind)
	req.Equal([]string{"u1"}, router.dispatched[0].Payload.(models.OnlineUsersPayload).Users)

	// Leaving the context marks them offline again
	g.handleInbound(client, []byte(`{
		"event": "chat-leaved",
		"data": {"members": ["u1", "u2"]}
	}`))

	req.Empty(g.presence.Snapshot())
	req.Len(router.dispatched, 2)
	req.Empty(router.dispatched[1].Payload.(models.OnlineUsersPayload).Users)
}

func TestHandleInbound_UnknownEvent(t *testing.T) {
	req := require.New(t)
	g, router, _ := newTestGateway()
	client := newClient(g, nil, "u1", "uma")

	g.handleInbound(client, []byte(`{"event": "no-such-event", "data": {}}`))
	g.handleInbound(client, []byte(`not even json`))

	req.Empty(router.dispatched)
}

func TestClient_Deliver(t *testing.T) {
	req := require.New(t)
	g, _, _ := newTestGateway()
	client := newClient(g, nil, "u1", "uma")

	req.NoError(client.Deliver([]byte(`{}`)))

	// A closed client refuses delivery instead of blocking the router
	close(client.done)
	req.ErrorIs(client.Deliver([]byte(`{}`)), errEndpointClosed)
}

func TestClient_Deliver_BufferFull(t *testing.T) {
	req := require.New(t)
	g, _, _ := newTestGateway()
	client := newClient(g, nil, "u1", "uma")

	for i := 0; i < sendBufferSize; i++ {
		req.NoError(client.Deliver([]byte(`{}`)))
	}
	req.ErrorIs(client.Deliver([]byte(`{}`)), errSendBufferFull)
}
