package fanout

import (
	"encoding/json"
	"errors"
	"testing"

	"gupshup/internal/models"
	"gupshup/internal/registry"

	"github.com/stretchr/testify/require"
)

type captureEndpoint struct {
	frames [][]byte
	fail   bool
}

func (c *captureEndpoint) Deliver(frame []byte) error {
	if c.fail {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureEndpoint) decoded(t *testing.T) []models.Frame {
	t.Helper()
	out := make([]models.Frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f models.Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func TestRouter_Dispatch_DeliversToResolvedTargets(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	router := NewRouter(reg)

	epA := &captureEndpoint{}
	epB := &captureEndpoint{}
	reg.Register("user-a", epA)
	reg.Register("user-b", epB)

	router.Dispatch(models.FanoutEvent{
		Kind:    models.EventNewMessageAlert,
		Targets: []string{"user-a", "user-b"},
		Payload: models.ChatIDPayload{ChatID: "chat-1"},
	})

	req.Len(epA.frames, 1)
	req.Len(epB.frames, 1)

	frames := epA.decoded(t)
	req.Equal(models.EventNewMessageAlert, frames[0].Event)
}

func TestRouter_Dispatch_SkipsOfflineTargets(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	router := NewRouter(reg)

	epA := &captureEndpoint{}
	reg.Register("user-a", epA)

	// user-b has no live connection; dispatch must neither fail nor block
	router.Dispatch(models.FanoutEvent{
		Kind:    models.EventRefetchChats,
		Targets: []string{"user-a", "user-b"},
	})

	req.Len(epA.frames, 1)
}

func TestRouter_Dispatch_EndpointFailureDoesNotStopOthers(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	router := NewRouter(reg)

	broken := &captureEndpoint{fail: true}
	healthy := &captureEndpoint{}
	reg.Register("user-a", broken)
	reg.Register("user-b", healthy)

	router.Dispatch(models.FanoutEvent{
		Kind:    models.EventAlert,
		Targets: []string{"user-a", "user-b"},
		Payload: models.AlertPayload{ChatID: "chat-1", Message: "hello"},
	})

	req.Empty(broken.frames)
	req.Len(healthy.frames, 1)
}

func TestRouter_Dispatch_PerEndpointOrderPreserved(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	router := NewRouter(reg)

	ep := &captureEndpoint{}
	reg.Register("user-a", ep)

	router.Dispatch(models.FanoutEvent{
		Kind:    models.EventStartTyping,
		Targets: []string{"user-a"},
		Payload: models.ChatIDPayload{ChatID: "chat-1"},
	})
	router.Dispatch(models.FanoutEvent{
		Kind:    models.EventStopTyping,
		Targets: []string{"user-a"},
		Payload: models.ChatIDPayload{ChatID: "chat-1"},
	})

	frames := ep.decoded(t)
	req.Len(frames, 2)
	req.Equal(models.EventStartTyping, frames[0].Event)
	req.Equal(models.EventStopTyping, frames[1].Event)
}

func TestRouter_Broadcast_ReachesEveryConnection(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	router := NewRouter(reg)

	epA := &captureEndpoint{}
	epB := &captureEndpoint{}
	reg.Register("user-a", epA)
	reg.Register("user-b", epB)

	// Broadcast ignores targets entirely
	router.Broadcast(models.FanoutEvent{
		Kind:    models.EventOnlineUsers,
		Payload: models.OnlineUsersPayload{Users: []string{"user-a"}},
	})

	req.Len(epA.frames, 1)
	req.Len(epB.frames, 1)
}
