package gateway

import (
	"context"
	"encoding/json"
	"time"

	"gupshup/internal/models"
	"gupshup/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type messageEvent struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members" validate:"required,min=1"`
	Message string   `json:"message" validate:"required"`
}

type typingEvent struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members" validate:"required,min=1"`
}

type contextEvent struct {
	Members []string `json:"members" validate:"required,min=1"`
}

// handleInbound is the dispatch table for events an active connection may
// emit. Malformed payloads are logged and dropped; they never tear down
// the connection.
func (g *Gateway) handleInbound(c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Warn("Unreadable frame from user %s: %v", c.userID, err)
		return
	}

	switch models.EventKind(frame.Event) {
	case models.EventNewMessage:
		g.handleNewMessage(c, frame.Data)
	case models.EventStartTyping:
		g.handleTyping(c, models.EventStartTyping, frame.Data)
	case models.EventStopTyping:
		g.handleTyping(c, models.EventStopTyping, frame.Data)
	case models.EventChatJoined:
		g.handleChatContext(c, frame.Data, true)
	case models.EventChatLeaved:
		g.handleChatContext(c, frame.Data, false)
	default:
		logger.Warn("Unknown event %q from user %s", frame.Event, c.userID)
	}
}

func (g *Gateway) decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	return g.validate.Struct(v)
}

// handleNewMessage fans the message out to the chat's members first and
// persists it afterwards, off the socket's event loop. Live viewers see
// the message even if the save later fails; durability is not allowed to
// add latency here.
func (g *Gateway) handleNewMessage(c *Client, raw json.RawMessage) {
	var ev messageEvent
	if err := g.decode(raw, &ev); err != nil {
		logger.Warn("Invalid %s payload from user %s: %v", models.EventNewMessage, c.userID, err)
		return
	}

	now := time.Now().UTC()
	wire := models.WireMessage{
		ID:        uuid.NewString(),
		Sender:    models.WireSender{ID: c.userID, Name: c.username},
		ChatID:    ev.ChatID,
		Content:   ev.Message,
		CreatedAt: now.Format(time.RFC3339),
	}

	g.router.Dispatch(models.FanoutEvent{
		Kind:    models.EventNewMessage,
		Targets: ev.Members,
		Payload: models.NewMessagePayload{ChatID: ev.ChatID, Message: wire},
	})
	g.router.Dispatch(models.FanoutEvent{
		Kind:    models.EventNewMessageAlert,
		Targets: ev.Members,
		Payload: models.ChatIDPayload{ChatID: ev.ChatID},
	})

	go func() {
		msg := &models.Message{
			ID:        wire.ID,
			ChatID:    ev.ChatID,
			SenderID:  c.userID,
			Content:   ev.Message,
			CreatedAt: now,
		}
		if err := g.messages.SaveMessage(context.Background(), msg); err != nil {
			// Fan-out already happened and cannot be retracted.
			logger.Error("Error saving message %s: %v", msg.ID, err)
		}
	}()
}

// handleTyping forwards the indicator verbatim to everyone in the chat
// except the sender.
func (g *Gateway) handleTyping(c *Client, kind models.EventKind, raw json.RawMessage) {
	var ev typingEvent
	if err := g.decode(raw, &ev); err != nil {
		logger.Warn("Invalid %s payload from user %s: %v", kind, c.userID, err)
		return
	}

	g.router.Dispatch(models.FanoutEvent{
		Kind:    kind,
		Targets: lo.Without(ev.Members, c.userID),
		Payload: models.ChatIDPayload{ChatID: ev.ChatID},
	})
}

// handleChatContext flips the sender's presence when they enter or leave
// a chat context and shares the refreshed online set with that chat's
// members.
func (g *Gateway) handleChatContext(c *Client, raw json.RawMessage, joined bool) {
	var ev contextEvent
	if err := g.decode(raw, &ev); err != nil {
		logger.Warn("Invalid chat context payload from user %s: %v", c.userID, err)
		return
	}

	if joined {
		g.presence.MarkOnline(c.userID)
	} else {
		g.presence.MarkOffline(c.userID)
	}

	g.router.Dispatch(models.FanoutEvent{
		Kind:    models.EventOnlineUsers,
		Targets: ev.Members,
		Payload: models.OnlineUsersPayload{Users: g.presence.Snapshot()},
	})
}
