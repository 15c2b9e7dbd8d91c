package models

// EventKind names are part of the wire contract with existing clients and
// must not be renamed.
type EventKind string

const (
	EventNewMessage      EventKind = "new-message"
	EventNewMessageAlert EventKind = "new-message-alert"
	EventStartTyping     EventKind = "start-typing"
	EventStopTyping      EventKind = "stop-typing"
	EventChatJoined      EventKind = "chat-joined"
	EventChatLeaved      EventKind = "chat-leaved"
	EventOnlineUsers     EventKind = "online-users"
	EventAlert           EventKind = "alert"
	EventRefetchChats    EventKind = "refetch-chats"
)

// FanoutEvent is the transient unit of delivery handed to the fan-out
// router. It is never persisted.
type FanoutEvent struct {
	Kind    EventKind
	Targets []string
	Payload any
}

// Frame is the envelope written to every resolved endpoint.
type Frame struct {
	Event EventKind `json:"event"`
	Data  any       `json:"data,omitempty"`
}

// WireMessage is the ephemeral representation of a just-sent message,
// fanned out before (and independently of) durable persistence.
type WireMessage struct {
	ID        string     `json:"_id"`
	Sender    WireSender `json:"sender"`
	ChatID    string     `json:"chatId"`
	Content   string     `json:"content"`
	CreatedAt string     `json:"createdAt"`
}

type WireSender struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Socket payload shapes. Field names follow the client wire format.

type NewMessagePayload struct {
	ChatID  string      `json:"chatId"`
	Message WireMessage `json:"message"`
}

type ChatIDPayload struct {
	ChatID string `json:"chatId"`
}

type AlertPayload struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type OnlineUsersPayload struct {
	Users []string `json:"users"`
}
