package models

import "time"

const (
	// Hard bounds on group chat membership. A group below the minimum is
	// not viable (it would degenerate into a direct chat), above the
	// maximum fan-out cost becomes unreasonable.
	MinGroupMembers = 3
	MaxGroupMembers = 100
)

type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GroupChat bool      `json:"group_chat"`
	Creator   string    `json:"creator"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers can mutate a candidate member list
// without the stored chat observing a partial update.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	return &cp
}

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
