package domain

import "time"

// Participant is a conversation member. IsActive is false for users who
// have left a group but whose messages remain visible.
type Participant struct {
	User     User `json:"user"`
	IsActive bool `json:"isActive"`
}

type Conversation struct {
	ID           int64         `json:"id"`
	IsGroup      bool          `json:"isGroup"`
	Name         string        `json:"name,omitempty"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func NewDirectConversation(id int64, a, b User) *Conversation {
	return &Conversation{
		ID: id,
		Participants: []Participant{
			{User: a, IsActive: true},
			{User: b, IsActive: true},
		},
	}
}

func NewGroupConversation(id int64, name string, members []User) *Conversation {
	participants := make([]Participant, len(members))
	for i, m := range members {
		participants[i] = Participant{User: m, IsActive: true}
	}
	return &Conversation{
		ID:           id,
		IsGroup:      true,
		Name:         name,
		Participants: participants,
	}
}

// DisplayName resolves the name shown for the conversation. Groups use the
// stored name with a generic fallback; direct conversations use the other
// participant's name.
func (c *Conversation) DisplayName(currentUserID int64) string {
	if c.IsGroup {
		if c.Name != "" {
			return c.Name
		}
		return "Group Chat"
	}
	for _, p := range c.Participants {
		if p.User.ID != currentUserID {
			return p.User.DisplayName()
		}
	}
	return "Unknown"
}
