package models

import (
	"sort"
	"strings"
	"time"
)

// Conversation is the persisted chat as the realtime core sees it.
type Conversation struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	IsGroupChat   bool      `json:"isGroupChat"`
	AdminID       string    `json:"admin,omitempty"`
	Participants  []string  `json:"participants"`
	LastMessageID string    `json:"lastMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID.
func (c *Conversation) Others(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

// DirectKey identifies the unordered pair of a direct conversation.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// ChatView is a conversation as listed to one of its participants.
type ChatView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	IsGroupChat  bool          `json:"isGroupChat"`
	AdminID      string        `json:"admin,omitempty"`
	Participants []UserSummary `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type CreateChatRequest struct {
	ParticipantID  string   `json:"participantId" validate:"omitempty,uuid"`
	ParticipantIDs []string `json:"participantIds" validate:"omitempty,dive,uuid"`
	IsGroupChat    bool     `json:"isGroupChat"`
	Name           string   `json:"name" validate:"required_if=IsGroupChat true,max=100"`
}
