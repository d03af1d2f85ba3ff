package models

import "time"

// Status is the delivery stage of a message. It only ever moves forward.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank orders statuses; unknown values rank below sent.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	default:
		return 0
	}
}

func (s Status) Valid() bool {
	return s.Rank() > 0
}

// Advances reports whether moving to next is a forward transition.
func (s Status) Advances(next Status) bool {
	return next.Rank() > s.Rank()
}

type MessageKind string

const KindText MessageKind = "text"

type ReadRecord struct {
	UserID string    `json:"user"`
	ReadAt time.Time `json:"readAt"`
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"chat"`
	SenderID       string       `json:"-"`
	Sender         UserSummary  `json:"sender"`
	Content        string       `json:"content"`
	Kind           MessageKind  `json:"messageType"`
	ReplyTo        string       `json:"replyTo,omitempty"`
	Status         Status       `json:"status"`
	ReadBy         []ReadRecord `json:"readBy"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// HasReader reports whether userID already has a read record.
func (m *Message) HasReader(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// NewMessage carries what the store needs to create a message in state sent.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           MessageKind
	ReplyTo        string
}
