//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

package realtime

import (
	"context"
	"time"

	"chat-delivery/internal/models"
)

// Store is the slice of the persisted store the realtime core consumes.
// The Postgres implementation in internal/database satisfies it.
type Store interface {
	FindConversationsByParticipant(ctx context.Context, userID string) ([]*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// CreateMessage stores the message and makes it the conversation's last
	// message in one write; on error neither happened.
	CreateMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status models.Status) (bool, error)
	// MarkMessageSeen records the reader and advances the message to seen in
	// one write. It reports false when the reader is the sender or already read it.
	MarkMessageSeen(ctx context.Context, messageID, userID string, at time.Time) (bool, error)
	IncrementUnread(ctx context.Context, conversationID, exceptUserID string) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
	SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error
}
