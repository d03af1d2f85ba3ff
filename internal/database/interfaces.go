//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_database.go -package=mocks

package database

import (
	"context"
	"time"

	"chat-delivery/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsersExcept(ctx context.Context, userID string) ([]*models.User, error)
	GetUserSummaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
	SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error
}

type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindDirectConversation(ctx context.Context, a, b string) (*models.Conversation, error)
	FindConversationsByParticipant(ctx context.Context, userID string) ([]*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	IncrementUnread(ctx context.Context, conversationID, exceptUserID string) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
}

type MessageRepository interface {
	// CreateMessage also points the conversation's last message at the new row.
	CreateMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	// UpdateMessageStatus moves a message forward and reports whether the row changed.
	UpdateMessageStatus(ctx context.Context, messageID string, status models.Status) (bool, error)
	// MarkMessageSeen appends the read record and advances the status to seen
	// atomically. It reports false when the reader already has a record or is the sender.
	MarkMessageSeen(ctx context.Context, messageID, userID string, at time.Time) (bool, error)
}

type Database interface {
	UserRepository
	ConversationRepository
	MessageRepository
	Close() error
}
