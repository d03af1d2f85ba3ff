package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-delivery/internal/models"
	"chat-delivery/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// SendRequest is a validated send_message payload.
type SendRequest struct {
	ConversationID string
	Content        string
	Kind           models.MessageKind
	ReplyTo        string
}

// Delivery owns message creation and the sent → delivered → seen lifecycle.
// Every transition is a conditional write in the store, so a transition and
// its broadcast happen at most once no matter how requests interleave.
type Delivery struct {
	store    Store
	auth     *Authorizer
	registry *Registry
	now      func() time.Time
}

func NewDelivery(store Store, auth *Authorizer, registry *Registry, now func() time.Time) *Delivery {
	if now == nil {
		now = time.Now
	}
	return &Delivery{
		store:    store,
		auth:     auth,
		registry: registry,
		now:      now,
	}
}

// Send persists a new message and returns the broadcasts it causes: the
// message to the whole room, then a delivery ack to the sender when another
// participant is online at send time.
func (d *Delivery) Send(ctx context.Context, senderID string, req SendRequest) ([]Instruction, error) {
	if err := d.auth.AuthorizeJoin(ctx, senderID, req.ConversationID); err != nil {
		return nil, err
	}

	conv, err := d.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAccessDenied
		}
		return nil, transient("load conversation", err)
	}

	if req.ReplyTo != "" {
		if err := d.checkReplyTarget(ctx, conv.ID, req.ReplyTo); err != nil {
			return nil, err
		}
	}

	msg, err := d.store.CreateMessage(ctx, models.NewMessage{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        req.Content,
		Kind:           req.Kind,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		return nil, transient("create message", err)
	}
	if err := d.store.IncrementUnread(ctx, conv.ID, senderID); err != nil {
		logger.Error("Error incrementing unread counters for chat %s: %v", conv.ID, err)
	}

	created := *msg
	out := []Instruction{ToRoom(conv.ID, Outbound{Event: EventReceiveMessage, Data: &created})}
	return append(out, d.markDelivered(ctx, msg, conv)...), nil
}

func (d *Delivery) checkReplyTarget(ctx context.Context, conversationID, replyTo string) error {
	parent, err := d.store.GetMessage(ctx, replyTo)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("reply target: %w", models.ErrNotFound)
		}
		return transient("load reply target", err)
	}
	if parent.ConversationID != conversationID {
		return fmt.Errorf("reply target: %w", models.ErrNotFound)
	}
	return nil
}

// markDelivered advances the message when any other participant holds a live
// session. The single status field records the highest stage reached by any
// recipient; the ack reaches the sender once.
func (d *Delivery) markDelivered(ctx context.Context, msg *models.Message, conv *models.Conversation) []Instruction {
	reachable := lo.Filter(conv.Others(msg.SenderID), func(id string, _ int) bool {
		return d.registry.IsOnline(id)
	})
	if len(reachable) == 0 {
		return nil
	}

	advanced, err := d.store.UpdateMessageStatus(ctx, msg.ID, models.StatusDelivered)
	if err != nil {
		logger.Error("Error marking message %s delivered: %v", msg.ID, err)
		return nil
	}
	if !advanced {
		return nil
	}
	msg.Status = models.StatusDelivered
	logger.Debug("Message %s delivered to %d online recipient(s)", msg.ID, len(reachable))

	return []Instruction{ToUser(msg.SenderID, Outbound{Event: EventMessageDelivered, Data: msg.ID})}
}

// MarkSeen records that readerID has seen messageID. Repeated acks from the
// same reader and acks from the sender are no-ops.
func (d *Delivery) MarkSeen(ctx context.Context, readerID, conversationID, messageID string) ([]Instruction, error) {
	if err := d.auth.AuthorizeJoin(ctx, readerID, conversationID); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, models.ErrNotFound
	}

	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, transient("load message", err)
	}
	if msg.ConversationID != conversationID {
		return nil, models.ErrNotFound
	}
	if msg.SenderID == readerID || msg.HasReader(readerID) {
		return nil, nil
	}

	appended, err := d.store.MarkMessageSeen(ctx, msg.ID, readerID, d.now())
	if err != nil {
		return nil, transient("mark message seen", err)
	}
	if !appended {
		return nil, nil
	}
	if err := d.store.ResetUnread(ctx, conversationID, readerID); err != nil {
		logger.Error("Error resetting unread counter for chat %s: %v", conversationID, err)
	}

	return []Instruction{ToUser(msg.SenderID, Outbound{
		Event: EventMessageSeen,
		Data:  MessageSeenPayload{MessageID: msg.ID, SeenBy: readerID},
	})}, nil
}
