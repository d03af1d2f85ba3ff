package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"chat-delivery/internal/models"

	"github.com/go-playground/validator/v10"
)

type EventName string

// Inbound events.
const (
	EventJoin        EventName = "join"
	EventJoinChat    EventName = "join_chat"
	EventLeaveChat   EventName = "leave_chat"
	EventSendMessage EventName = "send_message"
	EventMarkSeen    EventName = "mark_seen"
	EventTyping      EventName = "typing"
	EventStopTyping  EventName = "stop_typing"
	EventDisconnect  EventName = "disconnect"
)

// Outbound events.
const (
	EventReceiveMessage   EventName = "receive_message"
	EventMessageDelivered EventName = "message_delivered"
	EventMessageSeen      EventName = "message_seen"
	EventUserTyping       EventName = "user_typing"
	EventUserOnline       EventName = "user_online"
	EventUserOffline      EventName = "user_offline"
	EventError            EventName = "error"
)

// Inbound is one frame received from a client.
type Inbound struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is one frame pushed to a client.
type Outbound struct {
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

type SendMessagePayload struct {
	ChatID      string `json:"chatId" validate:"required"`
	Content     string `json:"content" validate:"required,max=4000"`
	MessageType string `json:"messageType" validate:"omitempty,max=32,alphanum"`
	ReplyTo     string `json:"replyTo" validate:"omitempty,uuid"`
}

type MarkSeenPayload struct {
	ChatID    string `json:"chatId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

type TypingPayload struct {
	ChatID string `json:"chatId" validate:"required"`
}

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type MessageSeenPayload struct {
	MessageID string `json:"messageId"`
	SeenBy    string `json:"seenBy"`
}

type ErrorPayload struct {
	Event   EventName `json:"event,omitempty"`
	Message string    `json:"message"`
}

var validate = validator.New()

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", models.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}

// decodeID reads the bare string payload used by join, join_chat and leave_chat.
func decodeID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("%w: expected an id string", models.ErrValidation)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", models.ErrValidation)
	}
	return id, nil
}

func decodeSendMessage(data json.RawMessage) (SendRequest, error) {
	var p SendMessagePayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return SendRequest{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
	}
	p.Content = strings.TrimSpace(p.Content)
	if err := validate.Struct(p); err != nil {
		return SendRequest{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	kind := models.MessageKind(p.MessageType)
	if kind == "" {
		kind = models.KindText
	}
	return SendRequest{
		ConversationID: p.ChatID,
		Content:        p.Content,
		Kind:           kind,
		ReplyTo:        p.ReplyTo,
	}, nil
}
