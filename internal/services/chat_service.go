package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"chat-delivery/internal/database"
	"chat-delivery/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

type ChatService struct {
	db database.Database
}

func NewChatService(db database.Database) *ChatService {
	return &ChatService{db: db}
}

func (s *ChatService) ListUsers(ctx context.Context, userID string) ([]*models.User, error) {
	users, err := s.db.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListChats returns the caller's conversations, most recently active first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]*models.ChatView, error) {
	convs, err := s.db.FindConversationsByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}

	unread, err := s.db.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unread counts: %w", err)
	}

	summaries, err := s.summaries(ctx, convs)
	if err != nil {
		return nil, err
	}

	views := make([]*models.ChatView, 0, len(convs))
	for _, conv := range convs {
		view, err := s.view(ctx, conv, summaries)
		if err != nil {
			return nil, err
		}
		view.UnreadCount = unread[conv.ID]
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].UpdatedAt.After(views[j].UpdatedAt)
	})
	return views, nil
}

// CreateChat opens a conversation. A direct chat is unique per pair of users:
// asking for an existing one returns it with created set to false.
func (s *ChatService) CreateChat(ctx context.Context, creatorID string, req *models.CreateChatRequest) (*models.ChatView, bool, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	others := req.ParticipantIDs
	if req.ParticipantID != "" {
		others = append([]string{req.ParticipantID}, others...)
	}
	others = lo.Without(lo.Uniq(others), creatorID)
	if len(others) == 0 {
		return nil, false, fmt.Errorf("%w: at least one other participant is required", models.ErrValidation)
	}
	for _, id := range others {
		if _, err := s.db.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, false, fmt.Errorf("participant %s: %w", id, models.ErrNotFound)
			}
			return nil, false, fmt.Errorf("failed to load participant: %w", err)
		}
	}

	if req.IsGroupChat {
		conv, err := s.db.CreateConversation(ctx, &models.Conversation{
			Name:         req.Name,
			IsGroupChat:  true,
			AdminID:      creatorID,
			Participants: append([]string{creatorID}, others...),
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to create chat: %w", err)
		}
		view, err := s.single(ctx, conv)
		return view, err == nil, err
	}

	if len(others) != 1 {
		return nil, false, fmt.Errorf("%w: a direct chat has exactly one other participant", models.ErrValidation)
	}
	other := others[0]

	existing, err := s.db.FindDirectConversation(ctx, creatorID, other)
	switch {
	case err == nil:
		view, err := s.single(ctx, existing)
		return view, false, err
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up chat: %w", err)
	}

	conv, err := s.db.CreateConversation(ctx, &models.Conversation{
		Participants: []string{creatorID, other},
	})
	if errors.Is(err, models.ErrConflict) {
		// another request created the pair first
		existing, err := s.db.FindDirectConversation(ctx, creatorID, other)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up chat: %w", err)
		}
		view, err := s.single(ctx, existing)
		return view, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create chat: %w", err)
	}

	view, err := s.single(ctx, conv)
	return view, err == nil, err
}

// ListMessages returns a conversation's history, oldest first, to one of its
// participants.
func (s *ChatService) ListMessages(ctx context.Context, userID, chatID string) ([]*models.Message, error) {
	if _, err := uuid.Parse(chatID); err != nil {
		return nil, models.ErrAccessDenied
	}

	ok, err := s.db.IsParticipant(ctx, chatID, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return nil, models.ErrAccessDenied
	}

	messages, err := s.db.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, nil
}

func (s *ChatService) single(ctx context.Context, conv *models.Conversation) (*models.ChatView, error) {
	summaries, err := s.summaries(ctx, []*models.Conversation{conv})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, conv, summaries)
}

func (s *ChatService) summaries(ctx context.Context, convs []*models.Conversation) (map[string]models.UserSummary, error) {
	ids := lo.Uniq(lo.FlatMap(convs, func(c *models.Conversation, _ int) []string {
		return c.Participants
	}))
	if len(ids) == 0 {
		return map[string]models.UserSummary{}, nil
	}

	summaries, err := s.db.GetUserSummaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return summaries, nil
}

func (s *ChatService) view(ctx context.Context, conv *models.Conversation, summaries map[string]models.UserSummary) (*models.ChatView, error) {
	view := &models.ChatView{
		ID:          conv.ID,
		Name:        conv.Name,
		IsGroupChat: conv.IsGroupChat,
		AdminID:     conv.AdminID,
		Participants: lo.Map(conv.Participants, func(id string, _ int) models.UserSummary {
			if summary, ok := summaries[id]; ok {
				return summary
			}
			return models.UserSummary{ID: id}
		}),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}

	if conv.LastMessageID == "" {
		return view, nil
	}
	last, err := s.db.GetMessage(ctx, conv.LastMessageID)
	switch {
	case err == nil:
		view.LastMessage = last
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load last message: %w", err)
	}
	return view, nil
}
