package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-delivery/internal/models"

	"github.com/google/uuid"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Outbound
	closes int
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString()}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(evt Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

func (c *fakeConn) Events() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outbound(nil), c.events...)
}

func (c *fakeConn) Named(name EventName) []Outbound {
	var out []Outbound
	for _, e := range c.Events() {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type onlineWrite struct {
	UserID string
	Online bool
}

// memStore is an in-memory Store with the same conditional-write semantics
// as the Postgres implementation.
type memStore struct {
	mu            sync.Mutex
	users         map[string]bool
	convs         map[string]*models.Conversation
	messages      map[string]*models.Message
	unread        map[string]map[string]int
	history       map[string][]models.Status
	onlineWrites  []onlineWrite
	failures      map[string]error
	createdCount  int
	membershipHit int

	// beforeSetOnline runs ahead of each SetUserOnline, outside the lock.
	beforeSetOnline func(userID string, online bool)
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]bool),
		convs:    make(map[string]*models.Conversation),
		messages: make(map[string]*models.Message),
		unread:   make(map[string]map[string]int),
		history:  make(map[string][]models.Status),
		failures: make(map[string]error),
	}
}

func (s *memStore) addUser() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.users[id] = false
	s.mu.Unlock()
	return id
}

func (s *memStore) addConversation(group bool, participants ...string) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[id] = &models.Conversation{
		ID:           id,
		IsGroupChat:  group,
		Participants: append([]string(nil), participants...),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.unread[id] = make(map[string]int)
	return id
}

func (s *memStore) removeParticipant(convID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.convs[convID]
	conv.Participants = conv.Others(userID)
}

func (s *memStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *memStore) clearFailure(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method)
}

func (s *memStore) fail(method string) error {
	if err, ok := s.failures[method]; ok {
		return err
	}
	return nil
}

func (s *memStore) message(id string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *s.messages[id]
	m.ReadBy = append([]models.ReadRecord(nil), m.ReadBy...)
	return m
}

func (s *memStore) statusHistory(id string) []models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Status(nil), s.history[id]...)
}

func (s *memStore) isOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

func (s *memStore) writesFor(userID string) []onlineWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []onlineWrite
	for _, w := range s.onlineWrites {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out
}

func (s *memStore) lastMessageOf(convID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[convID].LastMessageID
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStore) FindConversationsByParticipant(_ context.Context, userID string) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindConversationsByParticipant"); err != nil {
		return nil, err
	}
	var out []*models.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(userID) {
			cp := *c
			cp.Participants = append([]string(nil), c.Participants...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.membershipHit++
	if err := s.fail("IsParticipant"); err != nil {
		return false, err
	}
	c, ok := s.convs[conversationID]
	if !ok {
		return false, nil
	}
	return c.HasParticipant(userID), nil
}

func (s *memStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp, nil
}

func (s *memStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *m
	cp.ReadBy = append([]models.ReadRecord(nil), m.ReadBy...)
	return &cp, nil
}

func (s *memStore) CreateMessage(_ context.Context, nm models.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateMessage"); err != nil {
		return nil, err
	}
	conv, ok := s.convs[nm.ConversationID]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.createdCount++
	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: nm.ConversationID,
		SenderID:       nm.SenderID,
		Sender:         models.UserSummary{ID: nm.SenderID, Username: "user-" + nm.SenderID[:8]},
		Content:        nm.Content,
		Kind:           nm.Kind,
		ReplyTo:        nm.ReplyTo,
		Status:         models.StatusSent,
		ReadBy:         []models.ReadRecord{},
		CreatedAt:      time.Now(),
	}
	s.messages[m.ID] = m
	s.history[m.ID] = []models.Status{models.StatusSent}
	conv.LastMessageID = m.ID
	cp := *m
	return &cp, nil
}

func (s *memStore) UpdateMessageStatus(_ context.Context, messageID string, status models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateMessageStatus"); err != nil {
		return false, err
	}
	m, ok := s.messages[messageID]
	if !ok {
		return false, nil
	}
	if !m.Status.Advances(status) {
		return false, nil
	}
	if status == models.StatusSeen && len(m.ReadBy) == 0 {
		return false, nil
	}
	m.Status = status
	s.history[messageID] = append(s.history[messageID], status)
	return true, nil
}

func (s *memStore) MarkMessageSeen(_ context.Context, messageID, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkMessageSeen"); err != nil {
		return false, err
	}
	m, ok := s.messages[messageID]
	if !ok || m.SenderID == userID || m.HasReader(userID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, models.ReadRecord{UserID: userID, ReadAt: at})
	if m.Status.Advances(models.StatusSeen) {
		m.Status = models.StatusSeen
		s.history[messageID] = append(s.history[messageID], models.StatusSeen)
	}
	return true, nil
}

func (s *memStore) IncrementUnread(_ context.Context, conversationID, exceptUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return models.ErrNotFound
	}
	for _, p := range c.Others(exceptUserID) {
		s.unread[conversationID][p]++
	}
	return nil
}

func (s *memStore) ResetUnread(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unread[conversationID]; !ok {
		return models.ErrNotFound
	}
	s.unread[conversationID][userID] = 0
	return nil
}

func (s *memStore) unreadFor(conversationID, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conversationID][userID]
}

func (s *memStore) SetUserOnline(_ context.Context, userID string, online bool, _ time.Time) error {
	if s.beforeSetOnline != nil {
		s.beforeSetOnline(userID, online)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetUserOnline"); err != nil {
		return err
	}
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("unknown user %s: %w", userID, models.ErrNotFound)
	}
	s.users[userID] = online
	s.onlineWrites = append(s.onlineWrites, onlineWrite{UserID: userID, Online: online})
	return nil
}
