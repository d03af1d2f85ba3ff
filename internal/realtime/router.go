package realtime

import (
	"context"
	"errors"
	"time"

	"chat-delivery/internal/models"
	"chat-delivery/pkg/logger"
)

// Instruction is one outbound broadcast. Exactly one of Room, User or Conn
// selects the audience; Except removes a connection from a room audience.
type Instruction struct {
	Room   string
	User   string
	Conn   Conn
	Except Conn
	Event  Outbound
}

func ToRoom(room string, evt Outbound) Instruction {
	return Instruction{Room: room, Event: evt}
}

func ToRoomExcept(room string, except Conn, evt Outbound) Instruction {
	return Instruction{Room: room, Except: except, Event: evt}
}

func ToUser(userID string, evt Outbound) Instruction {
	return Instruction{User: userID, Event: evt}
}

func ToConn(conn Conn, evt Outbound) Instruction {
	return Instruction{Conn: conn, Event: evt}
}

type Option func(*Router)

// WithStoreTimeout bounds the store calls made while handling one event.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// Router dispatches inbound events to the registry, authorizer, presence and
// delivery components and executes the broadcasts they return.
type Router struct {
	registry *Registry
	rooms    *Rooms
	auth     *Authorizer
	presence *Presence
	delivery *Delivery
	timeout  time.Duration
	now      func() time.Time
}

func NewRouter(store Store, opts ...Option) *Router {
	r := &Router{
		registry: NewRegistry(),
		rooms:    NewRooms(),
		timeout:  5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.auth = NewAuthorizer(store)
	r.presence = NewPresence(store, r.registry, r.now)
	r.delivery = NewDelivery(store, r.auth, r.registry, r.now)
	return r
}

func (r *Router) Registry() *Registry {
	return r.registry
}

func (r *Router) Rooms() *Rooms {
	return r.rooms
}

// Handle processes one inbound event. Callers must handle a connection's
// events sequentially; that is what keeps one sender's messages in order.
func (r *Router) Handle(ctx context.Context, s *Session, in Inbound) {
	if in.Event == EventDisconnect {
		r.Disconnect(ctx, s)
		return
	}
	if s.Released() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.dispatch(ctx, s, in)
	if err != nil {
		r.reject(s, in.Event, err)
		return
	}
	r.execute(out)
}

func (r *Router) dispatch(ctx context.Context, s *Session, in Inbound) ([]Instruction, error) {
	if in.Event == EventJoin {
		return r.handleJoin(ctx, s, in)
	}

	userID := s.UserID()
	if userID == "" {
		return nil, ErrNotJoined
	}

	switch in.Event {
	case EventJoinChat:
		return r.handleJoinChat(ctx, s, userID, in)
	case EventLeaveChat:
		return r.handleLeaveChat(s, in)
	case EventSendMessage:
		return r.handleSendMessage(ctx, s, userID, in)
	case EventMarkSeen:
		return r.handleMarkSeen(ctx, userID, in)
	case EventTyping:
		return r.handleTyping(s, userID, in, true)
	case EventStopTyping:
		return r.handleTyping(s, userID, in, false)
	default:
		return nil, ErrUnknownEvent
	}
}

func (r *Router) handleJoin(ctx context.Context, s *Session, in Inbound) ([]Instruction, error) {
	userID, err := decodeID(in.Data)
	if err != nil {
		return nil, err
	}
	if s.authUserID != "" && userID != s.authUserID {
		return nil, models.ErrAccessDenied
	}
	if current := s.UserID(); current != "" {
		if current != userID {
			return nil, models.ErrAccessDenied
		}
		return nil, nil
	}

	var superseded Conn
	live := s.whileLive(func() {
		s.userID = userID
		superseded = r.registry.Register(userID, s.conn)
	})
	if !live {
		return nil, nil
	}
	if superseded != nil {
		logger.Info("User %s reconnected, closing connection %s", userID, superseded.ID())
		superseded.Close()
	}
	logger.Info("User %s joined with connection %s", userID, s.conn.ID())

	online, err := r.presence.Sync(ctx, userID)
	if err != nil {
		logger.Error("Error persisting online status for %s: %v", userID, err)
	}
	if !online {
		return nil, nil
	}

	out, err := r.presence.BroadcastOnline(ctx, userID)
	if err != nil {
		logger.Error("Error broadcasting online status for %s: %v", userID, err)
		return nil, nil
	}
	return out, nil
}

func (r *Router) handleJoinChat(ctx context.Context, s *Session, userID string, in Inbound) ([]Instruction, error) {
	chatID, err := decodeID(in.Data)
	if err != nil {
		return nil, err
	}
	if err := r.auth.AuthorizeJoin(ctx, userID, chatID); err != nil {
		return nil, err
	}

	s.whileLive(func() {
		if r.rooms.Subscribe(chatID, s.conn) {
			logger.Debug("User %s joined chat %s", userID, chatID)
		}
	})
	return nil, nil
}

func (r *Router) handleLeaveChat(s *Session, in Inbound) ([]Instruction, error) {
	chatID, err := decodeID(in.Data)
	if err != nil {
		return nil, err
	}
	r.rooms.Unsubscribe(chatID, s.conn)
	return nil, nil
}

func (r *Router) handleSendMessage(ctx context.Context, s *Session, userID string, in Inbound) ([]Instruction, error) {
	req, err := decodeSendMessage(in.Data)
	if err != nil {
		return nil, err
	}

	out, err := r.delivery.Send(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	// The sender passed authorization, so its connection sees its own message.
	s.whileLive(func() {
		r.rooms.Subscribe(req.ConversationID, s.conn)
	})
	return out, nil
}

func (r *Router) handleMarkSeen(ctx context.Context, userID string, in Inbound) ([]Instruction, error) {
	var p MarkSeenPayload
	if err := decodePayload(in.Data, &p); err != nil {
		return nil, err
	}
	return r.delivery.MarkSeen(ctx, userID, p.ChatID, p.MessageID)
}

// handleTyping relays to the rest of the room. Nothing is stored and a
// connection outside the room is ignored.
func (r *Router) handleTyping(s *Session, userID string, in Inbound, isTyping bool) ([]Instruction, error) {
	var p TypingPayload
	if err := decodePayload(in.Data, &p); err != nil {
		return nil, err
	}
	if !r.rooms.IsSubscribed(p.ChatID, s.conn) {
		logger.Debug("Dropping typing event from %s outside chat %s", userID, p.ChatID)
		return nil, nil
	}

	return []Instruction{ToRoomExcept(p.ChatID, s.conn, Outbound{
		Event: EventUserTyping,
		Data:  UserTypingPayload{UserID: userID, IsTyping: isTyping},
	})}, nil
}

// Disconnect releases the session's room subscriptions and registry entry
// exactly once, then persists and broadcasts the offline transition. Store
// failures are logged and never block the release.
func (r *Router) Disconnect(ctx context.Context, s *Session) {
	s.once.Do(func() {
		var (
			userID  string
			removed bool
		)
		s.mu.Lock()
		s.released = true
		userID = s.userID
		left := r.rooms.Release(s.conn)
		if userID != "" {
			removed = r.registry.Unregister(userID, s.conn)
		}
		s.mu.Unlock()
		s.conn.Close()

		logger.Debug("Connection %s released %d chat subscription(s)", s.conn.ID(), len(left))
		if !removed {
			return
		}
		logger.Info("User %s disconnected", userID)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		online, err := r.presence.Sync(ctx, userID)
		if err != nil {
			logger.Error("Error persisting offline status for %s: %v", userID, err)
		}
		if online {
			// a newer connection registered meanwhile
			return
		}

		out, err := r.presence.BroadcastOffline(ctx, userID)
		if err != nil {
			logger.Error("Error broadcasting offline status for %s: %v", userID, err)
			return
		}
		r.execute(out)
	})
}

func (r *Router) reject(s *Session, event EventName, err error) {
	var msg string
	switch {
	case errors.Is(err, models.ErrAccessDenied):
		msg = "You are not a participant in this chat"
	case errors.Is(err, models.ErrNotFound):
		msg = "Message not found"
	case errors.Is(err, models.ErrValidation):
		msg = "Invalid request"
	case errors.Is(err, ErrNotJoined):
		msg = "Join before sending events"
	case errors.Is(err, ErrUnknownEvent):
		msg = "Unknown event"
	default:
		logger.Error("Error handling %s for %s: %v", event, s.UserID(), err)
		msg = "Request failed"
		if event == EventSendMessage {
			msg = "Failed to send message"
		}
	}
	r.execute([]Instruction{ToConn(s.conn, Outbound{
		Event: EventError,
		Data:  ErrorPayload{Event: event, Message: msg},
	})})
}

// execute performs broadcasts in order without holding any lock while sending.
func (r *Router) execute(out []Instruction) {
	for _, ins := range out {
		switch {
		case ins.Room != "":
			for _, c := range r.rooms.Members(ins.Room) {
				if ins.Except != nil && sameConn(c, ins.Except) {
					continue
				}
				c.Send(ins.Event)
			}
		case ins.User != "":
			if c := r.registry.Lookup(ins.User); c != nil {
				c.Send(ins.Event)
			}
		case ins.Conn != nil:
			ins.Conn.Send(ins.Event)
		}
	}
}
