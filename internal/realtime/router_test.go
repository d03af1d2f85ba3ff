package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"chat-delivery/internal/models"

	"github.com/stretchr/testify/require"
)

type client struct {
	conn    *fakeConn
	session *Session
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func connect(t *testing.T, r *Router, userID string) *client {
	t.Helper()
	conn := newFakeConn()
	s := NewSession(conn, userID)
	r.Handle(context.Background(), s, Inbound{Event: EventJoin, Data: raw(t, userID)})
	require.Equal(t, userID, s.UserID())
	return &client{conn: conn, session: s}
}

func (c *client) do(t *testing.T, r *Router, event EventName, data any) {
	t.Helper()
	r.Handle(context.Background(), c.session, Inbound{Event: event, Data: raw(t, data)})
}

func lastError(t *testing.T, c *client) ErrorPayload {
	t.Helper()
	errs := c.conn.Named(EventError)
	require.NotEmpty(t, errs)
	p, ok := errs[len(errs)-1].Data.(ErrorPayload)
	require.True(t, ok)
	return p
}

func TestRouter_Send_To_Offline_Recipient(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)

	alice := connect(t, r, a)
	alice.do(t, r, EventJoinChat, chatID)
	alice.do(t, r, EventSendMessage, SendMessagePayload{ChatID: chatID, Content: "hi"})

	received := alice.conn.Named(EventReceiveMessage)
	req.Len(received, 1)
	msg := received[0].Data.(*models.Message)
	req.Equal("hi", msg.Content)
	req.Equal(models.StatusSent, msg.Status)
	req.Empty(alice.conn.Named(EventMessageDelivered))
	req.Equal(models.StatusSent, store.message(msg.ID).Status)
}

func TestRouter_Delivered_Then_Seen(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)

	alice := connect(t, r, a)
	bob := connect(t, r, b)
	alice.do(t, r, EventJoinChat, chatID)
	bob.do(t, r, EventJoinChat, chatID)

	alice.do(t, r, EventSendMessage, SendMessagePayload{ChatID: chatID, Content: "ping"})

	bobGot := bob.conn.Named(EventReceiveMessage)
	req.Len(bobGot, 1)
	msg := bobGot[0].Data.(*models.Message)
	req.Len(alice.conn.Named(EventReceiveMessage), 1)
	delivered := alice.conn.Named(EventMessageDelivered)
	req.Len(delivered, 1)
	req.Equal(msg.ID, delivered[0].Data)

	bob.do(t, r, EventMarkSeen, MarkSeenPayload{ChatID: chatID, MessageID: msg.ID})
	bob.do(t, r, EventMarkSeen, MarkSeenPayload{ChatID: chatID, MessageID: msg.ID})

	seen := alice.conn.Named(EventMessageSeen)
	req.Len(seen, 1)
	req.Equal(MessageSeenPayload{MessageID: msg.ID, SeenBy: b}, seen[0].Data)
	req.Empty(bob.conn.Named(EventMessageSeen))
	req.Empty(bob.conn.Named(EventError))
	req.Equal(
		[]models.Status{models.StatusSent, models.StatusDelivered, models.StatusSeen},
		store.statusHistory(msg.ID),
	)
}

func TestRouter_Reconnect_Supersedes_Old_Connection(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	store.addConversation(false, a, b)
	bob := connect(t, r, b)

	first := connect(t, r, a)
	second := connect(t, r, a)

	// Then the first connection is closed once and the second is the live session
	req.Equal(1, first.conn.CloseCount())
	req.Zero(second.conn.CloseCount())
	req.Same(second.conn, r.Registry().Lookup(a).(*fakeConn))

	// When the superseded connection's read loop ends
	r.Disconnect(context.Background(), first.session)

	// Then the newer session survives and no offline event reaches peers
	req.True(r.Registry().IsOnline(a))
	req.True(store.isOnline(a))
	req.Empty(bob.conn.Named(EventUserOffline))
	req.Len(bob.conn.Named(EventUserOnline), 2)
}

func TestRouter_JoinChat_Requires_Membership(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b, mallory := store.addUser(), store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)

	m := connect(t, r, mallory)
	m.do(t, r, EventJoinChat, chatID)
	req.Equal(ErrorPayload{Event: EventJoinChat, Message: "You are not a participant in this chat"}, lastError(t, m))
	req.False(r.Rooms().IsSubscribed(chatID, m.conn))

	m.do(t, r, EventSendMessage, SendMessagePayload{ChatID: chatID, Content: "let me in"})
	req.Equal(ErrorPayload{Event: EventSendMessage, Message: "You are not a participant in this chat"}, lastError(t, m))
	req.Zero(store.messageCount())
	req.Empty(r.Rooms().Members(chatID))

	m.do(t, r, EventJoinChat, "not-a-uuid")
	req.Equal("You are not a participant in this chat", lastError(t, m).Message)
}

func TestRouter_Typing_Reaches_Rest_Of_Room(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b, c := store.addUser(), store.addUser(), store.addUser()
	chatID := store.addConversation(true, a, b, c)

	alice := connect(t, r, a)
	bob := connect(t, r, b)
	carol := connect(t, r, c)
	alice.do(t, r, EventJoinChat, chatID)
	bob.do(t, r, EventJoinChat, chatID)

	alice.do(t, r, EventTyping, TypingPayload{ChatID: chatID})
	alice.do(t, r, EventStopTyping, TypingPayload{ChatID: chatID})
	// carol never joined the room, so her typing goes nowhere
	carol.do(t, r, EventTyping, TypingPayload{ChatID: chatID})

	typing := bob.conn.Named(EventUserTyping)
	req.Len(typing, 2)
	req.Equal(UserTypingPayload{UserID: a, IsTyping: true}, typing[0].Data)
	req.Equal(UserTypingPayload{UserID: a, IsTyping: false}, typing[1].Data)
	req.Empty(alice.conn.Named(EventUserTyping))
	req.Empty(carol.conn.Named(EventUserTyping))
	req.Empty(carol.conn.Named(EventError))
	req.Zero(store.messageCount())
}

func TestRouter_Presence_Reaches_Only_Peers(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b, stranger := store.addUser(), store.addUser(), store.addUser()
	store.addConversation(false, a, b)

	bob := connect(t, r, b)
	other := connect(t, r, stranger)
	alice := connect(t, r, a)

	online := bob.conn.Named(EventUserOnline)
	req.Len(online, 1)
	req.Equal(a, online[0].Data)
	req.True(store.isOnline(a))

	r.Disconnect(context.Background(), alice.session)

	offline := bob.conn.Named(EventUserOffline)
	req.Len(offline, 1)
	req.Equal(a, offline[0].Data)
	req.False(store.isOnline(a))
	req.False(r.Registry().IsOnline(a))
	req.Empty(other.conn.Events())
}

func TestRouter_Disconnect_Runs_Once(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)
	bob := connect(t, r, b)
	alice := connect(t, r, a)
	alice.do(t, r, EventJoinChat, chatID)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Disconnect(context.Background(), alice.session)
		}()
	}
	r.Handle(context.Background(), alice.session, Inbound{Event: EventDisconnect})
	wg.Wait()

	req.Equal(1, alice.conn.CloseCount())
	req.Len(bob.conn.Named(EventUserOffline), 1)
	req.Empty(r.Rooms().SubscribedRooms(alice.conn))
	req.Equal([]onlineWrite{{UserID: a, Online: true}, {UserID: a, Online: false}}, store.writesFor(a))
}

func TestRouter_Events_After_Disconnect_Are_Ignored(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)
	alice := connect(t, r, a)

	r.Disconnect(context.Background(), alice.session)
	before := len(alice.conn.Events())
	alice.do(t, r, EventJoinChat, chatID)
	alice.do(t, r, EventSendMessage, SendMessagePayload{ChatID: chatID, Content: "ghost"})
	alice.do(t, r, EventJoin, a)

	req.Len(alice.conn.Events(), before)
	req.Zero(store.messageCount())
	req.False(r.Registry().IsOnline(a))
	req.Empty(r.Rooms().Members(chatID))
}

func TestRouter_Requires_Join_First(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)
	conn := newFakeConn()
	s := NewSession(conn, a)

	r.Handle(context.Background(), s, Inbound{Event: EventSendMessage, Data: raw(t, SendMessagePayload{ChatID: chatID, Content: "early"})})
	r.Handle(context.Background(), s, Inbound{Event: EventJoin, Data: raw(t, b)})

	errs := conn.Named(EventError)
	req.Len(errs, 2)
	req.Equal("Join before sending events", errs[0].Data.(ErrorPayload).Message)
	req.Equal("You are not a participant in this chat", errs[1].Data.(ErrorPayload).Message)
	req.Zero(store.messageCount())
	req.False(r.Registry().IsOnline(b))
}

func TestRouter_Rejects_Invalid_And_Unknown_Events(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)
	alice := connect(t, r, a)

	alice.do(t, r, EventSendMessage, SendMessagePayload{ChatID: chatID, Content: "   "})
	req.Equal(ErrorPayload{Event: EventSendMessage, Message: "Invalid request"}, lastError(t, alice))

	alice.do(t, r, EventName("shout"), "hello")
	req.Equal("Unknown event", lastError(t, alice).Message)
	req.Zero(store.messageCount())
}

func TestRouter_Transient_Send_Failure_Notifies_Sender_Only(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b := store.addUser(), store.addUser()
	chatID := store.addConversation(false, a, b)
	alice := connect(t, r, a)
	bob := connect(t, r, b)
	alice.do(t, r, EventJoinChat, chatID)
	bob.do(t, r, EventJoinChat, chatID)
	store.failOn("CreateMessage", errors.New("pool exhausted"))

	alice.do(t, r, EventSendMessage, SendMessagePayload{ChatID: chatID, Content: "lost"})

	req.Equal(ErrorPayload{Event: EventSendMessage, Message: "Failed to send message"}, lastError(t, alice))
	req.Empty(bob.conn.Named(EventReceiveMessage))
	req.Empty(bob.conn.Named(EventError))
	req.Zero(store.messageCount())
}

func TestRouter_Sender_Order_Is_Preserved(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	r := NewRouter(store)
	a, b, c := store.addUser(), store.addUser(), store.addUser()
	chatID := store.addConversation(true, a, b, c)
	alice := connect(t, r, a)
	bob := connect(t, r, b)
	carol := connect(t, r, c)
	carol.do(t, r, EventJoinChat, chatID)

	const n = 20
	var wg sync.WaitGroup
	for _, sender := range []*client{alice, bob} {
		wg.Add(1)
		go func(cl *client) {
			defer wg.Done()
			for i := range n {
				cl.do(t, r, EventSendMessage, SendMessagePayload{ChatID: chatID, Content: fmt.Sprintf("%s-%d", cl.session.UserID(), i)})
			}
		}(sender)
	}
	wg.Wait()

	got := map[string][]string{}
	for _, evt := range carol.conn.Named(EventReceiveMessage) {
		msg := evt.Data.(*models.Message)
		got[msg.SenderID] = append(got[msg.SenderID], msg.Content)
	}
	for _, sender := range []string{a, b} {
		req.Len(got[sender], n)
		for i, content := range got[sender] {
			req.Equal(fmt.Sprintf("%s-%d", sender, i), content)
		}
	}
}
