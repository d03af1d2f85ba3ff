package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRooms_Subscribe_And_Members(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()
	room := uuid.NewString()
	a := newFakeConn()
	b := newFakeConn()

	req.True(rooms.Subscribe(room, a))
	req.True(rooms.Subscribe(room, b))
	req.False(rooms.Subscribe(room, a))

	req.Len(rooms.Members(room), 2)
	req.ElementsMatch([]Conn{a, b}, rooms.Members(room))
	req.True(rooms.IsSubscribed(room, a))
	req.Empty(rooms.Members(uuid.NewString()))
}

func TestRooms_Unsubscribe(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()
	room := uuid.NewString()
	a := newFakeConn()
	rooms.Subscribe(room, a)

	req.True(rooms.Unsubscribe(room, a))
	req.False(rooms.Unsubscribe(room, a))
	req.False(rooms.IsSubscribed(room, a))
	req.Empty(rooms.Members(room))
	req.Empty(rooms.SubscribedRooms(a))
}

func TestRooms_Release_Drops_Every_Subscription(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()
	roomA := "a-" + uuid.NewString()
	roomB := "b-" + uuid.NewString()
	conn := newFakeConn()
	other := newFakeConn()
	rooms.Subscribe(roomA, conn)
	rooms.Subscribe(roomB, conn)
	rooms.Subscribe(roomB, other)

	left := rooms.Release(conn)

	req.Equal([]string{roomA, roomB}, left)
	req.Empty(rooms.Members(roomA))
	req.Equal([]Conn{other}, rooms.Members(roomB))
	req.Empty(rooms.Release(conn))
}
