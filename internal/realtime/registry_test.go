package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_New_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	conn := newFakeConn()

	superseded := registry.Register(userID, conn)

	req.Nil(superseded)
	req.True(registry.IsOnline(userID))
	req.Equal(conn, registry.Lookup(userID))
	req.Equal([]string{userID}, registry.AllOnline())
}

func TestRegistry_Register_Supersedes_Previous_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	first := newFakeConn()
	second := newFakeConn()

	// Given a user already connected
	req.Nil(registry.Register(userID, first))

	// When the same user connects again
	superseded := registry.Register(userID, second)

	// Then the newer connection is the only session and the older one is handed back
	req.Equal(first, superseded)
	req.Equal(second, registry.Lookup(userID))
	req.Equal(1, registry.Len())
}

func TestRegistry_Register_Same_Connection_Twice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	conn := newFakeConn()

	registry.Register(userID, conn)

	req.Nil(registry.Register(userID, conn))
	req.Equal(1, registry.Len())
}

func TestRegistry_Unregister_Stale_Connection_Keeps_Newer_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	first := newFakeConn()
	second := newFakeConn()
	registry.Register(userID, first)
	registry.Register(userID, second)

	req.False(registry.Unregister(userID, first))
	req.Equal(second, registry.Lookup(userID))

	req.True(registry.Unregister(userID, second))
	req.Nil(registry.Lookup(userID))
	req.False(registry.IsOnline(userID))
	req.False(registry.Unregister(userID, second))
}

func TestRegistry_AllOnline_Is_Sorted(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("c", newFakeConn())
	registry.Register("a", newFakeConn())
	registry.Register("b", newFakeConn())

	req.Equal([]string{"a", "b", "c"}, registry.AllOnline())
}

func TestRegistry_Concurrent_Register_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	users := make([]string, 20)
	for i := range users {
		users[i] = uuid.NewString()
	}

	var wg sync.WaitGroup
	for _, userID := range users {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				conn := newFakeConn()
				registry.Register(userID, conn)
				registry.Lookup(userID)
				registry.Unregister(userID, conn)
			}(userID)
		}
	}
	wg.Wait()

	// Every connection unregistered itself or was superseded; at most one
	// session per user can remain.
	req.LessOrEqual(registry.Len(), len(users))
	for _, userID := range users {
		if c := registry.Lookup(userID); c != nil {
			req.True(registry.Unregister(userID, c))
		}
	}
	req.Zero(registry.Len())
}
