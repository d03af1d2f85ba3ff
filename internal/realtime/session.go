package realtime

import "sync"

// Session is the router's per-connection state. It binds to a user on join
// and is released exactly once on disconnect.
type Session struct {
	conn       Conn
	authUserID string

	mu       sync.Mutex
	userID   string
	released bool
	once     sync.Once
}

// NewSession wraps conn. When authUserID is set the transport has already
// proven the caller's identity and join must name that same user.
func NewSession(conn Conn, authUserID string) *Session {
	return &Session{conn: conn, authUserID: authUserID}
}

func (s *Session) Conn() Conn {
	return s.conn
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// whileLive runs fn unless the session was released. Shared-state mutations
// go through here so none of them can land after disconnect cleanup.
func (s *Session) whileLive(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	fn()
	return true
}
