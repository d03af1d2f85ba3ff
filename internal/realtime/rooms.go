package realtime

import (
	"sort"
	"sync"
)

// Rooms holds the subscriber set of every conversation. A connection only
// lands here after the authorizer allowed it, so fan-out scope and
// authorization share one structure.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Conn
	byConn map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds conn to room. It reports false when conn was already there.
func (r *Rooms) Subscribe(room string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[room] = members
	}
	if _, exists := members[conn.ID()]; exists {
		return false
	}
	members[conn.ID()] = conn

	joined, ok := r.byConn[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[conn.ID()] = joined
	}
	joined[room] = struct{}{}
	return true
}

func (r *Rooms) Unsubscribe(room string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(room, conn.ID())
}

func (r *Rooms) removeLocked(room, connID string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if joined, ok := r.byConn[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
	return true
}

func (r *Rooms) IsSubscribed(room string, conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][conn.ID()]
	return ok
}

// Members returns a snapshot of the room's connections.
func (r *Rooms) Members(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Conn, 0, len(r.rooms[room]))
	for _, c := range r.rooms[room] {
		members = append(members, c)
	}
	return members
}

// Release drops every subscription held by conn and returns the rooms it left.
func (r *Rooms) Release(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[conn.ID()]
	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	for _, room := range left {
		r.removeLocked(room, conn.ID())
	}
	sort.Strings(left)
	return left
}

// SubscribedRooms lists the rooms conn currently receives.
func (r *Rooms) SubscribedRooms(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.byConn[conn.ID()]))
	for room := range r.byConn[conn.ID()] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}
