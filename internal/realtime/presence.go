package realtime

import (
	"context"
	"sort"
	"time"

	"chat-delivery/internal/models"

	"github.com/samber/lo"
)

// Presence derives a user's interested peers from conversation membership
// and keeps the persisted online flag in line with the registry.
type Presence struct {
	store    Store
	registry *Registry
	now      func() time.Time
}

func NewPresence(store Store, registry *Registry, now func() time.Time) *Presence {
	if now == nil {
		now = time.Now
	}
	return &Presence{
		store:    store,
		registry: registry,
		now:      now,
	}
}

// Peers returns every other participant across the user's conversations.
func (p *Presence) Peers(ctx context.Context, userID string) ([]string, error) {
	convs, err := p.store.FindConversationsByParticipant(ctx, userID)
	if err != nil {
		return nil, transient("load conversations", err)
	}

	peers := lo.Uniq(lo.FlatMap(convs, func(c *models.Conversation, _ int) []string {
		return c.Others(userID)
	}))
	sort.Strings(peers)
	return peers, nil
}

// syncAttempts bounds how often Sync rewrites a flag that changed under it.
const syncAttempts = 3

// Sync writes the registry's current view of userID to the store and
// returns it. When the registry changes while the write is in flight the
// write is repeated, so the last write matches the registry once the user
// stops churning. No lock is held across the store call.
func (p *Presence) Sync(ctx context.Context, userID string) (bool, error) {
	online := p.registry.IsOnline(userID)
	for i := 0; i < syncAttempts; i++ {
		if err := p.store.SetUserOnline(ctx, userID, online, p.now()); err != nil {
			return online, transient("persist presence", err)
		}
		current := p.registry.IsOnline(userID)
		if current == online {
			return online, nil
		}
		online = current
	}
	return online, nil
}

func (p *Presence) BroadcastOnline(ctx context.Context, userID string) ([]Instruction, error) {
	return p.broadcast(ctx, userID, EventUserOnline)
}

func (p *Presence) BroadcastOffline(ctx context.Context, userID string) ([]Instruction, error) {
	return p.broadcast(ctx, userID, EventUserOffline)
}

// broadcast addresses peers that are online right now. Presence is not
// queued for anyone offline.
func (p *Presence) broadcast(ctx context.Context, userID string, event EventName) ([]Instruction, error) {
	peers, err := p.Peers(ctx, userID)
	if err != nil {
		return nil, err
	}

	evt := Outbound{Event: event, Data: userID}
	online := lo.Filter(peers, func(id string, _ int) bool {
		return p.registry.IsOnline(id)
	})
	return lo.Map(online, func(id string, _ int) Instruction {
		return ToUser(id, evt)
	}), nil
}
