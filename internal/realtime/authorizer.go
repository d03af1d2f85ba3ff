package realtime

import (
	"context"
	"errors"

	"chat-delivery/internal/models"

	"github.com/google/uuid"
)

// Authorizer decides room membership. It never caches: membership is read
// from the store on every call.
type Authorizer struct {
	store Store
}

func NewAuthorizer(store Store) *Authorizer {
	return &Authorizer{store: store}
}

// AuthorizeJoin returns nil when userID participates in conversationID.
// Unknown and malformed conversation ids are denied exactly like
// non-membership.
func (a *Authorizer) AuthorizeJoin(ctx context.Context, userID, conversationID string) error {
	if _, err := uuid.Parse(conversationID); err != nil {
		return models.ErrAccessDenied
	}

	ok, err := a.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrAccessDenied
		}
		return transient("membership lookup", err)
	}
	if !ok {
		return models.ErrAccessDenied
	}
	return nil
}
