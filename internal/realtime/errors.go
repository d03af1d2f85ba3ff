package realtime

import (
	"errors"
	"fmt"

	"chat-delivery/internal/models"
)

var (
	ErrNotJoined    = errors.New("join required")
	ErrUnknownEvent = errors.New("unknown event")
)

// transient marks a store failure so the router logs it and reports a
// generic failure to the requester.
func transient(op string, err error) error {
	if errors.Is(err, models.ErrTransient) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrTransient, err)
}
