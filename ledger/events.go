package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MOVEMENT EVENTS - Emitted after a durable write
// =============================================================================

type EventType string

const (
	EventMovementCreated EventType = "movement.created"
	EventMovementUpdated EventType = "movement.updated"
	EventMovementDeleted EventType = "movement.deleted"
)

// MovementEvent describes one committed change to an account's chain.
// For deletions Movement holds the record as it was before removal.
type MovementEvent struct {
	ID         uuid.UUID
	Type       EventType
	Movement   Movement
	OccurredAt time.Time
}

// EventPublisher receives committed changes. Publishing happens after
// the store write, so a failure here never rolls the movement back.
type EventPublisher interface {
	Publish(ctx context.Context, event MovementEvent) error
}

func newEvent(t EventType, m Movement, at time.Time) MovementEvent {
	return MovementEvent{ID: uuid.New(), Type: t, Movement: m, OccurredAt: at}
}
