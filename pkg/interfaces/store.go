package interfaces

import (
	"context"

	"classhub/pkg/types"
)

// Store handles all persistence for rooms and their nested state. The
// backing store acknowledges writes at-least-once, so every operation is an
// idempotent upsert keyed by canonical ID; duplicate acknowledgements are
// harmless.
type Store interface {
	// SaveRoom upserts a room and its participant roster.
	SaveRoom(ctx context.Context, room *types.Room) error

	// GetRoom retrieves a room by ID, ErrRoomNotFound if absent.
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)

	// ListActiveRooms returns all rooms still marked active, for cache
	// initialization at startup.
	ListActiveRooms(ctx context.Context) ([]*types.Room, error)

	// SaveMessage upserts one message of a room.
	SaveMessage(ctx context.Context, roomID string, message *types.Message) error

	// SavePoll upserts one poll of a room.
	SavePoll(ctx context.Context, poll *types.Poll) error

	// HealthCheck verifies connectivity and basic read access.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources.
	Close() error
}
