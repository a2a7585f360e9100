package interfaces

import (
	"context"

	"classhub/pkg/types"
)

// Connector abstracts the realtime transport. Implementations deliver room
// events across the network; the orchestrator subscribes to Events and
// republishes local mutations through Publish.
type Connector interface {
	// Join attaches an identity to a room by code. Idempotent: re-joining an
	// already-joined room returns the current snapshot and causes no
	// duplicate side effect on the remote side.
	Join(ctx context.Context, roomCode string, user *types.User) (*types.RoomSnapshot, error)

	// Publish sends an event to the remote side (thread-safe).
	Publish(event *types.Event) error

	// Events is the stream of inbound transport events. Closed when the
	// connector shuts down.
	Events() <-chan *types.Event

	// Close tears down the transport and closes the event stream.
	Close() error
}
