package transport

import (
	"context"
	"sync"

	"classhub/pkg/interfaces"
	"classhub/pkg/logger"
	"classhub/pkg/types"
)

// EventHandler consumes transport events one at a time.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *types.Event) error
}

// Hub pumps connector events into the handler. A single run goroutine
// delivers events sequentially, so handler invocations never interleave
// with each other; local actions and remote events meet only at
// whole-handler boundaries.
type Hub struct {
	connector interfaces.Connector
	handler   EventHandler

	shutdown chan struct{}
	done     chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewHub creates a hub bridging connector to handler.
func NewHub(connector interfaces.Connector, handler EventHandler) *Hub {
	return &Hub{
		connector: connector,
		handler:   handler,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins event delivery.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true

	logger.Info("Starting transport hub")
	go h.run(ctx)
	return nil
}

// Stop halts delivery. Safe to call more than once.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	<-h.done
	return nil
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case ev, ok := <-h.connector.Events():
			if !ok {
				logger.Info("Transport event stream closed")
				return
			}
			if err := h.handler.HandleEvent(ctx, ev); err != nil {
				logger.Error("Event handler failed for %s: %v", ev.Type, err)
			}
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}
