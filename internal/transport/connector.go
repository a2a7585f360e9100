package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classhub/pkg/logger"
	"classhub/pkg/types"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Connector is the gorilla/websocket implementation of
// interfaces.Connector. All frames carry JSON event envelopes. A single
// writer goroutine owns the socket's write side; reads happen on one
// reader goroutine that feeds the Events stream.
type Connector struct {
	conn    *websocket.Conn
	writeCh chan []byte
	events  chan *types.Event

	joinMu  sync.Mutex // one join round-trip at a time
	reply   chan *types.Event
	replyMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial connects to the remote switch at url and starts the read/write
// loops.
func Dial(ctx context.Context, url string) (*Connector, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &types.TransportError{Op: "dial", Err: err}
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Connector{
		conn:    conn,
		writeCh: make(chan []byte, 100),
		events:  make(chan *types.Event, 100),
		ctx:     cctx,
		cancel:  cancel,
	}

	go c.writeLoop()
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Join sends a join request and waits for the answering snapshot. The
// remote side treats re-joins as reads, so retrying a timed-out join is
// safe. Only one join round-trip may be outstanding; a concurrent Join
// fails with ErrJoinInFlight rather than queueing behind the first.
func (c *Connector) Join(ctx context.Context, roomCode string, user *types.User) (*types.RoomSnapshot, error) {
	if !c.joinMu.TryLock() {
		return nil, &types.TransportError{Op: "join", Err: ErrJoinInFlight}
	}
	defer c.joinMu.Unlock()

	reply := make(chan *types.Event, 1)
	c.replyMu.Lock()
	c.reply = reply
	c.replyMu.Unlock()
	defer func() {
		c.replyMu.Lock()
		c.reply = nil
		c.replyMu.Unlock()
	}()

	ev, err := types.NewEvent(types.EventJoin, &types.JoinRequest{RoomCode: roomCode, User: user})
	if err != nil {
		return nil, &types.TransportError{Op: "join", Err: err}
	}
	if err := c.Publish(ev); err != nil {
		return nil, err
	}

	select {
	case answer := <-reply:
		if answer.Type == types.EventError {
			var ee types.ErrorEvent
			if err := json.Unmarshal(answer.Payload, &ee); err != nil {
				return nil, &types.TransportError{Op: "join", Err: err}
			}
			return nil, &types.ValidationError{Reason: ee.Message}
		}
		var snap types.RoomSnapshot
		if err := json.Unmarshal(answer.Payload, &snap); err != nil {
			return nil, &types.TransportError{Op: "join", Err: err}
		}
		return &snap, nil
	case <-ctx.Done():
		return nil, &types.TransportError{Op: "join", Err: ctx.Err()}
	case <-c.ctx.Done():
		return nil, &types.TransportError{Op: "join", Err: ErrConnectionClosed}
	}
}

// Publish queues an event for the writer goroutine.
func (c *Connector) Publish(ev *types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return &types.TransportError{Op: "publish", Err: err}
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeWait):
		return &types.TransportError{Op: "publish", Err: ErrWriteTimeout}
	case <-c.ctx.Done():
		return &types.TransportError{Op: "publish", Err: ErrConnectionClosed}
	}
}

// Events returns the inbound event stream. Closed when the connection
// drops.
func (c *Connector) Events() <-chan *types.Event {
	return c.events
}

// Close shuts the connection down. Safe to call more than once.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
	return nil
}

func (c *Connector) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error("Transport write failed: %v", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connector) readLoop() {
	defer func() {
		c.cancel()
		close(c.events)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Transport read failed: %v", err)
			}
			return
		}

		var ev types.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Error("Discarding malformed frame: %v", err)
			continue
		}

		// A snapshot or error arriving while a join waits answers the join
		// instead of entering the broadcast stream.
		if ev.Type == types.EventRoomSnapshot || ev.Type == types.EventError {
			c.replyMu.Lock()
			reply := c.reply
			c.reply = nil
			c.replyMu.Unlock()
			if reply != nil {
				reply <- &ev
				continue
			}
		}

		select {
		case c.events <- &ev:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connector) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
