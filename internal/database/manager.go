package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dbconfig "classhub/pkg/database"
	"classhub/pkg/interfaces"
	"classhub/pkg/logger"
	"classhub/pkg/types"
)

// Manager is the SQLite implementation of interfaces.Store. All writes
// funnel through one goroutine, which is what SQLite wants; reads run
// concurrently on the pooled connections. Every write is an idempotent
// upsert keyed by canonical IDs, so at-least-once delivery from the
// orchestrator is harmless.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations, validates the schema
// and starts the writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).ValidateAll(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				logger.Error("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					logger.Error("Database write failed after retry: %v", err)
				}
			}
			op.result <- err
		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// SaveRoom upserts the room row, participants included.
func (m *Manager) SaveRoom(ctx context.Context, room *types.Room) error {
	return m.executeWrite(func(db *sql.DB) error {
		participants, err := json.Marshal(room.Participants)
		if err != nil {
			return fmt.Errorf("failed to marshal participants: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			INSERT OR REPLACE INTO rooms
				(id, code, name, owner_id, active, participants, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, room.ID, room.Code, room.Name, room.OwnerID, room.Active,
			string(participants), room.CreatedAt, room.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save room: %w", err)
		}
		return nil
	})
}

// GetRoom loads a room with its messages and polls.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	room, err := m.scanRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Messages, err = m.loadMessages(ctx, roomID); err != nil {
		return nil, err
	}
	if room.Polls, err = m.loadPolls(ctx, roomID); err != nil {
		return nil, err
	}
	return room, nil
}

// ListActiveRooms loads every active room in full.
func (m *Manager) ListActiveRooms(ctx context.Context) ([]*types.Room, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id FROM rooms WHERE active = 1 ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rooms := make([]*types.Room, 0, len(ids))
	for _, id := range ids {
		room, err := m.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// SaveMessage upserts one message row.
func (m *Manager) SaveMessage(ctx context.Context, roomID string, msg *types.Message) error {
	return m.executeWrite(func(db *sql.DB) error {
		reactions, err := json.Marshal(msg.Reactions)
		if err != nil {
			return fmt.Errorf("failed to marshal reactions: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			INSERT OR REPLACE INTO messages
				(id, room_id, author_id, author_name, author_role, content,
				 reply_to, reactions, system, edited, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, roomID, msg.AuthorID, msg.AuthorName, msg.AuthorRole,
			msg.Content, msg.ReplyTo, string(reactions), msg.System, msg.Edited, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		return nil
	})
}

// SavePoll upserts one poll row.
func (m *Manager) SavePoll(ctx context.Context, poll *types.Poll) error {
	return m.executeWrite(func(db *sql.DB) error {
		options, err := json.Marshal(poll.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		votes, err := json.Marshal(poll.Votes)
		if err != nil {
			return fmt.Errorf("failed to marshal votes: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			INSERT OR REPLACE INTO polls
				(id, room_id, question, options, votes, total_votes, active,
				 created_by, created_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, poll.ID, poll.RoomID, poll.Question, string(options), string(votes),
			poll.TotalVotes, poll.Active, poll.CreatedBy, poll.CreatedAt, poll.ClosedAt)
		if err != nil {
			return fmt.Errorf("failed to save poll: %w", err)
		}
		return nil
	})
}

// HealthCheck verifies connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close drains the writer and closes the database. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

func (m *Manager) scanRoom(ctx context.Context, roomID string) (*types.Room, error) {
	var (
		room         types.Room
		participants string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, code, name, owner_id, active, participants, created_at, updated_at
		FROM rooms WHERE id = ?
	`, roomID).Scan(&room.ID, &room.Code, &room.Name, &room.OwnerID, &room.Active,
		&participants, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	if err := json.Unmarshal([]byte(participants), &room.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if room.Participants == nil {
		room.Participants = make(map[string]*types.Participant)
	}
	return &room, nil
}

func (m *Manager) loadMessages(ctx context.Context, roomID string) ([]*types.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, author_id, author_name, author_role, content,
		       reply_to, reactions, system, edited, created_at
		FROM messages WHERE room_id = ? ORDER BY created_at, id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var (
			msg       types.Message
			reactions string
		)
		if err := rows.Scan(&msg.ID, &msg.AuthorID, &msg.AuthorName, &msg.AuthorRole,
			&msg.Content, &msg.ReplyTo, &reactions, &msg.System, &msg.Edited, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reactions), &msg.Reactions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (m *Manager) loadPolls(ctx context.Context, roomID string) ([]*types.Poll, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, room_id, question, options, votes, total_votes, active,
		       created_by, created_at, closed_at
		FROM polls WHERE room_id = ? ORDER BY created_at, id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load polls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var polls []*types.Poll
	for rows.Next() {
		var (
			poll           types.Poll
			options, votes string
		)
		if err := rows.Scan(&poll.ID, &poll.RoomID, &poll.Question, &options, &votes,
			&poll.TotalVotes, &poll.Active, &poll.CreatedBy, &poll.CreatedAt, &poll.ClosedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &poll.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
		if err := json.Unmarshal([]byte(votes), &poll.Votes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal votes: %w", err)
		}
		polls = append(polls, &poll)
	}
	return polls, rows.Err()
}
