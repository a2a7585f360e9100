package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"

	"classhub/pkg/interfaces"
	"classhub/pkg/logger"
	"classhub/pkg/types"
)

// Join codes avoid easily-confused characters; still matches the A-Z0-9 shape.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Registry is the durable collection of rooms and the exclusive owner of all
// room-nested state. It is constructed once per process and injected into
// every component that needs room data; nothing else mutates a Room.
//
// The in-memory map is authoritative; the store is a persistence collaborator
// with at-least-once semantics, so every write it receives is an idempotent
// upsert.
type Registry struct {
	store   interfaces.Store // nil when running without persistence
	rooms   map[string]*types.Room
	codes   map[string]string // join code -> roomID, active rooms only
	remote  map[string]bool   // rooms adopted from remote snapshots, eligible for GC
	genCode func() string
	now     func() time.Time
	mu      sync.RWMutex
}

// NewRegistry creates a registry backed by the given store. A nil store is
// valid and keeps all state in memory only.
func NewRegistry(store interfaces.Store) *Registry {
	gen, err := nanoid.CustomASCII(codeAlphabet, types.RoomCodeLength)
	if err != nil {
		panic(fmt.Sprintf("registry: code generator: %v", err))
	}
	return &Registry{
		store:   store,
		rooms:   make(map[string]*types.Room),
		codes:   make(map[string]string),
		remote:  make(map[string]bool),
		genCode: gen,
		now:     time.Now,
	}
}

// LoadActiveRooms primes the in-memory map from the store at startup.
func (r *Registry) LoadActiveRooms(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	rooms, err := r.store.ListActiveRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active rooms: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range rooms {
		r.rooms[room.ID] = room
		r.codes[room.Code] = room.ID
	}

	logger.Info("Loaded %d active rooms", len(rooms))
	return nil
}

// CreateRoom creates an active room owned by a teacher. A teacher holds at
// most one active room at a time.
func (r *Registry) CreateRoom(ctx context.Context, owner *types.User, name string) (*types.Room, error) {
	if owner == nil || owner.Role != types.RoleTeacher {
		return nil, &types.AuthorizationError{Reason: "only teachers can create rooms"}
	}
	if err := types.ValidateRoomName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		if room.Active && room.OwnerID == owner.ID {
			return nil, &types.ConflictError{Reason: "you already have an active room"}
		}
	}

	// Regenerate until the code is unique among currently known rooms.
	code := r.genCode()
	for _, taken := r.codes[code]; taken; _, taken = r.codes[code] {
		code = r.genCode()
	}

	now := r.now()
	room := &types.Room{
		ID:           uuid.New().String(),
		Code:         code,
		Name:         name,
		OwnerID:      owner.ID,
		Active:       true,
		Participants: make(map[string]*types.Participant),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	room.Participants[owner.ID] = &types.Participant{User: *owner, Online: true}

	if err := r.persistRoom(ctx, room); err != nil {
		return nil, err
	}
	r.rooms[room.ID] = room
	r.codes[room.Code] = room.ID

	logger.Info("Created room: id=%s code=%s name=%q", room.ID, room.Code, room.Name)
	return room, nil
}

// FindByCode returns the active room with the given join code, or nil.
func (r *Registry) FindByCode(code string) *types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.codes[code]
	if !ok {
		return nil
	}
	return r.rooms[roomID]
}

// FindByID returns the room with the given ID, or nil.
func (r *Registry) FindByID(roomID string) *types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// ActiveRoomByOwner returns the owner's active room, or nil.
func (r *Registry) ActiveRoomByOwner(ownerID string) *types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range r.rooms {
		if room.Active && room.OwnerID == ownerID {
			return room
		}
	}
	return nil
}

// EndRoom marks a room inactive. Only the owning teacher may end it; the
// room is kept (not deleted) for history.
func (r *Registry) EndRoom(ctx context.Context, roomID string, requester *types.User) (*types.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, interfaces.ErrRoomNotFound
	}
	if requester == nil || requester.ID != room.OwnerID {
		return nil, &types.AuthorizationError{Reason: "only the owning teacher can end the room"}
	}
	if !room.Active {
		return room, nil
	}

	room.Active = false
	room.UpdatedAt = r.now()
	delete(r.codes, room.Code)

	if err := r.persistRoom(ctx, room); err != nil {
		return nil, err
	}

	logger.Info("Ended room: id=%s code=%s", room.ID, room.Code)
	return room, nil
}

// AddParticipant adds or re-activates a participant. Idempotent: joining a
// room the user is already in refreshes presence only. Banned participants
// cannot rejoin.
func (r *Registry) AddParticipant(ctx context.Context, roomID string, user *types.User) (*types.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, interfaces.ErrRoomNotFound
	}
	if !room.Active {
		return nil, &types.ConflictError{Reason: "room has ended"}
	}

	if existing := room.Participants[user.ID]; existing != nil {
		if existing.Banned {
			return nil, &types.BannedError{Reason: existing.BanReason}
		}
		existing.Online = true
	} else {
		room.Participants[user.ID] = &types.Participant{User: *user, Online: true}
	}
	room.UpdatedAt = r.now()

	if err := r.persistRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// RemoveParticipant drops a participant. Idempotent; removing an absent user
// is a no-op. Rooms mirrored from a remote snapshot are garbage-collected
// once their last participant leaves; a teacher-owned room survives its
// teacher's absence so the teacher may return.
func (r *Registry) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	if room.Participants[userID] == nil {
		return nil
	}

	delete(room.Participants, userID)
	room.UpdatedAt = r.now()

	if r.remote[roomID] && len(room.Participants) == 0 {
		delete(r.rooms, roomID)
		delete(r.codes, room.Code)
		delete(r.remote, roomID)
		logger.Debug("Garbage-collected empty mirrored room %s", roomID)
		return nil
	}

	return r.persistRoom(ctx, room)
}

// SetParticipantOnline flips a participant's presence without removing them.
func (r *Registry) SetParticipantOnline(roomID, userID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if p := room.Participants[userID]; p != nil {
		p.Online = online
	}
}

// AppendMessage appends a locally committed message to the room sequence.
// A reply reference must name a message already in the room.
func (r *Registry) AppendMessage(ctx context.Context, roomID string, msg *types.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return interfaces.ErrRoomNotFound
	}
	if msg.ReplyTo != "" && !room.HasMessage(msg.ReplyTo) {
		return &types.ValidationError{Reason: "reply references an unknown message"}
	}

	room.Messages = append(room.Messages, msg)
	room.UpdatedAt = r.now()

	if r.store != nil {
		if err := r.store.SaveMessage(ctx, roomID, msg); err != nil {
			return fmt.Errorf("failed to persist message: %w", err)
		}
	}
	return nil
}

// ApplyRemoteMessage reconciles a message delivered by the transport.
// Idempotent by canonical message ID: a message that already round-tripped
// (an optimistic local copy, or a duplicate delivery) is discarded. Reports
// whether the message was applied.
func (r *Registry) ApplyRemoteMessage(ctx context.Context, roomID string, msg *types.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false, interfaces.ErrRoomNotFound
	}
	if room.HasMessage(msg.ID) {
		return false, nil
	}

	room.Messages = append(room.Messages, msg)
	room.UpdatedAt = r.now()

	if r.store != nil {
		if err := r.store.SaveMessage(ctx, roomID, msg); err != nil {
			return false, fmt.Errorf("failed to persist message: %w", err)
		}
	}
	return true, nil
}

// ToggleReaction adds or removes userID's reaction on a message. Reacting
// again with the same symbol removes it (benign no-op semantics). A user
// holds at most MaxReactionsPerUser simultaneous reactions per room.
// Reports whether the reaction is present after the call.
func (r *Registry) ToggleReaction(ctx context.Context, roomID, messageID, symbol, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false, interfaces.ErrRoomNotFound
	}
	msg := room.FindMessage(messageID)
	if msg == nil {
		return false, &types.ValidationError{Reason: "message not found"}
	}

	// Toggle off when already present.
	for i, id := range msg.Reactions[symbol] {
		if id == userID {
			msg.Reactions[symbol] = append(msg.Reactions[symbol][:i:i], msg.Reactions[symbol][i+1:]...)
			if len(msg.Reactions[symbol]) == 0 {
				delete(msg.Reactions, symbol)
			}
			room.UpdatedAt = r.now()
			return false, r.persistMessage(ctx, roomID, msg)
		}
	}

	held := 0
	for _, m := range room.Messages {
		held += m.ReactionCount(userID)
	}
	if held >= types.MaxReactionsPerUser {
		return false, &types.ConflictError{Reason: "reaction limit reached"}
	}

	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]string)
	}
	msg.Reactions[symbol] = append(msg.Reactions[symbol], userID)
	room.UpdatedAt = r.now()
	return true, r.persistMessage(ctx, roomID, msg)
}

// CommitPoll upserts a poll computed by the poll engine. Committing an
// active poll deactivates any other active poll in the room, keeping at most
// one active.
func (r *Registry) CommitPoll(ctx context.Context, roomID string, poll *types.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return interfaces.ErrRoomNotFound
	}

	if poll.Active {
		for _, p := range room.Polls {
			if p.Active && p.ID != poll.ID {
				p.Active = false
				closedAt := r.now()
				p.ClosedAt = &closedAt
			}
		}
	}

	replaced := false
	for i, p := range room.Polls {
		if p.ID == poll.ID {
			room.Polls[i] = poll
			replaced = true
			break
		}
	}
	if !replaced {
		room.Polls = append(room.Polls, poll)
	}
	room.UpdatedAt = r.now()

	if r.store != nil {
		if err := r.store.SavePoll(ctx, poll); err != nil {
			return fmt.Errorf("failed to persist poll: %w", err)
		}
	}
	return nil
}

// ApplyModeration commits a moderation delta to a participant: new violation
// total, silence window or ban, and an audit trail entry. A banned
// participant stays in the map, flagged, so the rejoin block holds.
func (r *Registry) ApplyModeration(ctx context.Context, roomID, targetID string, entry types.ModerationEntry, violations int, silencedUntil *time.Time, banned bool, banReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return interfaces.ErrRoomNotFound
	}
	target := room.Participants[targetID]
	if target == nil {
		return &types.ValidationError{Reason: "target is not in the room"}
	}

	target.Violations = violations
	target.AuditTrail = append(target.AuditTrail, entry)
	if banned {
		target.Banned = true
		target.BanReason = banReason
		target.SilencedUntil = nil
		target.Online = false
	} else {
		target.SilencedUntil = silencedUntil
	}
	room.UpdatedAt = r.now()

	return r.persistRoom(ctx, room)
}

// ReplaceParticipants swaps a room's roster for the authoritative list
// carried by participant events. Messages and polls are untouched.
func (r *Registry) ReplaceParticipants(ctx context.Context, roomID string, participants []*types.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return interfaces.ErrRoomNotFound
	}

	room.Participants = make(map[string]*types.Participant, len(participants))
	for _, p := range participants {
		room.Participants[p.ID] = p
	}
	room.UpdatedAt = r.now()

	return r.persistRoom(ctx, room)
}

// ReplaceState applies an authoritative room snapshot: participants,
// messages and the active poll are replaced wholesale, never merged, so
// reconnects cannot duplicate entities. Unknown rooms are adopted and marked
// as mirrored.
func (r *Registry) ReplaceState(ctx context.Context, snap *types.RoomSnapshot) (*types.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[snap.RoomID]
	if !ok {
		room = &types.Room{
			ID:        snap.RoomID,
			Code:      snap.Code,
			Name:      snap.Name,
			OwnerID:   snap.OwnerID,
			Active:    true,
			CreatedAt: r.now(),
		}
		r.rooms[room.ID] = room
		r.codes[room.Code] = room.ID
		r.remote[room.ID] = true
	}

	room.Participants = make(map[string]*types.Participant, len(snap.Participants))
	for _, p := range snap.Participants {
		room.Participants[p.ID] = p
	}
	room.Messages = append([]*types.Message(nil), snap.Messages...)

	if snap.ActivePoll != nil {
		replaced := false
		for i, p := range room.Polls {
			if p.ID == snap.ActivePoll.ID {
				room.Polls[i] = snap.ActivePoll
				replaced = true
			} else if p.Active {
				p.Active = false
			}
		}
		if !replaced {
			room.Polls = append(room.Polls, snap.ActivePoll)
		}
	} else {
		for _, p := range room.Polls {
			p.Active = false
		}
	}
	room.UpdatedAt = r.now()

	if err := r.persistRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// ListActiveRooms returns active rooms ordered by creation time, newest first.
func (r *Registry) ListActiveRooms() []*types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*types.Room, 0, len(r.codes))
	for _, room := range r.rooms {
		if room.Active {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms
}

// ListAll returns every known room, for durable local snapshots.
func (r *Registry) ListAll() []*types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*types.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Restore re-seeds the registry from a durable local snapshot.
func (r *Registry) Restore(rooms []*types.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range rooms {
		r.rooms[room.ID] = room
		if room.Active {
			r.codes[room.Code] = room.ID
		}
	}
}

// Count reports active rooms and online users for the liveness probe.
func (r *Registry) Count() (rooms, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range r.rooms {
		if !room.Active {
			continue
		}
		rooms++
		for _, p := range room.Participants {
			if p.Online && !p.Banned {
				users++
			}
		}
	}
	return rooms, users
}

// persistRoom mirrors a room to the store. Callers hold the write lock.
func (r *Registry) persistRoom(ctx context.Context, room *types.Room) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to persist room: %w", err)
	}
	return nil
}

func (r *Registry) persistMessage(ctx context.Context, roomID string, msg *types.Message) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveMessage(ctx, roomID, msg); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}
	return nil
}
