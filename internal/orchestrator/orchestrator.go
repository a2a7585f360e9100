package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"classhub/internal/identity"
	"classhub/internal/moderation"
	"classhub/internal/policy"
	"classhub/internal/poll"
	"classhub/internal/registry"
	"classhub/pkg/interfaces"
	"classhub/pkg/logger"
	"classhub/pkg/types"
)

// MembershipState tracks the local user's relationship to their current room.
type MembershipState int

const (
	Disconnected MembershipState = iota
	Joining
	Joined
	Reconciling
	Left
)

func (s MembershipState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Reconciling:
		return "reconciling"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// StateSink receives the durable local snapshot after each committed
// mutation. Persistence failures are logged, never surfaced: local state
// fails open.
type StateSink interface {
	Persist(user *types.User, currentRoomID string, rooms []*types.Room) error
}

// Config wires an Orchestrator's collaborators. Identity and Rooms are
// required; the engines default when nil; Connector and Sink are optional.
type Config struct {
	Identity   *identity.Manager
	Rooms      *registry.Registry
	Filter     *policy.Filter
	Moderation *moderation.Engine
	Polls      *poll.Engine
	Connector  interfaces.Connector
	Sink       StateSink
}

// Orchestrator is the composition root of the session state machine. Every
// handler runs under one mutex: it reads current state, computes the new
// state through the engines, and commits to the registry in one step, so
// handler invocations never observe each other's partial updates. Local
// actions and transport-delivered events go through the same lock.
type Orchestrator struct {
	identity   *identity.Manager
	rooms      *registry.Registry
	filter     *policy.Filter
	moderation *moderation.Engine
	polls      *poll.Engine
	limiter    *RateLimiter
	connector  interfaces.Connector
	sink       StateSink
	now        func() time.Time

	mu            sync.Mutex
	currentRoomID string
	state         MembershipState
}

// New creates an orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		identity:   cfg.Identity,
		rooms:      cfg.Rooms,
		filter:     cfg.Filter,
		moderation: cfg.Moderation,
		polls:      cfg.Polls,
		limiter:    NewRateLimiter(),
		connector:  cfg.Connector,
		sink:       cfg.Sink,
		now:        time.Now,
		state:      Disconnected,
	}
	if o.filter == nil {
		o.filter = policy.Default()
	}
	if o.moderation == nil {
		o.moderation = moderation.NewEngine(moderation.DefaultPolicy())
	}
	if o.polls == nil {
		o.polls = poll.NewEngine()
	}
	return o
}

// Login creates the local identity.
func (o *Orchestrator) Login(role, displayName string) (*types.User, error) {
	return o.identity.Login(role, displayName)
}

// Logout marks the user offline in their current room, then clears the
// identity. Idempotent.
func (o *Orchestrator) Logout(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	if user != nil && o.currentRoomID != "" {
		o.rooms.SetParticipantOnline(o.currentRoomID, user.ID, false)
	}
	o.identity.Logout()
	o.currentRoomID = ""
	o.state = Disconnected
	o.persistLocal()
}

// CurrentUser returns the logged-in user, or nil.
func (o *Orchestrator) CurrentUser() *types.User {
	return o.identity.Current()
}

// CurrentRoom returns the room the user currently occupies, or nil.
func (o *Orchestrator) CurrentRoom() *types.Room {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentRoom()
}

// State returns the membership state for the current room.
func (o *Orchestrator) State() MembershipState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CreateRoom creates a room owned by the current teacher and joins it.
func (o *Orchestrator) CreateRoom(ctx context.Context, name string) (*types.Room, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	if user == nil {
		return nil, &types.AuthorizationError{Reason: "login required"}
	}

	room, err := o.rooms.CreateRoom(ctx, user, name)
	if err != nil {
		return nil, err
	}

	o.currentRoomID = room.ID
	o.state = Joined
	o.persistLocal()
	return room, nil
}

// JoinRoom attaches the current user to a room by join code. With a
// connector, the remote snapshot is authoritative; without one, the local
// registry is.
func (o *Orchestrator) JoinRoom(ctx context.Context, code string) (*types.Room, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	if user == nil {
		return nil, &types.AuthorizationError{Reason: "login required"}
	}

	o.state = Joining

	var room *types.Room
	if o.connector != nil {
		snap, err := o.connector.Join(ctx, code, user)
		if err != nil {
			// Local state untouched; the caller decides retry policy and a
			// retried join is idempotent on the remote side.
			return nil, err
		}
		room, err = o.rooms.ReplaceState(ctx, snap)
		if err != nil {
			return nil, err
		}
	} else {
		room = o.rooms.FindByCode(code)
		if room == nil {
			return nil, &types.ValidationError{Reason: "no active room with that code"}
		}
	}

	if _, err := o.rooms.AddParticipant(ctx, room.ID, user); err != nil {
		return nil, err
	}

	o.currentRoomID = room.ID
	o.state = Joined
	o.persistLocal()

	logger.Info("Joined room %s as %s", room.Code, user.DisplayName)
	return room, nil
}

// LeaveRoom detaches the current user from their room.
func (o *Orchestrator) LeaveRoom(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	if user == nil || o.currentRoomID == "" {
		return &types.NotInRoomError{}
	}

	if err := o.rooms.RemoveParticipant(ctx, o.currentRoomID, user.ID); err != nil {
		return err
	}
	o.currentRoomID = ""
	o.state = Left
	o.persistLocal()
	return nil
}

// EndRoom ends the current user's active room.
func (o *Orchestrator) EndRoom(ctx context.Context) (*types.Room, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	if user == nil {
		return nil, &types.AuthorizationError{Reason: "login required"}
	}

	room := o.currentRoom()
	if room == nil {
		room = o.rooms.ActiveRoomByOwner(user.ID)
	}
	if room == nil {
		return nil, &types.NotInRoomError{}
	}

	ended, err := o.rooms.EndRoom(ctx, room.ID, user)
	if err != nil {
		return nil, err
	}
	if o.currentRoomID == ended.ID {
		o.currentRoomID = ""
		o.state = Left
	}
	o.persistLocal()
	return ended, nil
}

// SendMessage runs the full send flow: membership and policy-state
// preconditions, rate limiting, one content-policy evaluation, then commit.
// Prohibited or warning-tier content is never stored; the author takes the
// corresponding violation penalty instead.
func (o *Orchestrator) SendMessage(ctx context.Context, content, replyTo string) (*types.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	if user == nil || o.currentRoomID == "" {
		return nil, &types.NotInRoomError{}
	}
	room := o.currentRoom()
	if room == nil {
		return nil, &types.NotInRoomError{}
	}
	p := room.Participants[user.ID]
	if p == nil {
		return nil, &types.NotInRoomError{}
	}
	if p.Banned {
		return nil, &types.BannedError{Reason: p.BanReason}
	}
	now := o.now()
	if p.IsSilenced(now) {
		return nil, &types.SilencedError{Remaining: p.SilencedUntil.Sub(now)}
	}

	trimmed, err := types.ValidateMessageContent(content)
	if err != nil {
		return nil, err
	}
	if !o.limiter.Allow(user.ID) {
		return nil, &types.ValidationError{Reason: "you are sending messages too quickly"}
	}

	cls := o.filter.Classify(trimmed)
	if cls.Prohibited || cls.Warning {
		return nil, o.applyContentPenalty(ctx, room, p, cls.Prohibited)
	}

	msg := &types.Message{
		ID:         uuid.New().String(),
		AuthorID:   user.ID,
		AuthorName: p.DisplayName,
		AuthorRole: p.Role,
		Content:    trimmed,
		CreatedAt:  now,
		ReplyTo:    replyTo,
		Reactions:  make(map[string][]string),
	}
	if err := o.rooms.AppendMessage(ctx, room.ID, msg); err != nil {
		return nil, err
	}

	o.publish(types.EventSendMessage, &types.OutboundMessage{RoomID: room.ID, Message: msg})
	o.persistLocal()
	return msg, nil
}

// applyContentPenalty commits the escalation for a policy match and returns
// the error the send attempt fails with.
func (o *Orchestrator) applyContentPenalty(ctx context.Context, room *types.Room, p *types.Participant, prohibited bool) error {
	outcome := o.moderation.ContentPenalty(&p.User, prohibited)

	entry := types.ModerationEntry{
		Action:    entryAction(outcome.Action),
		Moderator: "system",
		Timestamp: o.now(),
	}
	banned := outcome.Action == moderation.ActionBan
	if err := o.rooms.ApplyModeration(ctx, room.ID, p.ID, entry, outcome.Violations,
		outcome.SilencedUntil, banned, "repeated policy violations"); err != nil {
		return err
	}
	o.syncIdentity(p.ID, outcome, "repeated policy violations")
	o.announce(ctx, room, outcome.Notice)

	if banned {
		if o.currentRoomID == room.ID && o.identity.Current() != nil && o.identity.Current().ID == p.ID {
			o.currentRoomID = ""
			o.state = Left
		}
		o.persistLocal()
		return &types.BannedError{Reason: "repeated policy violations"}
	}
	o.persistLocal()

	if prohibited {
		return &types.ContentRejectedError{Reason: "message contains prohibited language"}
	}
	if outcome.Action == moderation.ActionSilence {
		return &types.ContentRejectedError{Reason: "inappropriate language; you have been silenced", Warning: true}
	}
	return &types.ContentRejectedError{Reason: "please keep the language classroom-appropriate", Warning: true}
}

// Silence applies a teacher silence to a participant of the current room.
// At the escalation threshold the action converts to a ban.
func (o *Orchestrator) Silence(ctx context.Context, targetID string, duration time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	room := o.currentRoom()
	if user == nil || room == nil {
		return &types.NotInRoomError{}
	}

	outcome, err := o.moderation.Silence(room, targetID, duration, user)
	if err != nil {
		return err
	}

	entry := types.ModerationEntry{
		Action:    entryAction(outcome.Action),
		Moderator: user.ID,
		Timestamp: o.now(),
		Duration:  duration,
	}
	banned := outcome.Action == moderation.ActionBan
	if err := o.rooms.ApplyModeration(ctx, room.ID, targetID, entry, outcome.Violations,
		outcome.SilencedUntil, banned, "banned by the teacher"); err != nil {
		return err
	}
	o.syncIdentity(targetID, outcome, "banned by the teacher")
	o.announce(ctx, room, outcome.Notice)
	o.persistLocal()
	return nil
}

// CreatePoll starts a poll in the current room, deactivating any prior
// active poll.
func (o *Orchestrator) CreatePoll(ctx context.Context, question string, options []string) (*types.Poll, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	room := o.currentRoom()
	if user == nil || room == nil {
		return nil, &types.NotInRoomError{}
	}

	p, err := o.polls.CreatePoll(room, question, options, user)
	if err != nil {
		return nil, err
	}
	if err := o.rooms.CommitPoll(ctx, room.ID, p); err != nil {
		return nil, err
	}
	o.announce(ctx, room, fmt.Sprintf("%s started a poll: %s", user.DisplayName, p.Question))
	o.persistLocal()
	return p, nil
}

// Vote records the current user's exclusive vote on a poll.
func (o *Orchestrator) Vote(ctx context.Context, pollID, option string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	room := o.currentRoom()
	if user == nil || room == nil {
		return &types.NotInRoomError{}
	}

	p, err := o.polls.Vote(room, pollID, option, user)
	if err != nil {
		return err
	}
	if err := o.rooms.CommitPoll(ctx, room.ID, p); err != nil {
		return err
	}
	o.persistLocal()
	return nil
}

// ClosePoll closes a poll. Closing an already-closed poll is a no-op
// success, tolerating duplicate close events from network retries.
func (o *Orchestrator) ClosePoll(ctx context.Context, pollID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	room := o.currentRoom()
	if user == nil || room == nil {
		return &types.NotInRoomError{}
	}

	p, err := o.polls.ClosePoll(room, pollID, user)
	if err != nil {
		return err
	}
	if err := o.rooms.CommitPoll(ctx, room.ID, p); err != nil {
		return err
	}
	o.persistLocal()
	return nil
}

// PollResults tallies a poll in the current room.
func (o *Orchestrator) PollResults(pollID string) ([]types.PollResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room := o.currentRoom()
	if room == nil {
		return nil, &types.NotInRoomError{}
	}
	p := room.FindPoll(pollID)
	if p == nil {
		return nil, &types.ValidationError{Reason: "poll not found"}
	}
	return o.polls.Results(p), nil
}

// ToggleReaction toggles the current user's reaction on a message.
func (o *Orchestrator) ToggleReaction(ctx context.Context, messageID, symbol string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	if user == nil || o.currentRoomID == "" {
		return false, &types.NotInRoomError{}
	}

	on, err := o.rooms.ToggleReaction(ctx, o.currentRoomID, messageID, symbol, user.ID)
	if err != nil {
		return false, err
	}
	o.persistLocal()
	return on, nil
}

// Reconnect re-emits the join request for the remembered room after a
// transport drop. Idempotent: the remote side answers with a fresh snapshot
// or an error, never a duplicate join side effect. On failure local state is
// untouched and the caller may retry.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	user := o.identity.Current()
	room := o.currentRoom()
	if user == nil || room == nil {
		return &types.NotInRoomError{}
	}
	if o.connector == nil {
		return &types.TransportError{Op: "reconnect", Err: errNoConnector}
	}

	o.state = Reconciling
	snap, err := o.connector.Join(ctx, room.Code, user)
	if err != nil {
		return err
	}
	if _, err := o.rooms.ReplaceState(ctx, snap); err != nil {
		return err
	}
	o.state = Joined
	o.persistLocal()
	return nil
}

// HandleEvent applies one transport-delivered event. The transport hub
// calls this serially, so remote events and local actions interleave only
// at whole-handler granularity.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *types.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Type {
	case types.EventRoomSnapshot:
		var snap types.RoomSnapshot
		if err := json.Unmarshal(ev.Payload, &snap); err != nil {
			return fmt.Errorf("malformed room snapshot: %w", err)
		}
		if _, err := o.rooms.ReplaceState(ctx, &snap); err != nil {
			return err
		}
		if snap.RoomID == o.currentRoomID && o.state == Reconciling {
			o.state = Joined
		}
		o.persistLocal()
		return nil

	case types.EventNewMessage:
		var nm types.NewMessage
		if err := json.Unmarshal(ev.Payload, &nm); err != nil {
			return fmt.Errorf("malformed message event: %w", err)
		}
		applied, err := o.rooms.ApplyRemoteMessage(ctx, nm.RoomID, nm.Message)
		if err != nil {
			return err
		}
		if applied {
			o.persistLocal()
		}
		return nil

	case types.EventParticipantJoined:
		var pj types.ParticipantJoined
		if err := json.Unmarshal(ev.Payload, &pj); err != nil {
			return fmt.Errorf("malformed participant event: %w", err)
		}
		return o.applyRoster(ctx, pj.Participants)

	case types.EventParticipantLeft:
		var pl types.ParticipantLeft
		if err := json.Unmarshal(ev.Payload, &pl); err != nil {
			return fmt.Errorf("malformed participant event: %w", err)
		}
		return o.applyRoster(ctx, pl.Participants)

	case types.EventError:
		var ee types.ErrorEvent
		if err := json.Unmarshal(ev.Payload, &ee); err != nil {
			return fmt.Errorf("malformed error event: %w", err)
		}
		// Transient; surfaced without mutating state.
		logger.Error("Transport error: %s", ee.Message)
		return nil

	default:
		logger.Debug("Ignoring unknown event type %q", ev.Type)
		return nil
	}
}

func (o *Orchestrator) applyRoster(ctx context.Context, participants []*types.Participant) error {
	if o.currentRoomID == "" {
		return nil
	}
	if err := o.rooms.ReplaceParticipants(ctx, o.currentRoomID, participants); err != nil {
		return err
	}
	o.persistLocal()
	return nil
}

// announce appends a system-authored message to the room and broadcasts it.
func (o *Orchestrator) announce(ctx context.Context, room *types.Room, text string) {
	if text == "" {
		return
	}
	msg := &types.Message{
		ID:         uuid.New().String(),
		AuthorName: "System",
		AuthorRole: types.RoleTeacher,
		Content:    text,
		CreatedAt:  o.now(),
		Reactions:  make(map[string][]string),
		System:     true,
	}
	if err := o.rooms.AppendMessage(ctx, room.ID, msg); err != nil {
		logger.Error("Failed to record system notice: %v", err)
		return
	}
	o.publish(types.EventSendMessage, &types.OutboundMessage{RoomID: room.ID, Message: msg})
}

// syncIdentity mirrors a committed moderation outcome onto the identity
// user when the target is the local user, keeping the shared violation
// counter consistent.
func (o *Orchestrator) syncIdentity(targetID string, outcome *moderation.Outcome, banReason string) {
	user := o.identity.Current()
	if user == nil || user.ID != targetID {
		return
	}
	user.Violations = outcome.Violations
	if outcome.Action == moderation.ActionBan {
		user.Banned = true
		user.BanReason = banReason
		user.SilencedUntil = nil
	} else {
		user.SilencedUntil = outcome.SilencedUntil
	}
}

// publish sends an event through the connector, if any. The message is
// already committed locally; reconciliation makes redelivery harmless, so a
// publish failure is logged and not surfaced.
func (o *Orchestrator) publish(eventType string, payload interface{}) {
	if o.connector == nil {
		return
	}
	ev, err := types.NewEvent(eventType, payload)
	if err != nil {
		logger.Error("Failed to encode %s event: %v", eventType, err)
		return
	}
	if err := o.connector.Publish(ev); err != nil {
		logger.Error("Failed to publish %s event: %v", eventType, err)
	}
}

func (o *Orchestrator) persistLocal() {
	if o.sink == nil {
		return
	}
	if err := o.sink.Persist(o.identity.Current(), o.currentRoomID, o.rooms.ListAll()); err != nil {
		logger.Error("Failed to persist local snapshot: %v", err)
	}
}

func (o *Orchestrator) currentRoom() *types.Room {
	if o.currentRoomID == "" {
		return nil
	}
	return o.rooms.FindByID(o.currentRoomID)
}

func entryAction(a moderation.Action) string {
	if a == moderation.ActionNone {
		return "warning"
	}
	return string(a)
}
