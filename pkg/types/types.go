package types

import (
	"time"
)

// Roles a user can hold. Students are anonymous; teachers choose a display name.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// System-wide limits shared by validation, the registry and the orchestrator.
const (
	MaxRoomNameLength    = 60
	MaxMessageLength     = 500
	MaxDisplayNameLength = 50
	MaxReactionsPerUser  = 5
	MinPollOptions       = 2
	MaxPollOptions       = 4
	RoomCodeLength       = 6
)

// User is the local identity created at login. It is owned by the identity
// manager; every other component refers to it by ID only.
type User struct {
	ID            string     `json:"id"`
	Role          string     `json:"role"`
	DisplayName   string     `json:"display_name"`
	Violations    int        `json:"violations"`
	SilencedUntil *time.Time `json:"silenced_until,omitempty"`
	Banned        bool       `json:"banned"`
	BanReason     string     `json:"ban_reason,omitempty"`
}

// IsSilenced reports whether the user is inside an active silence window.
func (u *User) IsSilenced(now time.Time) bool {
	return u.SilencedUntil != nil && now.Before(*u.SilencedUntil)
}

// ModerationEntry records one moderation action taken against a participant.
type ModerationEntry struct {
	Action    string        `json:"action"` // "silence" or "ban"
	Moderator string        `json:"moderator"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Participant is the per-room snapshot of a user, with presence and an audit
// trail of moderation actions taken inside the room.
type Participant struct {
	User
	Online     bool              `json:"online"`
	AuditTrail []ModerationEntry `json:"audit_trail,omitempty"`
}

// Message is one entry in a room's ordered message sequence.
// Reactions maps a reaction symbol to the IDs of users holding it.
type Message struct {
	ID         string              `json:"id"`
	AuthorID   string              `json:"author_id"`
	AuthorName string              `json:"author_name"`
	AuthorRole string              `json:"author_role"`
	Content    string              `json:"content"`
	CreatedAt  time.Time           `json:"created_at"`
	ReplyTo    string              `json:"reply_to,omitempty"`
	Reactions  map[string][]string `json:"reactions,omitempty"`
	System     bool                `json:"system,omitempty"`
	Edited     bool                `json:"edited,omitempty"`
}

// ReactionCount returns how many reactions userID currently holds on this message.
func (m *Message) ReactionCount(userID string) int {
	count := 0
	for _, users := range m.Reactions {
		for _, id := range users {
			if id == userID {
				count++
			}
		}
	}
	return count
}

// Poll is a question with 2-4 options. Votes maps an option to the IDs of the
// users who picked it; TotalVotes is maintained incrementally alongside.
type Poll struct {
	ID         string              `json:"id"`
	RoomID     string              `json:"room_id"`
	Question   string              `json:"question"`
	Options    []string            `json:"options"`
	Votes      map[string][]string `json:"votes"`
	TotalVotes int                 `json:"total_votes"`
	Active     bool                `json:"active"`
	CreatedBy  string              `json:"created_by"`
	CreatedAt  time.Time           `json:"created_at"`
	ClosedAt   *time.Time          `json:"closed_at,omitempty"`
}

// RecomputeTotal counts votes from the raw vote sets. It must always agree
// with TotalVotes; the poll engine tests assert this.
func (p *Poll) RecomputeTotal() int {
	total := 0
	for _, voters := range p.Votes {
		total += len(voters)
	}
	return total
}

// VoterOption returns the option userID voted for, if any.
func (p *Poll) VoterOption(userID string) (string, bool) {
	for option, voters := range p.Votes {
		for _, id := range voters {
			if id == userID {
				return option, true
			}
		}
	}
	return "", false
}

// PollResult is one row of a poll tally.
type PollResult struct {
	Option     string `json:"option"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// Room is a bounded chat and poll session owned by one teacher and joined by
// students through a short code. The registry is the exclusive owner of Room
// and everything nested in it.
type Room struct {
	ID           string                  `json:"id"`
	Code         string                  `json:"code"`
	Name         string                  `json:"name"`
	OwnerID      string                  `json:"owner_id"`
	Active       bool                    `json:"active"`
	Messages     []*Message              `json:"messages"`
	Polls        []*Poll                 `json:"polls"`
	Participants map[string]*Participant `json:"participants"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// ActivePoll returns the room's single active poll, or nil.
func (r *Room) ActivePoll() *Poll {
	for _, p := range r.Polls {
		if p.Active {
			return p
		}
	}
	return nil
}

// FindPoll returns the poll with the given ID, or nil.
func (r *Room) FindPoll(pollID string) *Poll {
	for _, p := range r.Polls {
		if p.ID == pollID {
			return p
		}
	}
	return nil
}

// FindMessage returns the message with the given ID, or nil.
func (r *Room) FindMessage(messageID string) *Message {
	for _, m := range r.Messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

// HasMessage reports whether a message with the given ID is already present.
// Remote events are reconciled through this check to stay idempotent.
func (r *Room) HasMessage(messageID string) bool {
	return r.FindMessage(messageID) != nil
}
