package moderation

import (
	"fmt"
	"time"

	"classhub/pkg/types"
)

// Action is the escalation step an outcome proposes.
type Action string

const (
	ActionNone    Action = "none"
	ActionSilence Action = "silence"
	ActionBan     Action = "ban"
)

// Policy is the single table of escalation thresholds. Both the manual
// moderation path and the content-policy path read from here, so the rule
// sets stay auditable as data rather than scattered conditionals.
type Policy struct {
	// Manual silence converts to a ban when the resulting violation count
	// reaches ManualBanViolations and the requested duration is at least
	// ManualBanMinDuration.
	ManualBanViolations  int
	ManualBanMinDuration time.Duration

	// Prohibited-term matches add ProhibitedStep violations and ban at
	// ProhibitedBanAt total.
	ProhibitedStep  int
	ProhibitedBanAt int

	// Warning-term matches add WarningStep violations, auto-silence for
	// WarningSilenceFor at WarningSilenceAt total, and ban at WarningBanAt.
	WarningStep       int
	WarningSilenceAt  int
	WarningSilenceFor time.Duration
	WarningBanAt      int
}

// DefaultPolicy returns the standard classroom thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ManualBanViolations:  4,
		ManualBanMinDuration: 20 * time.Minute,
		ProhibitedStep:       2,
		ProhibitedBanAt:      3,
		WarningStep:          1,
		WarningSilenceAt:     4,
		WarningSilenceFor:    60 * time.Minute,
		WarningBanAt:         6,
	}
}

// Outcome is a proposed moderation delta. The engine never mutates registry
// state; the orchestrator commits outcomes at its single commit point.
type Outcome struct {
	Action        Action
	Violations    int        // new total for the target
	SilencedUntil *time.Time // set when Action is ActionSilence
	Notice        string     // system message text, "" when nothing to announce
}

// Engine applies silence/ban transitions based on violation counts and the
// escalation policy.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// NewEngine creates a moderation engine with the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy, now: time.Now}
}

// Silence computes the outcome of a teacher silencing a participant of room
// for the given duration. The target's violation count increases by one; at
// the policy threshold the action converts to a ban instead.
func (e *Engine) Silence(room *types.Room, targetID string, duration time.Duration, moderator *types.User) (*Outcome, error) {
	if moderator == nil || moderator.Role != types.RoleTeacher {
		return nil, &types.AuthorizationError{Reason: "only teachers can silence"}
	}
	if room.Participants[moderator.ID] == nil {
		return nil, &types.AuthorizationError{Reason: "moderator is not in the room"}
	}

	target := room.Participants[targetID]
	if target == nil {
		return nil, &types.AuthorizationError{Reason: "target is not in the room"}
	}
	if target.Role == types.RoleTeacher && target.ID != moderator.ID {
		return nil, &types.AuthorizationError{Reason: "teachers cannot be silenced"}
	}
	if target.Banned {
		return nil, &types.ConflictError{Reason: "participant is already banned"}
	}
	if duration <= 0 {
		return nil, &types.ValidationError{Reason: "silence duration must be positive"}
	}

	violations := target.Violations + 1

	if violations >= e.policy.ManualBanViolations && duration >= e.policy.ManualBanMinDuration {
		return &Outcome{
			Action:     ActionBan,
			Violations: violations,
			Notice:     fmt.Sprintf("%s was banned from the room.", describe(target)),
		}, nil
	}

	until := e.now().Add(duration)
	return &Outcome{
		Action:        ActionSilence,
		Violations:    violations,
		SilencedUntil: &until,
		Notice: fmt.Sprintf("%s was silenced for %d minutes.",
			describe(target), int(duration.Minutes())),
	}, nil
}

// ContentPenalty computes the escalation outcome of a content-policy match
// during the message send flow. Both tiers share the target's violation
// counter with the manual path.
func (e *Engine) ContentPenalty(user *types.User, prohibited bool) *Outcome {
	if prohibited {
		violations := user.Violations + e.policy.ProhibitedStep
		if violations >= e.policy.ProhibitedBanAt {
			return &Outcome{
				Action:     ActionBan,
				Violations: violations,
				Notice:     "A student was removed from the room for repeated policy violations.",
			}
		}
		return &Outcome{Action: ActionNone, Violations: violations}
	}

	violations := user.Violations + e.policy.WarningStep
	switch {
	case violations >= e.policy.WarningBanAt:
		return &Outcome{
			Action:     ActionBan,
			Violations: violations,
			Notice:     "A student was removed from the room for repeated policy violations.",
		}
	case violations >= e.policy.WarningSilenceAt:
		until := e.now().Add(e.policy.WarningSilenceFor)
		return &Outcome{
			Action:        ActionSilence,
			Violations:    violations,
			SilencedUntil: &until,
			Notice: fmt.Sprintf("A student was silenced for %d minutes.",
				int(e.policy.WarningSilenceFor.Minutes())),
		}
	default:
		return &Outcome{Action: ActionNone, Violations: violations}
	}
}

// describe names a participant in a system notice without revealing more
// than role: students stay anonymous, teachers go by display name.
func describe(p *types.Participant) string {
	if p.Role == types.RoleTeacher {
		return p.DisplayName
	}
	return "A student"
}
