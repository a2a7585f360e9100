package poll

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"classhub/pkg/types"
)

// Engine manages poll lifecycle. It reads room snapshots and returns updated
// poll copies; it never mutates registry-owned state directly. The
// orchestrator commits the returned poll at its single commit point.
type Engine struct {
	now func() time.Time
}

// NewEngine creates a poll engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// CreatePoll validates and builds a new active poll for the room. Options
// are trimmed, empty entries discarded, duplicates rejected; 2 to 4 distinct
// options are required. Deactivating any pre-existing active poll happens
// when the registry commits the new one.
func (e *Engine) CreatePoll(room *types.Room, question string, options []string, creator *types.User) (*types.Poll, error) {
	if creator == nil || creator.Role != types.RoleTeacher {
		return nil, &types.AuthorizationError{Reason: "only teachers can create polls"}
	}
	if room.Participants[creator.ID] == nil {
		return nil, &types.AuthorizationError{Reason: "creator is not in the room"}
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &types.ValidationError{Reason: "poll question is required"}
	}

	cleaned := make([]string, 0, len(options))
	seen := make(map[string]bool)
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if seen[opt] {
			return nil, &types.ValidationError{Reason: "duplicate poll option: " + opt}
		}
		seen[opt] = true
		cleaned = append(cleaned, opt)
	}

	if len(cleaned) < types.MinPollOptions {
		return nil, &types.ValidationError{Reason: "a poll needs at least 2 distinct options"}
	}
	if len(cleaned) > types.MaxPollOptions {
		return nil, &types.ValidationError{Reason: "a poll allows at most 4 options"}
	}

	votes := make(map[string][]string, len(cleaned))
	for _, opt := range cleaned {
		votes[opt] = nil
	}

	return &types.Poll{
		ID:        uuid.New().String(),
		RoomID:    room.ID,
		Question:  question,
		Options:   cleaned,
		Votes:     votes,
		Active:    true,
		CreatedBy: creator.ID,
		CreatedAt: e.now(),
	}, nil
}

// Vote applies a vote and returns the updated poll copy. A voter's vote is
// exclusive: any prior vote in the same poll is removed first. The total
// counter is maintained incrementally; RecomputeTotal must always agree.
func (e *Engine) Vote(room *types.Room, pollID, option string, voter *types.User) (*types.Poll, error) {
	current := room.FindPoll(pollID)
	if current == nil {
		return nil, &types.ValidationError{Reason: "poll not found"}
	}
	if !current.Active {
		return nil, &types.ConflictError{Reason: "poll is closed"}
	}
	if voter == nil || room.Participants[voter.ID] == nil {
		return nil, &types.AuthorizationError{Reason: "voter is not in the room"}
	}

	if _, ok := current.Votes[option]; !ok {
		return nil, &types.ValidationError{Reason: "unknown poll option: " + option}
	}

	updated := clonePoll(current)

	// Exclusivity: drop any prior vote before recording the new one.
	for opt, voters := range updated.Votes {
		for i, id := range voters {
			if id == voter.ID {
				updated.Votes[opt] = append(voters[:i:i], voters[i+1:]...)
				updated.TotalVotes--
				break
			}
		}
	}

	updated.Votes[option] = append(updated.Votes[option], voter.ID)
	updated.TotalVotes++

	return updated, nil
}

// ClosePoll deactivates a poll and returns the updated copy. Closing an
// already-closed poll is a benign no-op success so duplicate close events
// from network retries stay harmless.
func (e *Engine) ClosePoll(room *types.Room, pollID string, requester *types.User) (*types.Poll, error) {
	if requester == nil || requester.Role != types.RoleTeacher {
		return nil, &types.AuthorizationError{Reason: "only teachers can close polls"}
	}

	current := room.FindPoll(pollID)
	if current == nil {
		return nil, &types.ValidationError{Reason: "poll not found"}
	}
	if !current.Active {
		return clonePoll(current), nil
	}

	updated := clonePoll(current)
	updated.Active = false
	closedAt := e.now()
	updated.ClosedAt = &closedAt

	return updated, nil
}

// Results tallies a poll in option order. Percentages are rounded to whole
// numbers; every row reports 0 when the poll has no votes.
func (e *Engine) Results(p *types.Poll) []types.PollResult {
	results := make([]types.PollResult, 0, len(p.Options))
	total := p.TotalVotes

	for _, option := range p.Options {
		count := len(p.Votes[option])
		percentage := 0
		if total > 0 {
			percentage = int(math.Round(float64(count) / float64(total) * 100))
		}
		results = append(results, types.PollResult{
			Option:     option,
			Votes:      count,
			Percentage: percentage,
		})
	}

	return results
}

// clonePoll deep-copies a poll so engine results never alias registry state.
func clonePoll(p *types.Poll) *types.Poll {
	clone := *p
	clone.Options = append([]string(nil), p.Options...)
	clone.Votes = make(map[string][]string, len(p.Votes))
	for opt, voters := range p.Votes {
		clone.Votes[opt] = append([]string(nil), voters...)
	}
	if p.ClosedAt != nil {
		closedAt := *p.ClosedAt
		clone.ClosedAt = &closedAt
	}
	return &clone
}
