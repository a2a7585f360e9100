package poll

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/pkg/types"
)

var (
	teacher  = &types.User{ID: "t1", Role: types.RoleTeacher, DisplayName: "Ada"}
	student1 = &types.User{ID: "s1", Role: types.RoleStudent}
	student2 = &types.User{ID: "s2", Role: types.RoleStudent}
)

func pollRoom() *types.Room {
	room := &types.Room{
		ID:           "room-1",
		Active:       true,
		Participants: make(map[string]*types.Participant),
	}
	for _, u := range []*types.User{teacher, student1, student2} {
		room.Participants[u.ID] = &types.Participant{User: *u, Online: true}
	}
	return room
}

func TestEngine_CreatePoll(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Ready?", []string{"Yes", "No"}, teacher)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, room.ID, p.RoomID)
	assert.Equal(t, []string{"Yes", "No"}, p.Options)
	assert.True(t, p.Active)
	assert.Equal(t, 0, p.TotalVotes)
}

func TestEngine_CreatePoll_OptionCleanup(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Pick one", []string{" A ", "", "B", "  "}, teacher)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, p.Options)
}

func TestEngine_CreatePoll_Validation(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	tests := []struct {
		name     string
		question string
		options  []string
		creator  *types.User
		wantErr  interface{}
	}{
		{"student creator", "Q", []string{"A", "B"}, student1, &types.AuthorizationError{}},
		{"creator not in room", "Q", []string{"A", "B"}, &types.User{ID: "tx", Role: types.RoleTeacher}, &types.AuthorizationError{}},
		{"empty question", "  ", []string{"A", "B"}, teacher, &types.ValidationError{}},
		{"single option", "Q", []string{"A"}, teacher, &types.ValidationError{}},
		{"all options empty", "Q", []string{" ", ""}, teacher, &types.ValidationError{}},
		{"duplicate options", "Q", []string{"A", "A"}, teacher, &types.ValidationError{}},
		{"too many options", "Q", []string{"A", "B", "C", "D", "E"}, teacher, &types.ValidationError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.CreatePoll(room, tt.question, tt.options, tt.creator)
			require.Error(t, err)
			switch tt.wantErr.(type) {
			case *types.AuthorizationError:
				var aerr *types.AuthorizationError
				assert.True(t, errors.As(err, &aerr), "want AuthorizationError, got %v", err)
			case *types.ValidationError:
				var verr *types.ValidationError
				assert.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			}
		})
	}
}

func TestEngine_Vote_Exclusivity(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Ready?", []string{"Yes", "No"}, teacher)
	require.NoError(t, err)
	room.Polls = append(room.Polls, p)

	// First vote.
	updated, err := engine.Vote(room, p.ID, "Yes", student1)
	require.NoError(t, err)
	room.Polls[0] = updated

	// Changing the vote removes the prior one.
	updated, err = engine.Vote(room, p.ID, "No", student1)
	require.NoError(t, err)

	assert.Empty(t, updated.Votes["Yes"])
	assert.Equal(t, []string{"s1"}, updated.Votes["No"])
	assert.Equal(t, 1, updated.TotalVotes)
	assert.Equal(t, updated.RecomputeTotal(), updated.TotalVotes)

	option, ok := updated.VoterOption("s1")
	require.True(t, ok)
	assert.Equal(t, "No", option)
}

func TestEngine_Vote_Rejections(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Ready?", []string{"Yes", "No"}, teacher)
	require.NoError(t, err)
	room.Polls = append(room.Polls, p)

	if _, err := engine.Vote(room, "missing", "Yes", student1); err == nil {
		t.Error("vote on unknown poll should fail")
	}
	if _, err := engine.Vote(room, p.ID, "Maybe", student1); err == nil {
		t.Error("vote for unknown option should fail")
	}
	outsider := &types.User{ID: "s9", Role: types.RoleStudent}
	if _, err := engine.Vote(room, p.ID, "Yes", outsider); err == nil {
		t.Error("vote by non-participant should fail")
	}

	closed, err := engine.ClosePoll(room, p.ID, teacher)
	require.NoError(t, err)
	room.Polls[0] = closed
	_, err = engine.Vote(room, p.ID, "Yes", student1)
	var cerr *types.ConflictError
	assert.True(t, errors.As(err, &cerr), "vote on closed poll: want ConflictError, got %v", err)
}

func TestEngine_ClosePoll_Idempotent(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Ready?", []string{"Yes", "No"}, teacher)
	require.NoError(t, err)
	room.Polls = append(room.Polls, p)

	first, err := engine.ClosePoll(room, p.ID, teacher)
	require.NoError(t, err)
	require.False(t, first.Active)
	require.NotNil(t, first.ClosedAt)
	room.Polls[0] = first

	// Duplicate close from a network retry is a no-op success.
	second, err := engine.ClosePoll(room, p.ID, teacher)
	require.NoError(t, err)
	assert.Equal(t, first.Active, second.Active)
	assert.Equal(t, first.ClosedAt.Unix(), second.ClosedAt.Unix())
}

func TestEngine_ClosePoll_Authorization(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Ready?", []string{"Yes", "No"}, teacher)
	require.NoError(t, err)
	room.Polls = append(room.Polls, p)

	_, err = engine.ClosePoll(room, p.ID, student1)
	var aerr *types.AuthorizationError
	assert.True(t, errors.As(err, &aerr), "want AuthorizationError, got %v", err)
}

func TestEngine_Results(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Ready?", []string{"Yes", "No"}, teacher)
	require.NoError(t, err)
	room.Polls = append(room.Polls, p)

	for _, voter := range []*types.User{student1, student2} {
		updated, err := engine.Vote(room, p.ID, "Yes", voter)
		require.NoError(t, err)
		room.Polls[0] = updated
	}

	results := engine.Results(room.Polls[0])
	require.Len(t, results, 2)
	assert.Equal(t, types.PollResult{Option: "Yes", Votes: 2, Percentage: 100}, results[0])
	assert.Equal(t, types.PollResult{Option: "No", Votes: 0, Percentage: 0}, results[1])
}

func TestEngine_Results_EmptyPoll(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()

	p, err := engine.CreatePoll(room, "Ready?", []string{"Yes", "No"}, teacher)
	require.NoError(t, err)

	for _, r := range engine.Results(p) {
		assert.Equal(t, 0, r.Votes)
		assert.Equal(t, 0, r.Percentage)
	}
}

func TestEngine_Results_PercentagesSumNearHundred(t *testing.T) {
	engine := NewEngine()
	room := pollRoom()
	extra := &types.User{ID: "s3", Role: types.RoleStudent}
	room.Participants["s3"] = &types.Participant{User: *extra, Online: true}

	p, err := engine.CreatePoll(room, "Pick", []string{"A", "B", "C"}, teacher)
	require.NoError(t, err)
	room.Polls = append(room.Polls, p)

	votes := map[*types.User]string{student1: "A", student2: "B", extra: "C"}
	for voter, option := range votes {
		updated, err := engine.Vote(room, p.ID, option, voter)
		require.NoError(t, err)
		room.Polls[0] = updated
	}

	sum := 0
	for _, r := range engine.Results(room.Polls[0]) {
		sum += r.Percentage
	}
	// Rounding drift bounded by the option count.
	assert.InDelta(t, 100, sum, 3)
}
