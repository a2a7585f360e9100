package moderation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/pkg/types"
)

func testRoom(teacher *types.User, students ...*types.User) *types.Room {
	room := &types.Room{
		ID:           "room-1",
		OwnerID:      teacher.ID,
		Active:       true,
		Participants: make(map[string]*types.Participant),
	}
	room.Participants[teacher.ID] = &types.Participant{User: *teacher, Online: true}
	for _, s := range students {
		room.Participants[s.ID] = &types.Participant{User: *s, Online: true}
	}
	return room
}

func TestEngine_Silence_SetsWindow(t *testing.T) {
	teacher := &types.User{ID: "t1", Role: types.RoleTeacher, DisplayName: "Ada"}
	student := &types.User{ID: "s1", Role: types.RoleStudent, DisplayName: "Student-AAAAA"}
	room := testRoom(teacher, student)

	engine := NewEngine(DefaultPolicy())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }

	outcome, err := engine.Silence(room, "s1", 10*time.Minute, teacher)
	require.NoError(t, err)

	assert.Equal(t, ActionSilence, outcome.Action)
	assert.Equal(t, 1, outcome.Violations)
	require.NotNil(t, outcome.SilencedUntil)
	assert.Equal(t, base.Add(10*time.Minute), *outcome.SilencedUntil)
	assert.Contains(t, outcome.Notice, "A student was silenced for 10 minutes")
}

func TestEngine_Silence_EscalatesToBan(t *testing.T) {
	teacher := &types.User{ID: "t1", Role: types.RoleTeacher, DisplayName: "Ada"}
	student := &types.User{ID: "s1", Role: types.RoleStudent, Violations: 3}
	room := testRoom(teacher, student)

	engine := NewEngine(DefaultPolicy())

	// 3 prior violations + duration at the threshold converts to a ban.
	outcome, err := engine.Silence(room, "s1", 20*time.Minute, teacher)
	require.NoError(t, err)

	assert.Equal(t, ActionBan, outcome.Action)
	assert.Equal(t, 4, outcome.Violations)
	assert.Nil(t, outcome.SilencedUntil)
	assert.Contains(t, outcome.Notice, "A student was banned")
}

func TestEngine_Silence_BelowThresholdStaysSilence(t *testing.T) {
	teacher := &types.User{ID: "t1", Role: types.RoleTeacher}
	student := &types.User{ID: "s1", Role: types.RoleStudent, Violations: 2}
	room := testRoom(teacher, student)

	engine := NewEngine(DefaultPolicy())

	// 2 prior violations: 20 minutes stays a silence.
	outcome, err := engine.Silence(room, "s1", 20*time.Minute, teacher)
	require.NoError(t, err)
	assert.Equal(t, ActionSilence, outcome.Action)
	assert.NotNil(t, outcome.SilencedUntil)

	// 3 prior violations but short duration also stays a silence.
	room.Participants["s1"].Violations = 3
	outcome, err = engine.Silence(room, "s1", 10*time.Minute, teacher)
	require.NoError(t, err)
	assert.Equal(t, ActionSilence, outcome.Action)
}

func TestEngine_Silence_Authorization(t *testing.T) {
	teacher := &types.User{ID: "t1", Role: types.RoleTeacher}
	otherTeacher := &types.User{ID: "t2", Role: types.RoleTeacher, DisplayName: "Grace"}
	student := &types.User{ID: "s1", Role: types.RoleStudent}
	outsider := &types.User{ID: "s9", Role: types.RoleStudent}
	room := testRoom(teacher, student)
	room.Participants["t2"] = &types.Participant{User: *otherTeacher, Online: true}

	engine := NewEngine(DefaultPolicy())

	tests := []struct {
		name      string
		targetID  string
		moderator *types.User
	}{
		{"student moderator", "s1", student},
		{"moderator not in room", "s1", &types.User{ID: "tx", Role: types.RoleTeacher}},
		{"target not in room", outsider.ID, teacher},
		{"target is another teacher", "t2", teacher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Silence(room, tt.targetID, 5*time.Minute, tt.moderator)
			var aerr *types.AuthorizationError
			assert.True(t, errors.As(err, &aerr), "want AuthorizationError, got %v", err)
		})
	}
}

func TestEngine_Silence_AlreadyBanned(t *testing.T) {
	teacher := &types.User{ID: "t1", Role: types.RoleTeacher}
	student := &types.User{ID: "s1", Role: types.RoleStudent, Banned: true}
	room := testRoom(teacher, student)

	engine := NewEngine(DefaultPolicy())
	_, err := engine.Silence(room, "s1", 5*time.Minute, teacher)

	var cerr *types.ConflictError
	assert.True(t, errors.As(err, &cerr), "want ConflictError, got %v", err)
}

func TestEngine_ContentPenalty_Prohibited(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	// First offense: +2 violations, flagged but no ban (2 < 3).
	outcome := engine.ContentPenalty(&types.User{ID: "s1", Violations: 0}, true)
	assert.Equal(t, ActionNone, outcome.Action)
	assert.Equal(t, 2, outcome.Violations)

	// Second offense crosses the threshold.
	outcome = engine.ContentPenalty(&types.User{ID: "s1", Violations: 2}, true)
	assert.Equal(t, ActionBan, outcome.Action)
	assert.Equal(t, 4, outcome.Violations)

	// Exactly reaching 3 bans too (e.g. a warning point accrued earlier).
	outcome = engine.ContentPenalty(&types.User{ID: "s1", Violations: 1}, true)
	assert.Equal(t, ActionBan, outcome.Action)
	assert.Equal(t, 3, outcome.Violations)
}

func TestEngine_ContentPenalty_WarningLadder(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }

	tests := []struct {
		prior      int
		wantAction Action
		wantTotal  int
	}{
		{0, ActionNone, 1},
		{1, ActionNone, 2},
		{2, ActionNone, 3},
		{3, ActionSilence, 4},
		{4, ActionSilence, 5},
		{5, ActionBan, 6},
	}

	for _, tt := range tests {
		outcome := engine.ContentPenalty(&types.User{ID: "s1", Violations: tt.prior}, false)
		assert.Equal(t, tt.wantAction, outcome.Action, "prior=%d", tt.prior)
		assert.Equal(t, tt.wantTotal, outcome.Violations, "prior=%d", tt.prior)

		if tt.wantAction == ActionSilence {
			require.NotNil(t, outcome.SilencedUntil)
			assert.Equal(t, base.Add(60*time.Minute), *outcome.SilencedUntil)
		}
	}
}

func TestEngine_Notice_NeverNamesStudents(t *testing.T) {
	teacher := &types.User{ID: "t1", Role: types.RoleTeacher, DisplayName: "Ada"}
	student := &types.User{ID: "s1", Role: types.RoleStudent, DisplayName: "Student-QX7P2"}
	room := testRoom(teacher, student)

	engine := NewEngine(DefaultPolicy())
	outcome, err := engine.Silence(room, "s1", 5*time.Minute, teacher)
	require.NoError(t, err)

	assert.NotContains(t, outcome.Notice, "Student-QX7P2")
	assert.Contains(t, outcome.Notice, "A student")
}
