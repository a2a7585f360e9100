package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/pkg/types"
)

func TestPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "classhub.json")
	s := New(path)

	user := &types.User{ID: "u1", Role: types.RoleTeacher, DisplayName: "Ada"}
	rooms := []*types.Room{{
		ID:      "room-1",
		Code:    "ABCD23",
		Name:    "Algebra",
		OwnerID: "u1",
		Active:  true,
		Participants: map[string]*types.Participant{
			"u1": {User: *user, Online: true},
		},
		Messages:  []*types.Message{{ID: "m1", Content: "Welcome", CreatedAt: time.Now()}},
		CreatedAt: time.Now(),
	}}

	require.NoError(t, s.Persist(user, "room-1", rooms))

	got := New(path).Load()
	require.NotNil(t, got.CurrentUser)
	assert.Equal(t, "u1", got.CurrentUser.ID)
	assert.Equal(t, "room-1", got.CurrentRoomID)
	require.Len(t, got.Rooms, 1)
	assert.Equal(t, "ABCD23", got.Rooms[0].Code)
	require.Len(t, got.Rooms[0].Messages, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope.json"))

	got := s.Load()
	assert.Nil(t, got.CurrentUser)
	assert.Empty(t, got.CurrentRoomID)
	assert.Empty(t, got.Rooms)
}

func TestLoad_CorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classhub.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	got := New(path).Load()
	assert.Nil(t, got.CurrentUser)
	assert.Empty(t, got.Rooms)
}

func TestPersist_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "classhub.json"))

	require.NoError(t, s.Persist(nil, "", nil))
	require.NoError(t, s.Persist(nil, "", nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "classhub.json", entries[0].Name())
}
