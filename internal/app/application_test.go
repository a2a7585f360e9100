package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/internal/config"
	"classhub/pkg/types"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Enabled = false
	cfg.Snapshot.Path = filepath.Join(t.TempDir(), "classhub.json")
	cfg.HTTP.Port = 18291
	return cfg
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = 0

	_, err := NewApplication(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewApplication_OfflineWiring(t *testing.T) {
	application, err := NewApplication(context.Background(), offlineConfig(t))
	require.NoError(t, err)
	require.NotNil(t, application.Orchestrator())
	assert.Nil(t, application.hub, "no transport URL means no hub")
	assert.Nil(t, application.dbManager)
}

func TestApplication_SessionRestoredFromSnapshot(t *testing.T) {
	cfg := offlineConfig(t)

	first, err := NewApplication(context.Background(), cfg)
	require.NoError(t, err)

	orch := first.Orchestrator()
	_, err = orch.Login(types.RoleTeacher, "Ada")
	require.NoError(t, err)
	room, err := orch.CreateRoom(context.Background(), "Algebra")
	require.NoError(t, err)

	// A second application over the same snapshot sees the room.
	second, err := NewApplication(context.Background(), cfg)
	require.NoError(t, err)

	restored := second.Orchestrator()
	_, err = restored.Login(types.RoleStudent, "")
	require.NoError(t, err)
	joined, err := restored.JoinRoom(context.Background(), room.Code)
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
}

func TestApplication_JoinRoomAppliesJoinTimeout(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Transport.JoinTimeout = 7 * time.Second

	application, err := NewApplication(context.Background(), cfg)
	require.NoError(t, err)

	joinCtx, cancel := application.joinContext(context.Background())
	defer cancel()

	deadline, ok := joinCtx.Deadline()
	require.True(t, ok, "join context should carry a deadline")
	remaining := time.Until(deadline)
	assert.Greater(t, remaining, 6*time.Second)
	assert.LessOrEqual(t, remaining, 7*time.Second)

	// The wrapper delegates to the orchestrator under that deadline.
	_, err = application.Orchestrator().Login(types.RoleStudent, "")
	require.NoError(t, err)
	_, err = application.JoinRoom(context.Background(), "NOSUCH")
	var invalid *types.ValidationError
	assert.ErrorAs(t, err, &invalid)
}

func TestApplication_StartStop(t *testing.T) {
	application, err := NewApplication(context.Background(), offlineConfig(t))
	require.NoError(t, err)

	require.NoError(t, application.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, application.Stop(ctx))
}
