package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classhub/internal/registry"
	"classhub/pkg/types"
)

type stubStore struct {
	healthErr error
}

func (s *stubStore) SaveRoom(context.Context, *types.Room) error        { return nil }
func (s *stubStore) GetRoom(context.Context, string) (*types.Room, error) { return nil, nil }
func (s *stubStore) ListActiveRooms(context.Context) ([]*types.Room, error) {
	return nil, nil
}
func (s *stubStore) SaveMessage(context.Context, string, *types.Message) error { return nil }
func (s *stubStore) SavePoll(context.Context, *types.Poll) error               { return nil }
func (s *stubStore) HealthCheck(context.Context) error                         { return s.healthErr }
func (s *stubStore) Close() error                                              { return nil }

func seedRoom(t *testing.T, reg *registry.Registry) *types.Room {
	t.Helper()
	owner := &types.User{ID: "t1", Role: types.RoleTeacher, DisplayName: "Ada"}
	room, err := reg.CreateRoom(context.Background(), owner, "Algebra")
	require.NoError(t, err)
	return room
}

func TestHealth(t *testing.T) {
	reg := registry.NewRegistry(nil)
	seedRoom(t, reg)
	srv := NewServer(reg, &stubStore{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Database)
	assert.Equal(t, 1, resp.Counts["rooms"])
	assert.Equal(t, 1, resp.Counts["users"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	reg := registry.NewRegistry(nil)
	srv := NewServer(reg, &stubStore{healthErr: errors.New("locked")})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unreachable", resp.Database)
}

func TestHealth_NoStore(t *testing.T) {
	reg := registry.NewRegistry(nil)
	srv := NewServer(reg, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "disabled", resp.Database)
}

func TestRooms(t *testing.T) {
	reg := registry.NewRegistry(nil)
	room := seedRoom(t, reg)
	srv := NewServer(reg, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rooms []roomSummary `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, room.Code, resp.Rooms[0].Code)
	assert.Equal(t, 1, resp.Rooms[0].Participants)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(registry.NewRegistry(nil), nil)

	for _, path := range []string{"/health", "/api/rooms"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}
