package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"classhub/pkg/logger"
	"classhub/pkg/types"
)

// State is the durable local snapshot, standing in for a backing store
// when running offline.
type State struct {
	CurrentUser   *types.User   `json:"current_user,omitempty"`
	CurrentRoomID string        `json:"current_room_id,omitempty"`
	Rooms         []*types.Room `json:"rooms"`
	SavedAt       time.Time     `json:"saved_at"`
}

// Snapshot persists State to a JSON file. Writes go through a temp file
// and rename so a crash mid-write never leaves a torn snapshot.
type Snapshot struct {
	path string
	mu   sync.Mutex
}

// New creates a snapshot writer for path.
func New(path string) *Snapshot {
	return &Snapshot{path: path}
}

// Persist writes the current state. Implements the orchestrator's sink.
func (s *Snapshot) Persist(user *types.User, currentRoomID string, rooms []*types.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &State{
		CurrentUser:   user,
		CurrentRoomID: currentRoomID,
		Rooms:         rooms,
		SavedAt:       time.Now(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".classhub-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the snapshot. A missing, unreadable or corrupt file yields an
// empty state: the session fails open to a fresh start, never an error.
func (s *Snapshot) Load() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("Unreadable local snapshot, starting fresh: %v", err)
		}
		return &State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Error("Corrupt local snapshot, starting fresh: %v", err)
		return &State{}
	}
	return &state
}
