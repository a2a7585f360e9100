package identity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"

	"classhub/pkg/types"
)

// Students are identified only by a generated handle; no real identity is
// ever attached or persisted.
const handleAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// nanoid sizes its random-read buffer as (length/5)*8 bytes, so lengths
// under 5 yield a generator that never produces output.
const handleLength = 5

// Manager owns the local user identity and its login/logout lifecycle. It
// does not touch room state; the orchestrator coordinates cross-component
// effects such as marking the user offline on logout.
type Manager struct {
	mu        sync.RWMutex
	current   *types.User
	genHandle func() string
}

// NewManager creates an identity manager.
func NewManager() *Manager {
	gen, err := nanoid.CustomASCII(handleAlphabet, handleLength)
	if err != nil {
		// The alphabet and length are compile-time constants; this cannot
		// fail outside programmer error.
		panic(fmt.Sprintf("identity: handle generator: %v", err))
	}
	return &Manager{genHandle: gen}
}

// Login creates the local identity. Students receive an anonymous generated
// handle; teachers must supply a display name.
func (m *Manager) Login(role, displayName string) (*types.User, error) {
	if !types.IsValidRole(role) {
		return nil, &types.ValidationError{Reason: "role must be student or teacher"}
	}

	name := strings.TrimSpace(displayName)
	switch role {
	case types.RoleTeacher:
		if err := types.ValidateDisplayName(name); err != nil {
			return nil, err
		}
	case types.RoleStudent:
		name = "Student-" + m.genHandle()
	}

	user := &types.User{
		ID:          uuid.New().String(),
		Role:        role,
		DisplayName: name,
	}

	m.mu.Lock()
	m.current = user
	m.mu.Unlock()

	return user, nil
}

// Logout clears the local identity. Idempotent.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Current returns the logged-in user, or nil.
func (m *Manager) Current() *types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
