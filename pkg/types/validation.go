package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Compiled once at package initialization.
var (
	roomCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	userIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// IsValidRole reports whether role is one of the two known roles.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleTeacher
}

// IsValidRoomCode reports whether code has the short join code shape.
func IsValidRoomCode(code string) bool {
	return roomCodeRegex.MatchString(code)
}

// IsValidUserID checks the ID format used for generated identities.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// ValidateRoomName checks a room display name after trimming.
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Reason: "room name is required"}
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return &ValidationError{Reason: "room name too long"}
	}
	return nil
}

// ValidateDisplayName checks a teacher-chosen display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Reason: "display name is required"}
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return &ValidationError{Reason: "display name too long"}
	}
	return nil
}

// ValidateMessageContent checks message text after trimming. The returned
// string is the trimmed content the caller must store.
func ValidateMessageContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", &ValidationError{Reason: "message is empty"}
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", &ValidationError{Reason: "message too long"}
	}
	return trimmed, nil
}
