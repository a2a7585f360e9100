package types

import (
	"fmt"
	"time"
)

// Error taxonomy shared across components. Each class maps to one recovery
// strategy: validation and conflict errors are user-correctable, authorization
// and policy-state errors are not, transport errors are retryable.

// ValidationError reports malformed input. The caller can correct and retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ConflictError reports an invariant violation such as a duplicate active
// room. The caller must choose a different action.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// AuthorizationError reports a failed role or ownership check. Not retryable
// with the same actor.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

// NotInRoomError reports an action that requires active room membership.
type NotInRoomError struct{}

func (e *NotInRoomError) Error() string {
	return "not in a room"
}

// SilencedError reports a send attempt during an active silence window.
type SilencedError struct {
	Remaining time.Duration
}

// RemainingMinutes returns the remaining silence time in minutes, rounded up.
func (e *SilencedError) RemainingMinutes() int {
	return int((e.Remaining + time.Minute - 1) / time.Minute)
}

func (e *SilencedError) Error() string {
	return fmt.Sprintf("you are silenced for another %d minutes", e.RemainingMinutes())
}

// BannedError reports an action by, or escalation against, a banned user.
type BannedError struct {
	Reason string
}

func (e *BannedError) Error() string {
	if e.Reason == "" {
		return "you have been banned from this room"
	}
	return "banned: " + e.Reason
}

// ContentRejectedError reports a message blocked by the content policy.
// Warning distinguishes the lower-severity tier from prohibited content.
type ContentRejectedError struct {
	Reason  string
	Warning bool
}

func (e *ContentRejectedError) Error() string {
	return "message rejected: " + e.Reason
}

// TransportError wraps a network or remote failure. Handlers are idempotent,
// so callers may retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
