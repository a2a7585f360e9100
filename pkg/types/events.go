package types

import (
	"encoding/json"
)

// Transport event types. These describe the shape of events exchanged with
// the realtime transport, not its wire framing.
const (
	EventJoin              = "join"
	EventRoomSnapshot      = "room_snapshot"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventSendMessage       = "send_message"
	EventNewMessage        = "new_message"
	EventError             = "error"
)

// Event is the envelope for all transport traffic.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an envelope of the given type.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, Payload: data}, nil
}

// JoinRequest asks the remote side to attach an identity to a room. Re-sent
// verbatim on reconnect; the remote answers with a RoomSnapshot or an
// ErrorEvent, never a duplicate join side effect.
type JoinRequest struct {
	RoomCode string `json:"room_code"`
	User     *User  `json:"user"`
}

// RoomSnapshot is the authoritative full state of a room. Receivers replace
// local state for the room instead of merging.
type RoomSnapshot struct {
	RoomID       string         `json:"room_id"`
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	OwnerID      string         `json:"owner_id"`
	Participants []*Participant `json:"participants"`
	Messages     []*Message     `json:"messages"`
	ActivePoll   *Poll          `json:"active_poll,omitempty"`
}

// ParticipantJoined announces a new participant along with the full roster.
type ParticipantJoined struct {
	User         *Participant   `json:"user"`
	Participants []*Participant `json:"participants"`
}

// ParticipantLeft announces a departure along with the full roster.
type ParticipantLeft struct {
	UserID       string         `json:"user_id"`
	Participants []*Participant `json:"participants"`
}

// OutboundMessage carries a locally committed message to the remote side.
type OutboundMessage struct {
	RoomID  string   `json:"room_id"`
	Message *Message `json:"message"`
}

// NewMessage is the broadcast of a committed message to room members.
type NewMessage struct {
	RoomID  string   `json:"room_id"`
	Message *Message `json:"message"`
}

// ErrorEvent surfaces a remote failure. It is a transient condition, not a
// state mutation.
type ErrorEvent struct {
	Message string `json:"message"`
}
