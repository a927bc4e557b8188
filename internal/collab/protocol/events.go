package protocol

import (
	"encoding/json"
	"time"

	"collabcore/internal/collab/model"
)

// UserEvent carries user_joined, user_rejoined, user_left and cursor_removed.
type UserEvent struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// ElementLockEvent carries element_locked and element_unlocked.
type ElementLockEvent struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ElementID string    `json:"element_id"`
	Timestamp time.Time `json:"timestamp"`
}

type CursorEvent struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp time.Time `json:"timestamp"`
}

type SelectionEvent struct {
	Type       string    `json:"type"`
	Room       string    `json:"room"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	ElementIDs []string  `json:"element_ids"`
	Timestamp  time.Time `json:"timestamp"`
}

type TypingEvent struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	IsTyping  bool      `json:"is_typing"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusEvent struct {
	Type      string       `json:"type"`
	Room      string       `json:"room"`
	UserID    string       `json:"user_id"`
	Username  string       `json:"username"`
	Status    model.Status `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

type ElementUpdateResolvedEvent struct {
	Type         string          `json:"type"`
	Room         string          `json:"room"`
	ElementID    string          `json:"element_id"`
	OpType       model.OpKind    `json:"op_type"`
	Value        json.RawMessage `json:"value"`
	Deleted      bool            `json:"deleted"`
	ResolvedByOT bool            `json:"resolved_by_ot"`
	OperationID  string          `json:"operation_id"`
	UserID       string          `json:"user_id"`
	Transformed  bool            `json:"transformed"`
	Timestamp    time.Time       `json:"timestamp"`
}

type RoomStateEvent struct {
	Type      string                     `json:"type"`
	Room      string                     `json:"room"`
	Presences []model.Presence           `json:"presences"`
	Elements  map[string]json.RawMessage `json:"elements"`
	Timestamp time.Time                  `json:"timestamp"`
}

type ErrorEvent struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type,omitempty"`
}

func NewUserEvent(typ, room string, p model.Presence, now time.Time) UserEvent {
	return UserEvent{Type: typ, Room: room, UserID: p.UserID, Username: p.Username, Timestamp: now}
}

func NewElementLockEvent(typ, room string, p model.Presence, elementID string, now time.Time) ElementLockEvent {
	return ElementLockEvent{Type: typ, Room: room, UserID: p.UserID, Username: p.Username, ElementID: elementID, Timestamp: now}
}

func NewError(code string, err error, requestType string) ErrorEvent {
	return ErrorEvent{Type: ErrorType, Code: code, Message: err.Error(), RequestType: requestType}
}
