package model

import (
	"encoding/json"
	"time"
)

type OpKind string

const (
	OpMove   OpKind = "move"
	OpResize OpKind = "resize"
	OpStyle  OpKind = "style"
	OpDelete OpKind = "delete"
	OpCreate OpKind = "create"
)

func (k OpKind) Valid() bool {
	switch k {
	case OpMove, OpResize, OpStyle, OpDelete, OpCreate:
		return true
	}
	return false
}

// Operation is one recorded attempt to mutate an element. Values are copied
// around; a record in the log is replaced, never edited through a shared pointer.
type Operation struct {
	ID          string          `json:"operation_id"`
	Room        string          `json:"room"`
	UserID      string          `json:"user_id"`
	ElementID   string          `json:"element_id"`
	Kind        OpKind          `json:"op_type"`
	OldValue    json.RawMessage `json:"old_value,omitempty"`
	NewValue    json.RawMessage `json:"new_value,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Transformed bool            `json:"transformed"`
}

// ElementState is the authoritative last known value of one element.
type ElementState struct {
	ElementID   string          `json:"element_id"`
	Value       json.RawMessage `json:"value"`
	Kind        OpKind          `json:"op_type"`
	UserID      string          `json:"updated_by"`
	OperationID string          `json:"operation_id"`
	Timestamp   time.Time       `json:"updated_at"`
	Deleted     bool            `json:"deleted"`
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Presence struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	Cursor        Cursor    `json:"cursor"`
	Selection     []string  `json:"selection"`
	ActiveElement string    `json:"active_element,omitempty"`
	IsTyping      bool      `json:"is_typing"`
	Status        Status    `json:"status"`
	LastSeen      time.Time `json:"last_seen"`
}

// NewPresence returns a presence with default field values.
func NewPresence(id Identity, now time.Time) Presence {
	return Presence{
		UserID:    id.UserID,
		Username:  id.Username,
		Selection: []string{},
		Status:    StatusOnline,
		LastSeen:  now,
	}
}

// Identity is the verified (user id, display name) pair of a connection.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
