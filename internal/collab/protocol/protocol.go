// Package protocol defines the JSON messages exchanged with collaborating
// clients.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"collabcore/internal/collab/model"
)

const (
	// Inbound
	JoinType            = "join"
	LeaveType           = "leave"
	CursorUpdateType    = "cursor_update"
	SelectionUpdateType = "selection_update"
	TypingUpdateType    = "typing_update"
	StatusUpdateType    = "status_update"
	ElementMutateType   = "element_mutate"
	ElementLockType     = "element_lock"
	ElementUnlockType   = "element_unlock"

	// Outbound
	RoomStateType             = "room_state"
	UserJoinedType            = "user_joined"
	UserRejoinedType          = "user_rejoined"
	UserLeftType              = "user_left"
	CursorMovedType           = "cursor_moved"
	CursorRemovedType         = "cursor_removed"
	SelectionChangedType      = "selection_changed"
	TypingChangedType         = "typing_changed"
	StatusChangedType         = "status_changed"
	ElementLockedType         = "element_locked"
	ElementUnlockedType       = "element_unlocked"
	ElementUpdateResolvedType = "element_update_resolved"
	ErrorType                 = "error"
)

// Error codes carried by ErrorEvent.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeMalformed       = "malformed_message"
	CodeElementLocked   = "element_locked"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal_error"
)

// Inbound is the union of every client message. UserID is accepted on the
// wire but always replaced by the authenticated identity.
type Inbound struct {
	Type       string          `json:"type"`
	Room       string          `json:"room"`
	UserID     string          `json:"user_id"`
	Username   string          `json:"username"`
	X          *float64        `json:"x"`
	Y          *float64        `json:"y"`
	ElementIDs []string        `json:"element_ids"`
	IsTyping   *bool           `json:"is_typing"`
	Status     model.Status    `json:"status"`
	ElementID  string          `json:"element_id"`
	OpType     model.OpKind    `json:"op_type"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// Decode parses and validates one client message. Every failure wraps
// model.ErrMalformedMessage.
func Decode(raw []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	if err := in.Validate(); err != nil {
		return &in, err
	}
	return &in, nil
}

func (in *Inbound) Validate() error {
	if in.Type == "" {
		return malformed("missing type")
	}
	if in.Room == "" {
		return malformed("missing room")
	}
	switch in.Type {
	case JoinType, LeaveType:
	case CursorUpdateType:
		if in.X == nil || in.Y == nil {
			return malformed("cursor_update requires x and y")
		}
	case SelectionUpdateType:
		if in.ElementIDs == nil {
			return malformed("selection_update requires element_ids")
		}
	case TypingUpdateType:
		if in.IsTyping == nil {
			return malformed("typing_update requires is_typing")
		}
	case StatusUpdateType:
		if in.Status != model.StatusOnline && in.Status != model.StatusAway {
			return malformed("status must be online or away")
		}
	case ElementLockType, ElementUnlockType:
		if in.ElementID == "" {
			return malformed(in.Type + " requires element_id")
		}
	case ElementMutateType:
		if in.ElementID == "" {
			return malformed("element_mutate requires element_id")
		}
		if !in.OpType.Valid() {
			return malformed(fmt.Sprintf("unknown op_type %q", in.OpType))
		}
	default:
		return malformed(fmt.Sprintf("unknown message type %q", in.Type))
	}
	return nil
}

// ParseTimestamp reads an optional client timestamp given as an RFC3339
// string or as unix milliseconds. Anything else yields the zero time, which
// the engine replaces by the receipt time.
func ParseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			return fromMillis(ms)
		}
		return time.Time{}
	}
	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}
	}
	return fromMillis(ms)
}

func fromMillis(ms float64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(ms * 1000)).UTC()
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", model.ErrMalformedMessage, reason)
}
