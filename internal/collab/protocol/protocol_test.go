package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"collabcore/internal/collab/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidMessages(t *testing.T) {
	cases := map[string]string{
		"join":      `{"type":"join","room":"d1","user_id":"u1","username":"Ann"}`,
		"leave":     `{"type":"leave","room":"d1"}`,
		"cursor":    `{"type":"cursor_update","room":"d1","x":0,"y":12.5}`,
		"selection": `{"type":"selection_update","room":"d1","element_ids":[]}`,
		"typing":    `{"type":"typing_update","room":"d1","is_typing":false}`,
		"status":    `{"type":"status_update","room":"d1","status":"away"}`,
		"lock":      `{"type":"element_lock","room":"d1","element_id":"E7"}`,
		"mutate":    `{"type":"element_mutate","room":"d1","element_id":"S1","op_type":"move","old_value":{"x":0},"new_value":{"x":1}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			in, err := Decode([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, "d1", in.Room)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"type":`,
		"no type":          `{"room":"d1"}`,
		"no room":          `{"type":"join"}`,
		"unknown type":     `{"type":"dance","room":"d1"}`,
		"cursor missing y": `{"type":"cursor_update","room":"d1","x":1}`,
		"selection nil":    `{"type":"selection_update","room":"d1"}`,
		"typing missing":   `{"type":"typing_update","room":"d1"}`,
		"bad status":       `{"type":"status_update","room":"d1","status":"offline"}`,
		"lock no element":  `{"type":"element_lock","room":"d1"}`,
		"bad op":           `{"type":"element_mutate","room":"d1","element_id":"S1","op_type":"rotate"}`,
		"no element":       `{"type":"element_mutate","room":"d1","op_type":"move"}`,
		"wrong x type":     `{"type":"cursor_update","room":"d1","x":"left","y":1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrMalformedMessage)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ref := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	assert.True(t, ParseTimestamp(nil).IsZero())
	assert.True(t, ParseTimestamp(json.RawMessage(`null`)).IsZero())
	assert.True(t, ParseTimestamp(json.RawMessage(`"yesterday"`)).IsZero())
	assert.True(t, ParseTimestamp(json.RawMessage(`-10`)).IsZero())
	assert.True(t, ParseTimestamp(json.RawMessage(`{}`)).IsZero())

	assert.True(t, ref.Equal(ParseTimestamp(json.RawMessage(`"2026-10-17T09:30:00Z"`))))
	assert.True(t, ref.Equal(ParseTimestamp(json.RawMessage(`1792229400000`))))
	assert.True(t, ref.Add(10*time.Millisecond).Equal(ParseTimestamp(json.RawMessage(`"1792229400010"`))))
}

func TestEventsEncodeZeroValues(t *testing.T) {
	raw, err := json.Marshal(ElementUpdateResolvedEvent{Type: ElementUpdateResolvedType, ElementID: "S1"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"resolved_by_ot":false`)

	raw, err = json.Marshal(CursorEvent{Type: CursorMovedType})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"x":0`)
}
