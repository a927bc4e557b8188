package store

import (
	"encoding/json"
	"time"
)

// Element is one row of diagram_elements: the last authoritative value of
// a diagram element as handed off by the collaboration core.
type Element struct {
	DiagramID string          `json:"diagram_id"`
	ElementID string          `json:"element_id"`
	Value     json.RawMessage `json:"value"`
	OpType    string          `json:"op_type"`
	UpdatedBy string          `json:"updated_by"`
	UpdatedAt time.Time       `json:"updated_at"`
	Deleted   bool            `json:"deleted"`
}
