package model

import (
	"encoding/json"

	collab "collabcore/internal/collab/model"
)

type ApplyRequest struct {
	UserID    string          `json:"user_id"`
	ElementID string          `json:"element_id"`
	OpType    string          `json:"op_type"`
	OldValue  json.RawMessage `json:"old_value"`
	NewValue  json.RawMessage `json:"new_value"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type ApplyResponse struct {
	Success      bool            `json:"success"`
	Transformed  bool            `json:"transformed"`
	ResolvedByOT bool            `json:"resolved_by_ot"`
	FinalValue   json.RawMessage `json:"final_value"`
	OperationID  string          `json:"operation_id"`
}

type HistoryResponse struct {
	Room       string            `json:"room"`
	Total      int               `json:"total"`
	Operations []collab.Operation `json:"operations"`
}

type PresenceResponse struct {
	Room      string            `json:"room"`
	Presences []collab.Presence `json:"presences"`
}

type StatsResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}
