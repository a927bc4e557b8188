package service

import (
	"collabcore/internal/collab/model"
	"collabcore/internal/collab/protocol"
	opmodel "collabcore/internal/operation/model"
	"collabcore/socket"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

type OperationService struct {
	Hub *socket.Hub
}

func NewOperationService(hub *socket.Hub) *OperationService {
	return &OperationService{Hub: hub}
}

// Apply submits one operation to roomID. actor is used when the request
// names no user.
func (s *OperationService) Apply(roomID, actor string, req opmodel.ApplyRequest) (*opmodel.ApplyResponse, error) {
	userID := req.UserID
	if userID == "" {
		userID = actor
	}
	res, err := s.Hub.ApplyOperation(model.Operation{
		Room:      roomID,
		UserID:    userID,
		ElementID: req.ElementID,
		Kind:      model.OpKind(req.OpType),
		OldValue:  req.OldValue,
		NewValue:  req.NewValue,
		Timestamp: protocol.ParseTimestamp(req.Timestamp),
	})
	if err != nil {
		return nil, err
	}
	return &opmodel.ApplyResponse{
		Success:      true,
		Transformed:  res.Operation.Transformed,
		ResolvedByOT: res.ResolvedByOT,
		FinalValue:   res.State.Value,
		OperationID:  res.Operation.ID,
	}, nil
}

func (s *OperationService) History(roomID string, limit, offset int) opmodel.HistoryResponse {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	ops, total := s.Hub.History(roomID, limit, offset)
	return opmodel.HistoryResponse{Room: roomID, Total: total, Operations: ops}
}

func (s *OperationService) Presence(roomID string) opmodel.PresenceResponse {
	return opmodel.PresenceResponse{Room: roomID, Presences: s.Hub.Presences(roomID)}
}

func (s *OperationService) Stats() opmodel.StatsResponse {
	rooms, conns := s.Hub.Stats()
	return opmodel.StatsResponse{Rooms: rooms, Connections: conns}
}
