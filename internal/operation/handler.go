package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"collabcore/internal/collab/model"
	opmodel "collabcore/internal/operation/model"
	"collabcore/internal/operation/service"
	"collabcore/middleware"
	"collabcore/pkg/logger"

	"github.com/gorilla/mux"
)

type OperationHandler struct {
	Service *service.OperationService
}

func NewOperationHandler(svc *service.OperationService) *OperationHandler {
	return &OperationHandler{Service: svc}
}

func (h *OperationHandler) ApplyOperation(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	var req opmodel.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	actor, _ := middleware.IdentityFrom(r.Context())
	resp, err := h.Service.Apply(roomID, actor.UserID, req)
	if err != nil {
		if errors.Is(err, model.ErrMalformedMessage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Sugar.Errorf("Handler: Failed to apply operation in room %s: %v", roomID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (h *OperationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	limit, err := intParam(r, "limit")
	if err != nil {
		http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		http.Error(w, "Invalid offset parameter", http.StatusBadRequest)
		return
	}
	writeJSON(w, h.Service.History(roomID, limit, offset))
}

func (h *OperationHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Service.Presence(mux.Vars(r)["room"]))
}

func (h *OperationHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Service.Stats())
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func intParam(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Error encoding response: %v", err)
	}
}
