package router

import (
	"net/http"

	handler "collabcore/internal/operation"
	"collabcore/internal/operation/service"
	"collabcore/middleware"
	"collabcore/socket"

	"github.com/gorilla/mux"
)

func Setup(hub *socket.Hub) http.Handler {
	r := mux.NewRouter()
	auth := middleware.AuthMiddleware

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := middleware.IdentityFrom(r.Context())
		socket.ServeWs(hub, w, r, identity)
	})
	r.Handle("/ws", auth(wsHandler))

	// Diagnostics
	opHandler := handler.NewOperationHandler(service.NewOperationService(hub))

	r.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	r.Handle("/api/rooms", auth(http.HandlerFunc(opHandler.GetStats))).Methods(http.MethodGet)
	r.Handle("/api/rooms/{room}/operations", auth(http.HandlerFunc(opHandler.GetHistory))).Methods(http.MethodGet)
	r.Handle("/api/rooms/{room}/operations", auth(http.HandlerFunc(opHandler.ApplyOperation))).Methods(http.MethodPost)
	r.Handle("/api/rooms/{room}/presence", auth(http.HandlerFunc(opHandler.GetPresence))).Methods(http.MethodGet)

	return middleware.CORSMiddleware(r)
}
