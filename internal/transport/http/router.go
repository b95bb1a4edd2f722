package http

import (
	"encoding/json"
	"net/http"

	"quizly-game-service/internal/app"
)

type healthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// HealthHandler reports liveness and the number of registered rooms.
func HealthHandler(service *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Rooms: service.Rooms()})
	}
}

// NewRouter mounts the websocket endpoint and health check.
func NewRouter(service *app.QuizService, ws *WSHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler(service))
	mux.HandleFunc("/ws", ws.ServeWS)
	return mux
}
