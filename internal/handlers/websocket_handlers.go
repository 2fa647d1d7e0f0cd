package handlers

import (
	"encoding/json"
	"net/http"

	"chat-server/internal/auth"
	ws "chat-server/internal/websocket"
	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	core        *ws.Core
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, core *ws.Core) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		core:        core,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket authenticates the token from the query string, upgrades the
// connection and hands it to the core. Room membership is negotiated over the
// socket itself via join_room commands.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserFromToken(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	logger.Debug("WebSocket connection opened for user %s", user.Username)
	h.core.Accept(conn)
}

// Health reports liveness plus the core's observability hooks: the supported
// command kinds and the member count of any room passed as ?room=.
func (h *WebSocketHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "ok",
		"commands": h.core.SupportedCommandKinds(),
	}
	if roomID := r.URL.Query().Get("room"); roomID != "" {
		status["room"] = roomID
		status["members"] = h.core.RoomMemberCount(roomID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
