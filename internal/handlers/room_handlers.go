package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chat-server/internal/auth"
	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

type RoomHandlers struct {
	rooms       database.RoomRepository
	messages    database.MessageRepository
	authService *auth.Service
}

func NewRoomHandlers(rooms database.RoomRepository, messages database.MessageRepository, authService *auth.Service) *RoomHandlers {
	return &RoomHandlers{
		rooms:       rooms,
		messages:    messages,
		authService: authService,
	}
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListRooms(r.Context())
	if err != nil {
		logger.Error("Room list error: %v", err)
		http.Error(w, "error listing rooms", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rooms)
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, err := h.userFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "room name is required", http.StatusBadRequest)
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), &req, user.ID)
	if err != nil {
		logger.Error("Room create error: %v", err)
		http.Error(w, "error creating room", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(room)
}

// RoomMessages serves a history page for a room: ?limit=N&before=<unix>.
func (h *RoomHandlers) RoomMessages(w http.ResponseWriter, r *http.Request, roomID string) {
	if _, err := h.userFromRequest(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := h.rooms.FindRoomByID(r.Context(), roomID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		logger.Error("Room lookup error: %v", err)
		http.Error(w, "error loading room", http.StatusInternalServerError)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			before = time.Unix(ts, 0).UTC()
		}
	}

	messages, err := h.messages.QueryRoomMessages(r.Context(), roomID, limit, before)
	if err != nil {
		logger.Error("History query error for room %s: %v", roomID, err)
		http.Error(w, "error loading messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

func (h *RoomHandlers) userFromRequest(r *http.Request) (*models.User, error) {
	tokenStr := r.Header.Get("Authorization")
	if len(tokenStr) > 7 && tokenStr[:7] == "Bearer " {
		tokenStr = tokenStr[7:]
	}
	if tokenStr == "" {
		return nil, errors.New("missing token")
	}
	return h.authService.GetUserFromToken(r.Context(), tokenStr)
}
