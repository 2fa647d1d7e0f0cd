package handlers

import (
	"encoding/json"
	"net/http"

	"chat-server/internal/auth"
	"chat-server/internal/models"
	"chat-server/internal/session"
	"chat-server/pkg/logger"
)

type AuthHandlers struct {
	authService *auth.Service
	sessions    *session.Store
}

func NewAuthHandlers(authService *auth.Service, sessions *session.Store) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		sessions:    sessions,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	response, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		logger.Error("Registration error: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		logger.Error("Login error: %v", err)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	sessionID, err := h.sessions.Create(r.Context(), response.User.ID, response.User.Username)
	if err != nil {
		logger.Error("Session create error for user %s: %v", response.User.ID, err)
	} else {
		response.SessionID = sessionID
	}
	if err := h.sessions.SetUserOnline(r.Context(), response.User.ID); err != nil {
		logger.Error("Online flag error for user %s: %v", response.User.ID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		logger.Error("Session lookup error: %v", err)
		http.Error(w, "session store unavailable", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		logger.Error("Session delete error: %v", err)
	}
	if err := h.sessions.SetUserOffline(r.Context(), sess.UserID); err != nil {
		logger.Error("Offline flag error for user %s: %v", sess.UserID, err)
	}

	w.WriteHeader(http.StatusNoContent)
}
