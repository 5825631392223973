package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"example.com/killerkiss/internal/auth"
)

type AuthHandler struct {
	Auth *auth.Service
	Log  *slog.Logger
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Name        string `json:"name"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	token, a, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err != nil {
		h.Log.Error("login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{AccessToken: token, Name: a.Name})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := AdminFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth context")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        claims.AdminID,
		"name":      claims.Name,
		"expiresAt": claims.ExpiresAt,
	})
}
