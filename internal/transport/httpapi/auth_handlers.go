package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type authService interface {
	Login(ctx context.Context, email, password string) (string, error)
	CreateAdmin(ctx context.Context, email, password string) error
}

type AuthHandler struct {
	svc authService
	log *slog.Logger
}

func NewAuthHandler(svc authService, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		svc: svc,
		log: log.With(slog.String("component", "httpapi.auth")),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type createAdminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if err := h.svc.CreateAdmin(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, h.log, err)
		return
	}

	h.log.Info("admin created", slog.String("email", req.Email))
	w.WriteHeader(http.StatusCreated)
}
