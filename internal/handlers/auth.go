package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/perfect-api/apiserver/internal/apperr"
	"github.com/perfect-api/apiserver/internal/auth"
	"github.com/perfect-api/apiserver/internal/services"
)

// AuthObserver counts authentication outcomes.
type AuthObserver interface {
	AuthOutcome(operation, outcome string)
}

// AuthHandler provides signup, login and caller lookup.
type AuthHandler struct {
	service  *services.AuthService
	observer AuthObserver
	logger   *slog.Logger
}

func NewAuthHandler(service *services.AuthService, observer AuthObserver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, observer: observer, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authenticate func(http.Handler) http.Handler) {
	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.With(authenticate).Get("/me", handler.Me)
}

type loginResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Token   string `json:"token"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.observe("signup", err)
		writeAppError(w, r, h.logger, err)
		return
	}

	view, err := h.service.Signup(r.Context(), services.Account{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	h.observe("signup", err)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{
		Success: true,
		Message: "User signed up successfully",
		Data:    view,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.observe("login", err)
		writeAppError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	h.observe("login", err)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		UserID:  result.UserID,
		Token:   result.Token,
	})
}

// Me returns the authenticated caller.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, apperr.ErrTokenInvalid)
		return
	}
	view, err := h.service.Me(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{
		Success: true,
		Message: "User found successfully",
		Data:    view,
	})
}

func (h *AuthHandler) observe(operation string, err error) {
	if h.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			outcome = strings.ToLower(appErr.Code)
		}
	}
	h.observer.AuthOutcome(operation, outcome)
}
