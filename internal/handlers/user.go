package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/perfect-api/apiserver/internal/apperr"
	"github.com/perfect-api/apiserver/internal/auth"
	"github.com/perfect-api/apiserver/internal/services"
	"github.com/perfect-api/apiserver/types"
)

// UserHandler provides the user management endpoints.
type UserHandler struct {
	users   *services.UserService
	exports *services.ExportService
	logger  *slog.Logger
}

// NewUserHandler constructs a UserHandler. exports may be nil when no object
// store is configured.
func NewUserHandler(users *services.UserService, exports *services.ExportService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, exports: exports, logger: logger}
}

// UserRouter registers user routes. Every route needs a bearer token; all but
// self-service routes also need the ADMIN role.
func UserRouter(r chi.Router, handler *UserHandler, authenticate, requireAdmin func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/save/regular", handler.CreateRegularUser)
		r.Patch("/change-password", handler.ChangeSelfPassword)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/save/admin", handler.CreateAdminUser)
			r.Get("/list", handler.ListUsers)
			r.Get("/list/{id}", handler.GetUser)
			r.Put("/update/{id}", handler.UpdateUser)
			r.Patch("/update-role/{id}", handler.UpdateUserRole)
			r.Delete("/remove/{id}", handler.RemoveUser)
			r.Get("/roles", handler.ListRoles)
			r.Post("/export", handler.ExportUsers)
		})
	})
}

type paginationResponse struct {
	Total       int `json:"total"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
}

type listResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Pagination paginationResponse `json:"pagination"`
	Data       []types.UserView   `json:"data"`
}

func (h *UserHandler) CreateAdminUser(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.users.CreateAdminUser)
}

func (h *UserHandler) CreateRegularUser(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.users.CreateRegularUser)
}

func (h *UserHandler) create(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID string, account services.Account) (services.Result, error)) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	actorID, _ := auth.UserIDFromContext(r.Context())
	result, err := fn(r.Context(), actorID, services.Account{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Success: true, Message: result.Message, Data: result.Data})
}

// ListUsers serves one page. Absent or malformed page and limit values fall
// back to the defaults; numeric ones are clamped.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, limit := services.NormalizePage(
		queryInt(query.Get("page"), services.DefaultPage),
		queryInt(query.Get("limit"), services.DefaultLimit),
	)

	filter := types.UserFilter{Name: strings.TrimSpace(query.Get("name"))}
	if raw := strings.TrimSpace(query.Get("role")); raw != "" {
		role, ok := types.ParseRole(raw)
		if !ok {
			writeAppError(w, r, h.logger, apperr.Validation("role: must be ADMIN or USER"))
			return
		}
		filter.Role = role
	}

	result, err := h.users.ListUsers(r.Context(), services.ListQuery{Page: page, Limit: limit, Filter: filter})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Success: true,
		Message: "Users listed successfully",
		Pagination: paginationResponse{
			Total:       result.Total,
			TotalPages:  result.TotalPages,
			CurrentPage: result.Page,
			Limit:       result.Limit,
		},
		Data: result.Users,
	})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	result, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Message: result.Message, Data: result.Data})
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	var req UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	actorID, _ := auth.UserIDFromContext(r.Context())
	result, err := h.users.UpdateUser(r.Context(), actorID, id, services.UserUpdate{Name: req.Name, Email: req.Email})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Message: result.Message, Data: result.Data})
}

// ChangeSelfPassword changes the password of the authenticated caller.
func (h *UserHandler) ChangeSelfPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, apperr.ErrTokenInvalid)
		return
	}
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	result, err := h.users.ChangeSelfPassword(r.Context(), userID, req.Password)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Message: result.Message, Data: result.Data})
}

func (h *UserHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	var req UpdateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	actorID, _ := auth.UserIDFromContext(r.Context())
	result, err := h.users.UpdateUserRole(r.Context(), actorID, id, services.RoleChange{PermissionID: req.RoleID, Role: req.Role})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Message: result.Message, Data: result.Data})
}

func (h *UserHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	actorID, _ := auth.UserIDFromContext(r.Context())
	message, err := h.users.RemoveUser(r.Context(), actorID, id)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: message})
}

func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.users.ListRoles(r.Context())
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Message: "Roles listed successfully", Data: roles})
}

// ExportUsers uploads the user directory and returns where it landed.
func (h *UserHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		WriteError(w, apperr.ErrExportDisabled)
		return
	}
	result, err := h.exports.ExportUsers(r.Context())
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Success: true, Message: "Users exported successfully", Data: result})
}

// queryInt parses a numeric query value. Out of range numbers saturate.
func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fallback
	}
	return n
}
