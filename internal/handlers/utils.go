package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/perfect-api/apiserver/internal/apperr"
)

const maxBodyBytes = 1 << 20

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type dataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorBody is the nested error object of every failed response.
type ErrorBody struct {
	Message    string `json:"message"`
	Code       string `json:"code"`
	StatusCode int    `json:"statusCode"`
}

// ErrorResponse is the envelope of every failed response.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// WriteError renders a classified error without logging.
func WriteError(w http.ResponseWriter, appErr *apperr.Error) {
	writeJSON(w, appErr.Status, ErrorResponse{
		Success: false,
		Message: appErr.Message,
		Error: ErrorBody{
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.Status,
		},
	})
}

// writeAppError renders err. Unclassified errors are logged in full and
// reach the client only as a generic internal error.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr, classified := apperr.From(err)
	if !classified || appErr.Status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	if !classified {
		appErr = apperr.ErrInternal
	}
	WriteError(w, appErr)
}

// decodeJSON reads a bounded body holding exactly one JSON object with only
// known fields into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst validation.Validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid request body")
	}
	if err := dst.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var errs validation.Errors
	if errors.As(err, &errs) {
		return apperr.Validation(strings.TrimSuffix(errs.Error(), "."))
	}
	return apperr.Validation(err.Error())
}

// pathID returns the {id} URL parameter once it parses as a UUID.
func pathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := uuid.Parse(id); err != nil {
		return "", apperr.Validation("Invalid user id")
	}
	return id, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
