package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// error shape:
//
//	{"error": "not_found", "message": "profile not found"}
//
// Validation errors add the offending "field"; duplicate codes add the
// colliding "values".

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/auth"
	"github.com/sakif/tapcard/internal/service"
)

// maxJSONBody caps request bodies that are decoded as JSON.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string   `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string   `json:"message"`         // Human-readable description
	Field   string   `json:"field,omitempty"` // Set for validation errors
	Values  []string `json:"values,omitempty"`
}

// affectedResponse is what bulk admin operations answer.
type affectedResponse struct {
	Affected int  `json:"affected"`
	Success  bool `json:"success"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the body. Once Encode writes, any
// later header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent; all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status.
//
// The service layer knows nothing about HTTP. It returns apperror sentinels
// (possibly wrapped with %w) and errors.Is walks the chain to find them.
// InvalidCode is checked first: it must read as a plain 404 no matter why
// the code was refused.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrInvalidCode):
			status = http.StatusNotFound
			errorType = "invalid_code"
		case errors.Is(err, apperror.ErrDuplicateCode):
			status = http.StatusConflict
			errorType = "duplicate_code"
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		if status != http.StatusInternalServerError {
			// Message is all the client sees; ids stay in the log line.
			logger.Debug("request rejected", slog.String("error", err.Error()))
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: appErr.Message,
				Field:   appErr.Field,
				Values:  appErr.Values,
			})
			return
		}
	}

	// Unknown error: log the detail, never send it. It may contain SQL or
	// file paths.
	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads one JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "must be a positive integer")
	}
	return id, nil
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, "must be an integer")
	}
	return n, nil
}

// paging reads ?limit=&offset=.
func paging(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// requester is the caller RequireAuth put in the context. Routes using it are
// always mounted behind RequireAuth, so a missing identity is a zero value.
func requester(r *http.Request) service.Requester {
	id, _ := auth.IdentityFromContext(r.Context())
	return service.Requester{UserID: id.UserID, Role: id.Role}
}

// idsRequest is the body of every bulk code operation.
type idsRequest struct {
	IDs []int64 `json:"ids"`
}
