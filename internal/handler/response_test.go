package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tapcard/internal/apperror"
)

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		err       error
		status    int
		errorType string
	}{
		{"invalid code", apperror.InvalidCode(), http.StatusNotFound, "invalid_code"},
		{"wrapped invalid code", fmt.Errorf("claiming: %w", apperror.InvalidCode()), http.StatusNotFound, "invalid_code"},
		{"duplicate codes", apperror.DuplicateCodes([]string{"A", "B"}), http.StatusConflict, "duplicate_code"},
		{"validation", apperror.ValidationFailed("firstName", "first name is required"), http.StatusBadRequest, "validation_error"},
		{"not found", apperror.NotFound("profile", "9"), http.StatusNotFound, "not_found"},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden, "forbidden"},
		{"conflict", apperror.Conflict("user", "a@b.c"), http.StatusConflict, "conflict"},
		{"plain error", errors.New("sqlite: disk I/O error"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, logger, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.errorType, body.Error)
			assert.NotContains(t, body.Message, "sqlite")
		})
	}
}

func TestWriteError_CarriesFieldAndValues(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	writeError(rec, logger, apperror.DuplicateCodes([]string{"AAA", "BBB"}))
	assert.JSONEq(t,
		`{"error":"duplicate_code","message":"duplicate codes: AAA, BBB","field":"codes","values":["AAA","BBB"]}`,
		rec.Body.String())

	rec = httptest.NewRecorder()
	writeError(rec, logger, apperror.ValidationFailed("theme", "unknown theme"))
	assert.JSONEq(t, `{"error":"validation_error","message":"unknown theme","field":"theme"}`, rec.Body.String())
}

func TestWriteError_HidesIdentifiers(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rec := httptest.NewRecorder()
	writeError(rec, logger, fmt.Errorf("loading: %w", apperror.NotFound("profile", "12")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"profile not found"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "id 12")

	rec = httptest.NewRecorder()
	writeError(rec, logger, apperror.Conflict("user", "someone@example.com"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotContains(t, rec.Body.String(), "someone@example.com")
	assert.Contains(t, logs.String(), "someone@example.com")
}

func TestWantsJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/c/X", nil)
	assert.False(t, wantsJSON(r))
	r.Header.Set("Accept", "text/html, application/json;q=0.9")
	assert.True(t, wantsJSON(r))
}
