package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cashflow/internal/core"
)

const maxBodyBytes = 64 << 10

func ownerFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OwnerHeader))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
// Malformed bodies become validation errors.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("body", "request body is required")
		}
		return core.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	if dec.More() {
		return core.NewValidationError("body", "request body must contain a single JSON object")
	}
	return nil
}

// parseHorizon reads an integer query parameter, returning def when absent.
// Range checks are left to the engine.
func parseHorizon(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewValidationError(name, fmt.Sprintf("%s must be an integer, got %q", name, v))
	}
	return n, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty input yields the zero time.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, core.NewValidationError(field, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s))
	}
	return t.UTC(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
