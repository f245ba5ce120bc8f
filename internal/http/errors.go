package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
)

type errorResponse struct {
	Error         string `json:"error"`
	Field         string `json:"field,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// statusFor maps domain errors to HTTP status codes. Zero means internal.
func statusFor(err error) int {
	switch {
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrDegradedData):
		return http.StatusServiceUnavailable
	default:
		return 0
	}
}

// writeError renders err. Unclassified errors are logged with a fresh
// correlation id and only that id reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := applog.FromContext(r.Context())
	status := statusFor(err)

	switch status {
	case http.StatusUnprocessableEntity:
		resp := errorResponse{Error: err.Error()}
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			resp.Error = ve.Message
			resp.Field = ve.Field
		}
		writeJSON(w, status, resp)
	case http.StatusNotFound:
		writeJSON(w, status, errorResponse{Error: "not found"})
	case http.StatusConflict:
		logger.WarnContext(r.Context(), "Request conflicted", applog.FieldOperation, op, applog.FieldError, err)
		writeJSON(w, status, errorResponse{Error: "conflicting update, retry the request"})
	case http.StatusServiceUnavailable:
		logger.WarnContext(r.Context(), "Exchange rates unavailable", applog.FieldOperation, op, applog.FieldError, err)
		writeJSON(w, status, errorResponse{Error: "exchange rates unavailable"})
	default:
		correlationID := uuid.NewString()
		fields := applog.NewFields().
			WithCorrelationID(correlationID).
			WithOwner(ownerFrom(r)).
			WithHTTPRequest(r.Method, r.URL.Path)
		applog.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, fields)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", CorrelationID: correlationID})
	}
}
