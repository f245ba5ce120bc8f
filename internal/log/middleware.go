package log

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"cashflow/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// Middleware creates HTTP middleware that adds a logger to the request context
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), LoggerContextKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// RequestIDMiddleware adds the request id to the context logger. It must run
// after Middleware and after whatever assigns the id.
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := extractRequestID(r)
			if requestID == "" {
				next.ServeHTTP(w, r)
				return
			}
			logger := FromContext(r.Context()).With(FieldRequestID, requestID)
			ctx := context.WithValue(r.Context(), LoggerContextKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogAlertsRefreshed logs the outcome of one alert regeneration.
func (sl *StructuredLogger) LogAlertsRefreshed(ctx context.Context, ownerID string, horizon int, alerts []core.Alert, created int) {
	fields := NewFields().
		WithForecast(ownerID, horizon).
		WithOperation(OpRegenerate).
		WithComponent(ComponentAlerts).
		ToSlice()
	fields = append(fields, "alerts", len(alerts), "created", created)

	sl.logger.Logger.InfoContext(ctx, "Alerts refreshed", fields...)
}

// LogAlertRaised logs one newly inserted alert.
func (sl *StructuredLogger) LogAlertRaised(ctx context.Context, a core.Alert) {
	fields := NewFields().
		WithOwner(a.OwnerID).
		WithAlert(string(a.Type), string(a.Severity), a.PeriodLabel, a.Amount).
		WithOperation(OpCreate).
		WithComponent(ComponentAlerts)

	sl.logger.Logger.InfoContext(ctx, "Alert raised", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err, ErrorType(err)).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}

// ErrorType classifies err by the domain sentinel it wraps.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsValidation(err):
		return ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrConflict):
		return ErrorTypeConflict
	case errors.Is(err, core.ErrDegradedData):
		return ErrorTypeDegraded
	case errors.Is(err, core.ErrIntegrity):
		return ErrorTypeDatabase
	default:
		return ErrorTypeInternal
	}
}
