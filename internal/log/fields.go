package log

import "github.com/shopspring/decimal"

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldOwnerID       = "owner_id"
	FieldPeriod        = "period"
	FieldHorizon       = "horizon"
	FieldAlertType     = "alert_type"
	FieldSeverity      = "severity"
	FieldAmount        = "amount"
	FieldCurrency      = "currency"
	FieldLoanID        = "loan_id"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentForecast  = "forecast"
	ComponentAlerts    = "alerts"
	ComponentLedger    = "ledger"
	ComponentCurrency  = "currency"
	ComponentLoans     = "loans"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpProject    = "project"
	OpSummarize  = "summarize"
	OpRegenerate = "regenerate"
	OpRead       = "read"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpList       = "list"
	OpCreate     = "create"
	OpPayment    = "record_payment"
	OpExport     = "export"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeDegraded      = "degraded_data"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

func (f LogFields) WithCorrelationID(id string) LogFields {
	f[FieldCorrelationID] = id
	return f
}

// WithError adds the error message and, when known, its category.
func (f LogFields) WithError(err error, errorType string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	if errorType != "" {
		f[FieldErrorType] = errorType
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithOwner(ownerID string) LogFields {
	f[FieldOwnerID] = ownerID
	return f
}

// WithForecast adds projection fields.
func (f LogFields) WithForecast(ownerID string, horizon int) LogFields {
	f[FieldOwnerID] = ownerID
	f[FieldHorizon] = horizon
	return f
}

// WithAlert adds the identifying fields of an alert.
func (f LogFields) WithAlert(alertType, severity, period string, amount decimal.Decimal) LogFields {
	f[FieldAlertType] = alertType
	f[FieldSeverity] = severity
	f[FieldPeriod] = period
	f[FieldAmount] = amount.StringFixed(2)
	return f
}

func (f LogFields) WithHTTPRequest(method, path string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
