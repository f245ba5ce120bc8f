package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

const (
	AlertNegativeCashflow AlertType = "negative_cashflow"
	AlertHighExpenses     AlertType = "high_expenses"
)

type (
	Severity  string
	AlertType string
)

// Alert is a stored warning about one forecast period. (OwnerID, Type,
// PeriodLabel) identifies it across regenerations.
type Alert struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Type        AlertType       `json:"type"`
	Severity    Severity        `json:"severity"`
	PeriodLabel string          `json:"period"`
	Message     string          `json:"message"`
	Amount      decimal.Decimal `json:"amount"`
	IsRead      bool            `json:"is_read"`
	IsDismissed bool            `json:"is_dismissed"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Key returns the deterministic upsert key of the alert.
func (a Alert) Key() string {
	return a.OwnerID + "|" + string(a.Type) + "|" + a.PeriodLabel
}
