package amqp

import (
	"encoding/json"
	"time"

	"cashflow/internal/core"
)

// Routing keys of the events published on the exchange.
const (
	RoutingForecastRefreshed = "forecast.refreshed"
	RoutingAlertRaised       = "alert.raised"
)

// ForecastRefreshedMessage announces that alerts were regenerated from a new
// projection. Consumers re-read the projection themselves.
type ForecastRefreshedMessage struct {
	OwnerID            string    `json:"owner_id"`
	Horizon            int       `json:"horizon"`
	HasNegativeMonths  bool      `json:"has_negative_months"`
	FirstNegativeMonth string    `json:"first_negative_month,omitempty"`
	EndBalance         string    `json:"end_balance"`
	Currency           string    `json:"currency"`
	Timestamp          time.Time `json:"timestamp"`
}

func NewForecastRefreshedMessage(ownerID string, horizon int) *ForecastRefreshedMessage {
	return &ForecastRefreshedMessage{
		OwnerID:   ownerID,
		Horizon:   horizon,
		Timestamp: time.Now(),
	}
}

func (m *ForecastRefreshedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ForecastRefreshedMessageFromJSON(data []byte) (*ForecastRefreshedMessage, error) {
	var msg ForecastRefreshedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AlertRaisedMessage is published once per newly inserted alert.
type AlertRaisedMessage struct {
	OwnerID   string         `json:"owner_id"`
	AlertID   string         `json:"alert_id"`
	Type      core.AlertType `json:"type"`
	Severity  core.Severity  `json:"severity"`
	Period    string         `json:"period"`
	Message   string         `json:"message"`
	Amount    string         `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewAlertRaisedMessage(a core.Alert) *AlertRaisedMessage {
	return &AlertRaisedMessage{
		OwnerID:   a.OwnerID,
		AlertID:   a.ID,
		Type:      a.Type,
		Severity:  a.Severity,
		Period:    a.PeriodLabel,
		Message:   a.Message,
		Amount:    a.Amount.StringFixed(core.MoneyPlaces),
		Timestamp: time.Now(),
	}
}

func (m *AlertRaisedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AlertRaisedMessageFromJSON(data []byte) (*AlertRaisedMessage, error) {
	var msg AlertRaisedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
