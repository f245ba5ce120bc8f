package sheets

import (
	"context"

	"cashflow/internal/forecast"
)

// Ports for outbound adapters.
type (
	// ForecastExporter writes one row per forecast period to an external
	// spreadsheet and returns a reference to the written range.
	ForecastExporter interface {
		ExportForecast(ctx context.Context, p forecast.Projection) (rangeRef string, err error)
	}
)

// Header is the column layout shared by every exporter.
var Header = []string{
	"Exported At", "Owner", "Period", "Opening", "Income", "Expenses",
	"Net", "Closing", "Currency", "Rates Stale",
}
