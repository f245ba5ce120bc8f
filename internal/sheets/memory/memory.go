package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cashflow/internal/forecast"
	"cashflow/internal/sheets"
)

// Exporter keeps exported rows in memory. It backs local runs without
// Google credentials and the worker tests.
type Exporter struct {
	mu   sync.Mutex
	rows [][]string
	now  func() time.Time
}

var _ sheets.ForecastExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{now: time.Now}
}

// ExportForecast appends the projection rows and returns a synthetic range.
func (e *Exporter) ExportForecast(_ context.Context, p forecast.Projection) (string, error) {
	if p.OwnerID == "" {
		return "", fmt.Errorf("export forecast: owner is required")
	}
	rows := sheets.Rows(p, e.now())

	e.mu.Lock()
	defer e.mu.Unlock()
	first := len(e.rows) + 1
	e.rows = append(e.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", first, len(e.rows)), nil
}

// Rows returns a copy of everything exported so far.
func (e *Exporter) Rows() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.rows))
	for i, r := range e.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
