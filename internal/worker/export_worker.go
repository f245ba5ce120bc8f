package worker

import (
	"context"
	"fmt"
	"log/slog"

	"cashflow/internal/amqp"
	"cashflow/internal/forecast"
	"cashflow/internal/sheets"
)

// Projector builds monthly projections.
type Projector interface {
	Project(ctx context.Context, ownerID string, months int) (forecast.Projection, error)
}

// ExportWorker writes refreshed forecasts to a spreadsheet.
type ExportWorker struct {
	projector Projector
	exporter  sheets.ForecastExporter
}

func NewExportWorker(projector Projector, exporter sheets.ForecastExporter) *ExportWorker {
	return &ExportWorker{projector: projector, exporter: exporter}
}

// HandleForecastRefreshed re-projects the owner's forecast with the
// announced horizon and exports it. The projection is recomputed rather
// than carried in the message so the export reflects current data.
func (w *ExportWorker) HandleForecastRefreshed(ctx context.Context, msg *amqp.ForecastRefreshedMessage) error {
	slog.InfoContext(ctx, "Processing forecast refreshed message",
		"owner_id", msg.OwnerID,
		"horizon", msg.Horizon)

	return w.export(ctx, msg.OwnerID, msg.Horizon)
}

// ExportAll exports every owner once. Used at startup to cover messages
// missed while the worker was down. Failures are logged and counted.
func (w *ExportWorker) ExportAll(ctx context.Context, owners []string, months int) error {
	if len(owners) == 0 {
		slog.InfoContext(ctx, "No owners to export on startup")
		return nil
	}

	successCount := 0
	errorCount := 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.export(ctx, owner, months); err != nil {
			slog.ErrorContext(ctx, "Failed to export forecast during startup",
				"owner_id", owner, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(owners),
		"exported", successCount,
		"errors", errorCount)
	return nil
}

func (w *ExportWorker) export(ctx context.Context, ownerID string, months int) error {
	proj, err := w.projector.Project(ctx, ownerID, months)
	if err != nil {
		return fmt.Errorf("project forecast: %w", err)
	}

	ref, err := w.exporter.ExportForecast(ctx, proj)
	if err != nil {
		return fmt.Errorf("export forecast: %w", err)
	}

	slog.InfoContext(ctx, "Successfully exported forecast",
		"owner_id", ownerID,
		"sheets_ref", ref,
		"periods", len(proj.Periods),
		"rates_stale", proj.RatesStale)
	return nil
}
