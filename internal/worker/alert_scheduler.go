package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/services"
)

// Refresher regenerates the alerts of one owner.
type Refresher interface {
	RefreshAlerts(ctx context.Context, ownerID string, months int) (services.RefreshResult, error)
}

// OwnerLister returns every owner with stored data.
type OwnerLister interface {
	Owners(ctx context.Context) ([]string, error)
}

const defaultConcurrency = 4

// AlertScheduler runs alert regeneration for a set of owners. It is driven
// by a cron schedule in cmd/alert-worker.
type AlertScheduler struct {
	refresher   Refresher
	owners      OwnerLister
	fixed       []string
	months      int
	concurrency int
}

// NewAlertScheduler refreshes the fixed owners when given, otherwise every
// owner the lister returns.
func NewAlertScheduler(refresher Refresher, owners OwnerLister, fixed []string, months int) *AlertScheduler {
	return &AlertScheduler{
		refresher:   refresher,
		owners:      owners,
		fixed:       fixed,
		months:      months,
		concurrency: defaultConcurrency,
	}
}

// RunStats summarises one scheduled run.
type RunStats struct {
	Owners  int
	Created int
	Failed  int
}

// RunOnce refreshes every owner concurrently. One owner's failure does not
// stop the others; the run only errors when the owner list is unavailable.
func (s *AlertScheduler) RunOnce(ctx context.Context) (RunStats, error) {
	owners := s.fixed
	if len(owners) == 0 {
		var err error
		if owners, err = s.owners.Owners(ctx); err != nil {
			return RunStats{}, fmt.Errorf("list owners: %w", err)
		}
	}

	var created, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, owner := range owners {
		owner := owner
		g.Go(func() error {
			res, err := s.refresher.RefreshAlerts(gctx, owner, s.months)
			if err != nil {
				failed.Add(1)
				slog.ErrorContext(gctx, "Scheduled alert refresh failed",
					"owner_id", owner, "error", err)
				return nil
			}
			created.Add(int64(len(res.Created)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RunStats{}, err
	}

	stats := RunStats{Owners: len(owners), Created: int(created.Load()), Failed: int(failed.Load())}
	slog.InfoContext(ctx, "Scheduled alert refresh complete",
		"owners", stats.Owners,
		"alerts_created", stats.Created,
		"failed", stats.Failed)
	return stats, nil
}
