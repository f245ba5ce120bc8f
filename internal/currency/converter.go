package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"cashflow/internal/cache"
	"cashflow/internal/core"
)

// DefaultFetchTimeout bounds a single provider round trip.
const DefaultFetchTimeout = 5 * time.Second

// StaleRetryAfter is how long a stale fallback table is served before the
// provider is tried again.
const StaleRetryAfter = 5 * time.Minute

// RateStore persists the last fetched table so a restart can still serve
// stale rates while the provider is down.
type RateStore interface {
	SaveRates(ctx context.Context, t RateTable) error
	LatestRates(ctx context.Context, base string) (RateTable, error)
}

// Converter serves one rate table per calendar day and falls back to the
// last known table, flagged stale, when the provider is unreachable.
type Converter struct {
	provider RateProvider
	store    RateStore
	base     string
	timeout  time.Duration
	now      func() time.Time

	daily *cache.LRUCache[RateTable]
	group singleflight.Group

	mu        sync.RWMutex
	lastKnown *RateTable
}

type Option func(*Converter)

func WithStore(s RateStore) Option { return func(c *Converter) { c.store = s } }

func WithTimeout(d time.Duration) Option {
	return func(c *Converter) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(c *Converter) { c.now = now } }

func NewConverter(provider RateProvider, base string, opts ...Option) *Converter {
	c := &Converter{
		provider: provider,
		base:     strings.ToUpper(base),
		timeout:  DefaultFetchTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.daily = cache.NewLRUCache[RateTable](8, 24*time.Hour).WithClock(c.now)
	return c
}

// Cache exposes the daily table cache for registration with a cache.Manager.
func (c *Converter) Cache() cache.Cleaner { return c.daily }

// Base is the currency rates are requested in.
func (c *Converter) Base() string { return c.base }

func (c *Converter) dayKey() string {
	return c.base + "|" + c.now().UTC().Format("2006-01-02")
}

// Rates returns today's table, fetching it at most once per day.
func (c *Converter) Rates(ctx context.Context) (RateTable, error) {
	key := c.dayKey()
	if t, ok := c.daily.Get(key); ok {
		return t, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if t, ok := c.daily.Get(key); ok {
			return t, nil
		}
		return c.fetch(ctx, key)
	})
	if err != nil {
		return RateTable{}, err
	}
	return v.(RateTable), nil
}

func (c *Converter) fetch(ctx context.Context, key string) (RateTable, error) {
	if c.provider == nil {
		return c.fallback(ctx, errors.New("no rate provider configured"))
	}

	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	t, err := c.provider.FetchRates(fctx, c.base)
	if err != nil {
		slog.WarnContext(ctx, "Exchange rate fetch failed", "base", c.base, "error", err)
		stale, ferr := c.fallback(ctx, err)
		if ferr != nil {
			return RateTable{}, ferr
		}
		c.daily.SetWithTTL(key, stale, StaleRetryAfter)
		return stale, nil
	}
	if t.AsOf.IsZero() {
		t.AsOf = c.now().UTC()
	}
	t.Stale = false

	c.daily.Set(key, t)
	c.mu.Lock()
	snapshot := t.clone()
	c.lastKnown = &snapshot
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveRates(ctx, t); err != nil {
			slog.WarnContext(ctx, "Failed to persist exchange rates", "base", t.Base, "error", err)
		}
	}

	slog.InfoContext(ctx, "Exchange rates refreshed", "base", t.Base, "currencies", len(t.Rates), "as_of", t.AsOf.Format("2006-01-02"))
	return t, nil
}

// fallback serves the last known table flagged stale. It never invents a
// rate: without any cached table the caller gets a DegradedDataError.
func (c *Converter) fallback(ctx context.Context, cause error) (RateTable, error) {
	c.mu.RLock()
	last := c.lastKnown
	c.mu.RUnlock()
	if last != nil {
		t := last.clone()
		t.Stale = true
		return t, nil
	}

	if c.store != nil {
		t, err := c.store.LatestRates(ctx, c.base)
		if err == nil {
			t.Stale = true
			return t, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Failed to load persisted exchange rates", "error", err)
		}
	}

	return RateTable{}, &core.DegradedDataError{Reason: "exchange rates unavailable and no cached rates exist", Err: cause}
}

// Convert converts amount between two currencies. Same-currency conversion
// never touches the provider. The boolean reports stale rates.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, bool, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if err := ValidateCode(from); err != nil {
		return decimal.Zero, false, err
	}
	if err := ValidateCode(to); err != nil {
		return decimal.Zero, false, err
	}
	if from == to {
		return core.Round2(amount), false, nil
	}

	t, err := c.Rates(ctx)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("convert %s to %s: %w", from, to, err)
	}
	out, err := t.Convert(amount, from, to)
	if err != nil {
		return decimal.Zero, false, err
	}
	return out, t.Stale, nil
}
