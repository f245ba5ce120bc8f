package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/alerts"
	"cashflow/internal/amqp"
	"cashflow/internal/currency"
	"cashflow/internal/services"
	"cashflow/internal/storage"
	"cashflow/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, now: time.Now}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the store, builds the rate converter and connects the
// optional AMQP publisher. AMQP failures are logged and publication disabled.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.CreateStore(config)
	if err != nil {
		return nil, err
	}

	provider, err := f.CreateRateProvider(config)
	if err != nil {
		store.Close()
		return nil, err
	}
	conv := currency.NewConverter(provider, config.BaseCurrency,
		currency.WithStore(store),
		currency.WithTimeout(config.RatesTimeout),
		currency.WithClock(f.now))

	publisher := f.CreatePublisher(config)

	engine := services.NewEngine(store, conv, publisher, services.Options{
		BaseCurrency: config.BaseCurrency,
		Thresholds: alerts.Thresholds{
			Critical:    config.CriticalThreshold,
			HighExpense: config.HighExpenseThreshold,
		},
		Now: f.now,
	})

	f.logger.InfoContext(ctx, "Initialized backend",
		"backend", config.Type,
		"base_currency", config.BaseCurrency,
		"rates_provider", config.RatesProvider,
		"amqp_enabled", publisher != nil)

	return &Result{
		Engine:    engine,
		Store:     store,
		Converter: conv,
		Publisher: publisher,
		Cleanup:   engine.Close,
	}, nil
}

// CreateStore opens the configured storage. SQLite migrations run on open.
func (f *DefaultFactory) CreateStore(config Config) (Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return memory.New().WithClock(f.now), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreateRateProvider builds the exchange-rate source.
func (f *DefaultFactory) CreateRateProvider(config Config) (currency.RateProvider, error) {
	client := &http.Client{Timeout: config.RatesTimeout}
	switch config.RatesProvider {
	case ECBRates:
		return currency.NewECBProvider(config.RatesURL, client), nil
	case JSONRates:
		return currency.NewJSONProvider(config.RatesURL, client), nil
	case StaticRates:
		rates := map[string]decimal.Decimal{config.BaseCurrency: decimal.NewFromInt(1)}
		for code, r := range config.StaticRates {
			rates[code] = r
		}
		return &currency.StaticProvider{Table: currency.RateTable{
			Base:  config.BaseCurrency,
			Rates: rates,
			AsOf:  f.now().UTC(),
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported rates provider: %s", config.RatesProvider)
	}
}

// CreatePublisher connects to AMQP when configured. The returned interface
// is nil, not a typed nil, when publication is disabled.
func (f *DefaultFactory) CreatePublisher(config Config) services.Publisher {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, "")
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange)
	return client
}

// Close releases a partially built result. Safe on nil.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	if err := r.Cleanup(); err != nil {
		return errors.Join(errors.New("backend cleanup failed"), err)
	}
	return nil
}
