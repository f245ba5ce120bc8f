package backend

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/currency"
	"cashflow/internal/seed"
	"cashflow/internal/services"
)

// Store is a storage backend usable by the engine, the rate cache and the
// seed loader.
type Store interface {
	services.Store
	currency.RateStore
	seed.Target
	Owners(ctx context.Context) ([]string, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds everything a process needs to serve the engine.
type Result struct {
	Engine    *services.Engine
	Store     Store
	Converter *currency.Converter
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher services.Publisher
	Cleanup   CleanupFunc
}

// Factory builds the engine and its dependencies from configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	BaseCurrency  string
	RatesProvider RatesProvider
	RatesURL      string
	RatesTimeout  time.Duration
	StaticRates   map[string]decimal.Decimal

	CriticalThreshold    decimal.Decimal
	HighExpenseThreshold decimal.Decimal

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// RatesProvider names the exchange-rate source.
type RatesProvider string

const (
	ECBRates    RatesProvider = "ecb"
	JSONRates   RatesProvider = "json"
	StaticRates RatesProvider = "static"
)

func (rp RatesProvider) IsValid() bool {
	switch rp {
	case ECBRates, JSONRates, StaticRates:
		return true
	default:
		return false
	}
}
