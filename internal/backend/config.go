package backend

import (
	"fmt"

	"cashflow/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	rates, err := config.ParseStaticRates(appConfig.StaticRates)
	if err != nil {
		return Config{}, fmt.Errorf("parse static rates: %w", err)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		BaseCurrency:  appConfig.BaseCurrency,
		RatesProvider: RatesProvider(appConfig.RatesProvider),
		RatesURL:      appConfig.RatesURL,
		RatesTimeout:  appConfig.RatesTimeout,
		StaticRates:   rates,

		CriticalThreshold:    appConfig.CriticalThreshold,
		HighExpenseThreshold: appConfig.HighExpenseThreshold,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if !c.RatesProvider.IsValid() {
		return fmt.Errorf("invalid rates provider: %s", c.RatesProvider)
	}
	if c.RatesProvider == JSONRates && c.RatesURL == "" {
		return fmt.Errorf("rates URL is required for the json rates provider")
	}
	if c.BaseCurrency == "" {
		return fmt.Errorf("base currency is required")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}
