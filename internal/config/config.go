package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

type Config struct {
	// HTTP Server
	Port           string
	LogLevel       string
	TrustedProxies []string
	RateLimitRPM   int

	// Storage
	DataBackend  string
	SQLiteDBPath string
	SeedFile     string // optional JSON document loaded at API startup

	// Currency
	BaseCurrency  string
	RatesProvider string
	RatesURL      string
	RatesTimeout  time.Duration
	StaticRates   string // "CODE=rate,..." against BaseCurrency, static provider only

	// Alerts
	CriticalThreshold    decimal.Decimal
	HighExpenseThreshold decimal.Decimal
	AlertHorizonMonths   int
	AlertCron            string
	AlertOwners          []string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID     string
	GoogleForecastSheetName string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 120),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cashflow.db"),
		SeedFile:     getEnv("SEED_FILE", ""),

		BaseCurrency:  strings.ToUpper(getEnv("BASE_CURRENCY", "ILS")),
		RatesProvider: getEnv("RATES_PROVIDER", "ecb"),
		RatesURL:      getEnv("RATES_URL", ""),
		RatesTimeout:  getEnvDuration("RATES_TIMEOUT", 5*time.Second),
		StaticRates:   getEnv("RATES_STATIC", ""),

		CriticalThreshold:    getEnvDecimal("CRITICAL_THRESHOLD", decimal.NewFromInt(-5000)),
		HighExpenseThreshold: getEnvDecimal("HIGH_EXPENSE_THRESHOLD", decimal.NewFromInt(10000)),
		AlertHorizonMonths:   getEnvInt("ALERT_HORIZON_MONTHS", 6),
		AlertCron:            getEnv("ALERT_CRON", "0 6 * * *"),
		AlertOwners:          getEnvList("ALERT_OWNERS"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cashflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "forecast_export"),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleForecastSheetName: getEnv("GOOGLE_FORECAST_SHEET_NAME", "Forecast"),
	}
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if !currencyCode.MatchString(c.BaseCurrency) {
		errors = append(errors, fmt.Sprintf("invalid base currency '%s': must be a 3-letter ISO 4217 code", c.BaseCurrency))
	}

	switch c.RatesProvider {
	case "ecb", "static":
	case "json":
		if c.RatesURL == "" {
			errors = append(errors, "RATES_URL is required when using the json rates provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid rates provider '%s': must be one of [ecb json static]", c.RatesProvider))
	}
	if c.RatesURL != "" {
		if u, err := url.Parse(c.RatesURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid rates URL '%s': must be an http(s) URL", c.RatesURL))
		}
	}
	if c.RatesTimeout <= 0 || c.RatesTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates timeout %v: must be between 0 and 1 minute", c.RatesTimeout))
	}
	if c.RatesProvider == "static" {
		if _, err := ParseStaticRates(c.StaticRates); err != nil {
			errors = append(errors, fmt.Sprintf("invalid RATES_STATIC: %v", err))
		}
	}

	if !c.CriticalThreshold.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid critical threshold %s: must be negative", c.CriticalThreshold))
	}
	if !c.HighExpenseThreshold.IsPositive() {
		errors = append(errors, fmt.Sprintf("invalid high expense threshold %s: must be positive", c.HighExpenseThreshold))
	}
	if c.AlertHorizonMonths < 1 || c.AlertHorizonMonths > 60 {
		errors = append(errors, fmt.Sprintf("invalid alert horizon %d: must be between 1 and 60 months", c.AlertHorizonMonths))
	}
	if _, err := cron.ParseStandard(c.AlertCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid alert cron '%s': %v", c.AlertCron, err))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ParseStaticRates parses "USD=0.27,EUR=0.25" into units per one base unit.
func ParseStaticRates(s string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, value, ok := strings.Cut(pair, "=")
		code = strings.ToUpper(strings.TrimSpace(code))
		if !ok || !currencyCode.MatchString(code) {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be a positive number", code)
		}
		rates[code] = rate
	}
	return rates, nil
}

// HTTPAddr returns the listen address for Port.
func (c *Config) HTTPAddr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
