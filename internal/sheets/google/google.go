package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"cashflow/internal/forecast"
	ports "cashflow/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRowCacheTTL = 30 * time.Second

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	forecastBase  string // without year; the export year is prefixed
	now           func() time.Time

	// Next-row lookups are cached per sheet to avoid a read before every write.
	mu                 sync.Mutex
	cachedSheet        string
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var _ ports.ForecastExporter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_FORECAST_SHEET_NAME (default "Forecast")
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_FORECAST_SHEET_NAME")), nil
}

// New wraps an existing service. An empty sheet name defaults to "Forecast".
func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Forecast"
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		forecastBase:       sheetName,
		now:                time.Now,
		cacheValidDuration: defaultRowCacheTTL,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// ExportForecast writes one row per period below the existing rows of the
// year's forecast sheet. A header row is written first on an empty sheet.
func (c *Client) ExportForecast(ctx context.Context, p forecast.Projection) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if p.OwnerID == "" {
		return "", errors.New("export forecast: owner is required")
	}

	now := c.now()
	sheet := yearPrefixedName(c.forecastBase, now.Year())

	existing, err := c.rowCount(ctx, sheet)
	if err != nil {
		return "", err
	}

	var values [][]any
	if existing == 0 {
		values = append(values, toValues(ports.Header))
	}
	for _, row := range ports.Rows(p, now) {
		values = append(values, toValues(row))
	}
	if len(values) == 0 {
		return "", nil
	}

	first := existing + 1
	last := existing + len(values)
	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, first, columnName(len(ports.Header)), last)

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.invalidate()
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	c.mu.Lock()
	c.cachedSheet = sheet
	c.cachedRowCount = last
	c.cacheExpiresAt = c.now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	slog.InfoContext(ctx, "Exported forecast",
		"owner_id", p.OwnerID,
		"periods", len(p.Periods),
		"range", rng)
	return rng, nil
}

// rowCount returns the number of filled rows in column A of sheet.
func (c *Client) rowCount(ctx context.Context, sheet string) (int, error) {
	c.mu.Lock()
	if c.cachedSheet == sheet && c.now().Before(c.cacheExpiresAt) {
		n := c.cachedRowCount
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}
	return len(resp.Values), nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

func toValues(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// columnName converts a 1-based column index to its A1 letter.
func columnName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
