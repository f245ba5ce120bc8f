package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// DefaultECBURL publishes daily reference rates against EUR.
const DefaultECBURL = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml"

// ECBProvider reads the European Central Bank daily XML feed. The table it
// returns is always EUR-based.
type ECBProvider struct {
	url    string
	client *http.Client
}

func NewECBProvider(url string, client *http.Client) *ECBProvider {
	if url == "" {
		url = DefaultECBURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ECBProvider{url: url, client: client}
}

func (p *ECBProvider) FetchRates(ctx context.Context, _ string) (RateTable, error) {
	body, err := get(ctx, p.client, p.url, "application/xml")
	if err != nil {
		return RateTable{}, err
	}
	return ParseECB(body)
}

// ParseECB extracts rates from an eurofxref document.
func ParseECB(raw []byte) (RateTable, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return RateTable{}, fmt.Errorf("failed to parse XML: %w", err)
	}

	t := RateTable{Base: "EUR", Rates: make(map[string]decimal.Decimal)}

	if dated := doc.FindElement("//Cube[@time]"); dated != nil {
		if asOf, err := time.Parse("2006-01-02", dated.SelectAttrValue("time", "")); err == nil {
			t.AsOf = asOf
		}
	}

	for _, el := range doc.FindElements("//Cube[@currency]") {
		code := strings.ToUpper(el.SelectAttrValue("currency", ""))
		rate, err := decimal.NewFromString(el.SelectAttrValue("rate", ""))
		if err != nil {
			return RateTable{}, fmt.Errorf("failed to parse rate for %s: %w", code, err)
		}
		if !rate.IsPositive() {
			continue
		}
		t.Rates[code] = rate
	}

	if len(t.Rates) == 0 {
		return RateTable{}, fmt.Errorf("no rate data found in XML")
	}
	return t, nil
}

// JSONProvider reads {"base":"USD","date":"2025-01-15","rates":{"ILS":3.65}}
// from an HTTP endpoint. A {base} placeholder in the URL is replaced by the
// requested base currency.
type JSONProvider struct {
	url    string
	client *http.Client
}

func NewJSONProvider(url string, client *http.Client) *JSONProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JSONProvider{url: url, client: client}
}

type jsonRates struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (p *JSONProvider) FetchRates(ctx context.Context, base string) (RateTable, error) {
	if p.url == "" {
		return RateTable{}, fmt.Errorf("rates URL not configured")
	}
	body, err := get(ctx, p.client, strings.ReplaceAll(p.url, "{base}", base), "application/json")
	if err != nil {
		return RateTable{}, err
	}

	var payload jsonRates
	if err := json.Unmarshal(body, &payload); err != nil {
		return RateTable{}, fmt.Errorf("failed to decode rates: %w", err)
	}
	if payload.Base == "" {
		payload.Base = base
	}
	if len(payload.Rates) == 0 {
		return RateTable{}, fmt.Errorf("rates response contains no rates")
	}

	t := RateTable{Base: strings.ToUpper(payload.Base), Rates: make(map[string]decimal.Decimal, len(payload.Rates))}
	for code, rate := range payload.Rates {
		if rate.IsPositive() {
			t.Rates[strings.ToUpper(code)] = rate
		}
	}
	if payload.Date != "" {
		if asOf, err := time.Parse("2006-01-02", payload.Date); err == nil {
			t.AsOf = asOf
		}
	}
	return t, nil
}

// StaticProvider serves a fixed table. Used for offline setups and tests.
type StaticProvider struct {
	Table RateTable
	Err   error

	calls atomic.Int32
}

// Calls reports how many times FetchRates ran.
func (p *StaticProvider) Calls() int { return int(p.calls.Load()) }

func (p *StaticProvider) FetchRates(ctx context.Context, _ string) (RateTable, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return RateTable{}, err
	}
	if p.Err != nil {
		return RateTable{}, p.Err
	}
	return p.Table.clone(), nil
}

func get(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
