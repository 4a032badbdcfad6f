// Package rates polls a fiat exchange-rate source so native-unit prices can
// be rendered in USD. The rate is advisory display data; quotes and
// reconciled state never depend on it.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ratesResponse matches the Coinbase exchange-rates payload shape.
type ratesResponse struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

// Provider polls the configured URL on a fixed interval and caches the most
// recent ETH to USD rate. Fetch failures keep the last good value.
type Provider struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	rate  float64
	asOf  time.Time
	ready bool
}

// NewProvider creates a rate provider. interval must be positive.
func NewProvider(url string, interval time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		url:      url,
		interval: interval,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With(slog.String("component", "rates")),
	}
}

// Rate returns the cached USD rate, its fetch time, and whether a fetch has
// ever succeeded. Callers render native units unconverted until ready.
func (p *Provider) Rate() (float64, time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate, p.asOf, p.ready
}

// Run polls until ctx is cancelled. One fetch happens immediately.
func (p *Provider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Provider) poll(ctx context.Context) {
	rate, err := p.fetch(ctx)
	if err != nil {
		p.logger.Warn("rate fetch failed", slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	p.rate = rate
	p.asOf = time.Now()
	p.ready = true
	p.mu.Unlock()
}

func (p *Provider) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("rates: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rates: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("rates: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("rates: HTTP %d: %s", resp.StatusCode, string(body))
	}

	return parseUSDRate(body)
}

// parseUSDRate extracts the USD entry from an exchange-rates payload.
func parseUSDRate(body []byte) (float64, error) {
	var rr ratesResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return 0, fmt.Errorf("rates: decode response: %w", err)
	}

	usd, ok := rr.Data.Rates["USD"]
	if !ok {
		return 0, fmt.Errorf("rates: no USD rate in response for %q", rr.Data.Currency)
	}

	rate, err := strconv.ParseFloat(usd, 64)
	if err != nil {
		return 0, fmt.Errorf("rates: parse USD rate %q: %w", usd, err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("rates: non-positive USD rate %g", rate)
	}
	return rate, nil
}
