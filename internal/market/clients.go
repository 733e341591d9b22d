package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"pumpfun-scanner/internal/circuit"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/logging"
)

const (
	httpTimeout = 15 * time.Second

	solsnifferCacheTTL = 30 * time.Minute
	marketDataCacheTTL = 30 * time.Second
)

// HTTPStatusError is a non-200 provider response. Callers branch on the
// code to tell permanent rejections from transient failures.
type HTTPStatusError struct {
	Provider string
	Code     int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Provider, e.Code)
}

// SecurityReport is a solsniffer scan result.
type SecurityReport struct {
	Score float64  `json:"score"`
	Flags []string `json:"flags"`
}

// MarketSnapshot is a market-data provider response.
type MarketSnapshot struct {
	MarketCap    float64 `json:"market_cap"`
	Liquidity    float64 `json:"liquidity"`
	HolderCount  int     `json:"holder_count"`
	Top10Percent float64 `json:"top10_percent"`
	Volume24h    float64 `json:"volume_24h"`
}

// apiLogger persists one api_call_logs row per outbound request.
type apiLogger interface {
	InsertAPICall(ctx context.Context, l *database.APICallLog) error
}

// httpClient wraps a provider endpoint with cache, call logging, and a
// circuit breaker.
type httpClient struct {
	provider string
	baseURL  string
	apiKey   string
	http     *http.Client
	cache    *APICache
	repo     apiLogger
	breaker  *circuit.Breaker
	logger   *logging.Logger
}

func newHTTPClient(provider, baseURL, apiKey string, cache *APICache, repo apiLogger) *httpClient {
	c := &httpClient{
		provider: provider,
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: httpTimeout},
		cache:    cache,
		repo:     repo,
		breaker:  circuit.New(nil),
		logger:   logging.WithComponent(provider),
	}
	c.breaker.OnTrip(func(reason string) {
		c.logger.Warn("Provider circuit opened", "reason", reason)
	})
	c.breaker.OnReset(func() {
		c.logger.Info("Provider circuit closed")
	})
	return c
}

// getJSON fetches a path and decodes it into dest, recording the call.
func (c *httpClient) getJSON(ctx context.Context, path string, dest interface{}) error {
	if ok, reason := c.breaker.Allow(); !ok {
		return fmt.Errorf("%s blocked: %s", c.provider, reason)
	}

	url := c.baseURL + path
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	duration := time.Since(started)
	if err != nil {
		c.breaker.RecordFailure()
		c.logCall(ctx, path, 0, duration, err)
		return fmt.Errorf("%s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &HTTPStatusError{Provider: c.provider, Code: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.breaker.RecordFailure()
		} else {
			// A 4xx is the provider answering; the circuit stays closed.
			c.breaker.RecordSuccess()
		}
		c.logCall(ctx, path, resp.StatusCode, duration, statusErr)
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		c.breaker.RecordFailure()
		c.logCall(ctx, path, resp.StatusCode, duration, err)
		return fmt.Errorf("%s decode: %w", c.provider, err)
	}
	c.breaker.RecordSuccess()
	c.logCall(ctx, path, resp.StatusCode, duration, nil)
	return nil
}

func (c *httpClient) logCall(ctx context.Context, path string, status int, duration time.Duration, callErr error) {
	logging.APIContext(c.provider, path, duration).
		Debug("API call", "status", status, "error", callErr)
	if c.repo == nil {
		return
	}
	l := &database.APICallLog{
		Provider:   c.provider,
		Endpoint:   path,
		StatusCode: status,
		DurationMs: duration.Milliseconds(),
	}
	if callErr != nil {
		msg := callErr.Error()
		l.Error = &msg
	}
	if err := c.repo.InsertAPICall(ctx, l); err != nil {
		c.logger.Warn("API call log insert failed", "error", err)
	}
}

// SolsnifferClient fetches token security scores.
type SolsnifferClient struct {
	*httpClient
}

// NewSolsnifferClient reads its endpoint and key from the environment.
func NewSolsnifferClient(cache *APICache, repo apiLogger) *SolsnifferClient {
	base := os.Getenv("SOLSNIFFER_URL")
	if base == "" {
		base = "https://api.solsniffer.com/v1"
	}
	return &SolsnifferClient{
		httpClient: newHTTPClient("solsniffer", base, os.Getenv("SOLSNIFFER_API_KEY"), cache, repo),
	}
}

// Score fetches the security report for a mint, cache first.
func (c *SolsnifferClient) Score(ctx context.Context, mint string) (*SecurityReport, error) {
	key := "solsniffer:" + mint
	var report SecurityReport
	if c.cache.Get(ctx, key, &report) {
		return &report, nil
	}
	if err := c.getJSON(ctx, "/token/"+mint, &report); err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, report, solsnifferCacheTTL)
	return &report, nil
}

// MarketDataClient fetches holder and volume snapshots.
type MarketDataClient struct {
	*httpClient
}

// NewMarketDataClient reads its endpoint and key from the environment.
func NewMarketDataClient(cache *APICache, repo apiLogger) *MarketDataClient {
	base := os.Getenv("MARKET_DATA_URL")
	if base == "" {
		base = "https://frontend-api.pump.fun"
	}
	return &MarketDataClient{
		httpClient: newHTTPClient("market-data", base, os.Getenv("MARKET_DATA_API_KEY"), cache, repo),
	}
}

// Snapshot fetches the current market snapshot for a mint, cache first.
func (c *MarketDataClient) Snapshot(ctx context.Context, mint string) (*MarketSnapshot, error) {
	key := "market:" + mint
	var snap MarketSnapshot
	if c.cache.Get(ctx, key, &snap) {
		return &snap, nil
	}
	if err := c.getJSON(ctx, "/coins/"+mint, &snap); err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, snap, marketDataCacheTTL)
	return &snap, nil
}

// TokenMetadata is the enrichment payload for one token.
type TokenMetadata struct {
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	Decimals     int     `json:"decimals"`
	Creator      string  `json:"creator"`
	HolderCount  int     `json:"holder_count"`
	Top10Percent float64 `json:"top10_percent"`
}

// Metadata fetches name, symbol, and distribution data for a mint. Not
// cached: enrichment runs once per token.
func (c *MarketDataClient) Metadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	var meta TokenMetadata
	if err := c.getJSON(ctx, "/coins/"+mint+"/metadata", &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
