package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edibez/tokenagent/pkg/metrics"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL is the public CoinGecko v3 API.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	// DefaultTimeout bounds a single price request.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=price_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client for the CoinGecko simple price endpoint
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient HTTPClient
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithAPIKey sets the optional demo API key sent as x-cg-demo-api-key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets the per-request deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new price client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Price fetches the current USD price for a price-source id. It makes exactly
// one request; every failure is returned as a *FetchError.
func (c *Client) Price(ctx context.Context, id string) (usd float64, err error) {
	start := time.Now()
	defer func() {
		metrics.PriceFetchLatency.Observe(time.Since(start).Seconds())
		metrics.PriceFetches.WithLabelValues(resultLabel(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(id))
	body, err := c.get(ctx, endpoint, id)
	if err != nil {
		return 0, err
	}

	var result map[string]map[string]json.RawMessage
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, &FetchError{Cause: CauseShape, ID: id, Err: fmt.Errorf("decode response: %w", err)}
	}
	entry, ok := result[id]
	if !ok {
		return 0, &FetchError{Cause: CauseShape, ID: id, Err: fmt.Errorf("response has no entry for %q", id)}
	}
	raw, ok := entry["usd"]
	if !ok {
		return 0, &FetchError{Cause: CauseShape, ID: id, Err: fmt.Errorf("entry for %q has no usd field", id)}
	}

	d, err := parseDecimal(raw)
	if err != nil {
		return 0, &FetchError{Cause: CauseValue, ID: id, Err: err}
	}
	usd, _ = d.Float64()
	return usd, nil
}

func (c *Client) get(ctx context.Context, endpoint, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Cause: CauseNetwork, ID: id, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Cause: CauseNetwork, ID: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &FetchError{Cause: CauseRemote, ID: id, Status: resp.StatusCode,
			Err: fmt.Errorf("CoinGecko returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Cause: CauseNetwork, ID: id, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// parseDecimal accepts a JSON number or a numeric string.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Decimal{}, fmt.Errorf("price %s: %w", s, err)
		}
		s = strings.TrimSpace(str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price %s is not numeric: %w", string(raw), err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("price %s is negative", d)
	}
	return d, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Cause.String()
	}
	return "error"
}
