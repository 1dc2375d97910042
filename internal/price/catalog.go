package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Coin is one entry of the CoinGecko /coins/list catalog
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// SupportedIDs returns the set of ids the price API recognizes.
func (c *Client) SupportedIDs(ctx context.Context) (map[string]Coin, error) {
	// the catalog is large, allow more than a single quote
	ctx, cancel := context.WithTimeout(ctx, 3*c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/list", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from CoinGecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("CoinGecko returned status %d", resp.StatusCode)
	}

	var coins []Coin
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make(map[string]Coin, len(coins))
	for _, coin := range coins {
		out[coin.ID] = coin
	}
	return out, nil
}

// MissingIDs reports which of ids the price API does not recognize,
// preserving input order.
func (c *Client) MissingIDs(ctx context.Context, ids []string) ([]string, error) {
	supported, err := c.SupportedIDs(ctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if _, ok := supported[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
