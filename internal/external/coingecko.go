package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kjannette/oracle-backend/internal/models"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko asset platform ids per network.
var platformIDs = map[models.Network]string{
	models.NetworkEthereum: "ethereum",
	models.NetworkPolygon:  "polygon-pos",
}

// CoinGeckoClient fetches token prices by contract address. It performs no
// retries of its own; pacing toward the rate limit is the caller's job
// (callers wrap PriceAtDate in a backoff executor).
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func NewCoinGeckoClient(apiKey string) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:    coingeckoBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// PriceAtDate returns the USD price of the token contract nearest to ts.
// Historical dates look forward across the following day and take the first
// point; a timestamp at or near the present has no data ahead of it, so it
// looks back across the preceding day and takes the last point. A window
// with no market data yields (nil, nil): "no data" is a valid answer and
// distinct from a fetch failure.
func (c *CoinGeckoClient) PriceAtDate(ctx context.Context, token string, network models.Network, ts int64) (*float64, error) {
	platform, ok := platformIDs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	from, to := ts, ts+86400
	lookBack := to > c.now().Unix()
	if lookBack {
		from, to = ts-86400, ts
	}

	url := fmt.Sprintf("%s/coins/%s/contract/%s/market_chart/range?vs_currency=usd&from=%d&to=%d",
		c.baseURL, platform, token, from, to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("coingecko rate limited")
	case resp.StatusCode == http.StatusNotFound:
		// Unknown contract on this platform: no data, not a failure.
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coingecko returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if len(data.Prices) == 0 {
		return nil, nil
	}

	point := data.Prices[0]
	if lookBack {
		point = data.Prices[len(data.Prices)-1]
	}
	return &point[1], nil
}
