package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
)

// Client provides methods for fetching prices and FX rates from the market
// data provider. It wraps an HTTP client and satisfies both market data
// capabilities the reconciliation coordinator consumes.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new market data client against the given provider URL.
//
// Returns:
//   - *Client: A new client instance ready for use
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
	}
}

// GetPrice fetches the most recent price for an instrument key.
//
// The provider resolves ISINs and SYMBOL@EXCHANGE keys itself; this client
// passes the key through unchanged. A quote the provider flags as stale is
// treated as missing so the aggregation layer falls back to cost basis
// rather than valuing holdings on dead quotes.
//
// Parameters:
//   - ctx: Context bounding the request
//   - instrumentKey: Canonical instrument identity (e.g. "US0378331005", "AAPL@NASDAQ")
//
// Returns:
//   - decimal.Decimal: Last traded price
//   - error: apperrors.ErrMissingPrice when no usable quote exists
func (c *Client) GetPrice(ctx context.Context, instrumentKey string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/quote/%s", c.baseURL, url.PathEscape(instrumentKey))

	var response quoteResponse
	if err := c.query(ctx, endpoint, &response); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", apperrors.ErrMissingPrice, instrumentKey, err)
	}
	if response.Error != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %s", apperrors.ErrMissingPrice, instrumentKey, *response.Error)
	}
	if response.Quote == nil || response.Quote.Stale {
		return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrMissingPrice, instrumentKey)
	}

	return response.Quote.Price, nil
}

// GetRate fetches the spot rate converting one unit of from-currency into
// to-currency.
//
// Parameters:
//   - ctx: Context bounding the request
//   - from: ISO 4217 source currency (e.g. "USD")
//   - to: ISO 4217 target currency (e.g. "EUR")
//
// Returns:
//   - decimal.Decimal: Conversion rate
//   - error: apperrors.ErrMissingFxRate when the provider has no rate for the pair
func (c *Client) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	endpoint := fmt.Sprintf("%s/v1/fx/%s/%s", c.baseURL, url.PathEscape(from), url.PathEscape(to))

	var response rateResponse
	if err := c.query(ctx, endpoint, &response); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %v", apperrors.ErrMissingFxRate, from, to, err)
	}
	if response.Error != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %s", apperrors.ErrMissingFxRate, from, to, *response.Error)
	}
	if response.Rate == nil || !response.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", apperrors.ErrMissingFxRate, from, to)
	}

	return *response.Rate, nil
}

// query is an internal helper that executes HTTP requests to the provider.
// This method handles the common logic for making requests, reading
// responses, parsing JSON, and checking HTTP status.
func (c *Client) query(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return json.Unmarshal(data, out)
}
