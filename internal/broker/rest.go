package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// TokenSource resolves the access token authenticating requests for one
// connection. Backed by the connection repository plus the token vault.
type TokenSource interface {
	AccessToken(connectionID string) (string, error)
}

// RESTClient fetches holdings from OAuth-linked brokers through the
// aggregator gateway's normalized holdings API. The gateway translates each
// broker's native protocol; this client only speaks the normalized shape.
type RESTClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// NewRESTClient creates a broker REST client against the given gateway URL.
func NewRESTClient(baseURL string, tokens TokenSource) *RESTClient {
	return &RESTClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		tokens:     tokens,
	}
}

// holdingsResponse is the gateway's holdings payload.
type holdingsResponse struct {
	Holdings []struct {
		Symbol      string              `json:"symbol"`
		ISIN        string              `json:"isin"`
		Exchange    string              `json:"exchange"`
		Currency    string              `json:"currency"`
		Quantity    decimal.Decimal     `json:"quantity"`
		AverageCost decimal.Decimal     `json:"averageCost"`
		Price       decimal.NullDecimal `json:"price"`
	} `json:"holdings"`
	Error *string `json:"error"`
}

// accountResponse is the gateway's account metadata payload.
type accountResponse struct {
	AccountNumber string  `json:"accountNumber"`
	Error         *string `json:"error"`
}

// FetchPositions pulls the connection's current holdings from the gateway
// and maps them onto raw source records for normalization.
func (c *RESTClient) FetchPositions(ctx context.Context, conn model.BrokerConnection) ([]model.RawSourceRecord, error) {
	url := fmt.Sprintf("%s/v1/%s/connections/%s/holdings", c.baseURL, conn.Broker, conn.ID)

	var response holdingsResponse
	if err := c.get(ctx, url, conn.ID, &response); err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("gateway error: %s", *response.Error)
	}

	records := make([]model.RawSourceRecord, len(response.Holdings))
	for i, holding := range response.Holdings {
		records[i] = model.RawSourceRecord{
			Kind:        model.RecordPosition,
			Symbol:      holding.Symbol,
			ISIN:        holding.ISIN,
			Exchange:    holding.Exchange,
			Currency:    holding.Currency,
			Quantity:    holding.Quantity,
			AverageCost: holding.AverageCost,
			Price:       holding.Price,
		}
	}
	return records, nil
}

// FetchAccountNumber returns the broker-reported external account number for
// the connection, or empty when the gateway does not expose one. A missing
// account number is not an error, it only weakens duplicate corroboration.
func (c *RESTClient) FetchAccountNumber(ctx context.Context, conn model.BrokerConnection) (string, error) {
	url := fmt.Sprintf("%s/v1/%s/connections/%s/account", c.baseURL, conn.Broker, conn.ID)

	var response accountResponse
	if err := c.get(ctx, url, conn.ID, &response); err != nil {
		return "", err
	}
	if response.Error != nil {
		return "", fmt.Errorf("gateway error: %s", *response.Error)
	}
	return response.AccountNumber, nil
}

// get executes an authenticated gateway request and decodes the JSON body.
func (c *RESTClient) get(ctx context.Context, url, connectionID string, out any) error {
	token, err := c.tokens.AccessToken(connectionID)
	if err != nil {
		return fmt.Errorf("failed to resolve access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
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
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
