package marketdata

import "github.com/shopspring/decimal"

// quoteResponse represents the raw JSON response from the market data
// provider's quote endpoint. The provider resolves an instrument key (ISIN or
// SYMBOL@EXCHANGE) to its most recent trade.
//
// The structure includes:
//   - Quote.Price: Last traded price
//   - Quote.Currency: Currency the price is denominated in
//   - Quote.Stale: Whether the provider flags the quote as outdated
//   - Error: Optional error message from the provider
type quoteResponse struct {
	Quote *struct {
		Price    decimal.Decimal `json:"price"`
		Currency string          `json:"currency"`
		Stale    bool            `json:"stale"`
	} `json:"quote"`
	Error *string `json:"error"`
}

// rateResponse represents the raw JSON response from the provider's FX
// endpoint: a single spot rate converting one unit of the base currency of
// the pair into the quote currency.
type rateResponse struct {
	Rate  *decimal.Decimal `json:"rate"`
	Error *string          `json:"error"`
}
