package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// DefaultBaseURL is the IEX Cloud endpoint. It can be overridden for
// testing or to point at a sandbox.
const DefaultBaseURL = "https://cloud.iexapis.com"

// iexQuote is the subset of the IEX /quote payload the oracle uses.
type iexQuote struct {
	Symbol      string   `json:"symbol"`
	CompanyName string   `json:"companyName"`
	LatestPrice *float64 `json:"latestPrice"`
}

// IEXClient looks up quotes from an IEX Cloud compatible HTTP API.
type IEXClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewIEXClient creates an IEXClient. The timeout bounds every request;
// callers may impose a tighter bound through the context.
func NewIEXClient(baseURL, apiKey string, timeout time.Duration) *IEXClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &IEXClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Lookup returns the latest quote for symbol. An unknown symbol yields
// domain.ErrInvalidSymbol; transport failures and unexpected responses are
// returned as plain errors for the caller to classify.
func (c *IEXClient) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	u := fmt.Sprintf("%s/stable/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote request for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Quote{}, domain.ErrInvalidSymbol
	case resp.StatusCode != http.StatusOK:
		return domain.Quote{}, fmt.Errorf("quote API error: received status %d", resp.StatusCode)
	}

	var body iexQuote
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, fmt.Errorf("failed to decode quote JSON: %w", err)
	}
	if body.LatestPrice == nil || *body.LatestPrice <= 0 {
		return domain.Quote{}, domain.ErrInvalidSymbol
	}

	q := domain.Quote{
		Symbol: body.Symbol,
		Name:   body.CompanyName,
		Price:  decimal.NewFromFloat(*body.LatestPrice),
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}
