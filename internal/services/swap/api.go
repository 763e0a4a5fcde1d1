package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultAPIURL     = "https://api.0x.org/swap/allowance-holder"
	defaultAPITimeout = 15 * time.Second
	apiVersion        = "v2"
)

// PriceParams query of the indicative price endpoint.
type PriceParams struct {
	ChainID    int64
	SellToken  string
	BuyToken   string
	SellAmount *big.Int
}

// PriceResponse answer of the price endpoint. Amounts are integer base units.
type PriceResponse struct {
	BuyAmount        string `json:"buyAmount"`
	ExpiresInSeconds *int   `json:"expiresInSeconds,omitempty"`
}

// QuoteParams query of the firm quote endpoint.
type QuoteParams struct {
	PriceParams
	Taker       string
	SlippageBps int
}

// AllowanceIssue reports that spender is not approved for the sell amount.
type AllowanceIssue struct {
	Spender string `json:"spender"`
	Actual  string `json:"actual,omitempty"`
}

// Issues problems the API detected for the taker.
type Issues struct {
	Allowance *AllowanceIssue `json:"allowance,omitempty"`
}

// Transaction ready-to-sign call data.
type Transaction struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
}

// QuoteResponse answer of the quote endpoint. The transaction fields may come
// at the top level or nested under "transaction".
type QuoteResponse struct {
	Transaction
	BuyAmount string       `json:"buyAmount"`
	Issues    *Issues      `json:"issues,omitempty"`
	Nested    *Transaction `json:"transaction,omitempty"`
}

// Tx returns the transaction to submit.
func (q QuoteResponse) Tx() Transaction {
	if q.To == "" && q.Nested != nil {
		return *q.Nested
	}
	return q.Transaction
}

// AllowanceSpender returns the spender to approve, or "" when no approval is requested.
func (q QuoteResponse) AllowanceSpender() string {
	if q.Issues == nil || q.Issues.Allowance == nil {
		return ""
	}
	return q.Issues.Allowance.Spender
}

// APIError non-success answer of the swap API.
type APIError struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	Reason     string `json:"reason"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Reason
	}
	return fmt.Sprintf("swap api returned status %d: %s %s", e.StatusCode, e.Name, msg)
}

// APIClient calls a 0x-compatible swap API.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClient creates a client; an empty baseURL selects the public 0x endpoint.
func NewAPIClient(baseURL, apiKey string) *APIClient {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &APIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultAPITimeout},
	}
}

// Price fetches an indicative price.
func (c *APIClient) Price(ctx context.Context, p PriceParams) (PriceResponse, error) {
	var resp PriceResponse
	if err := c.get(ctx, "/price", priceQuery(p), &resp); err != nil {
		return PriceResponse{}, err
	}
	return resp, nil
}

// Quote fetches a firm quote with executable transaction data.
func (c *APIClient) Quote(ctx context.Context, p QuoteParams) (QuoteResponse, error) {
	q := priceQuery(p.PriceParams)
	q.Set("taker", p.Taker)
	q.Set("slippageBps", strconv.Itoa(p.SlippageBps))

	var resp QuoteResponse
	if err := c.get(ctx, "/quote", q, &resp); err != nil {
		return QuoteResponse{}, err
	}
	return resp, nil
}

func priceQuery(p PriceParams) url.Values {
	q := url.Values{}
	q.Set("chainId", strconv.FormatInt(p.ChainID, 10))
	q.Set("sellToken", p.SellToken)
	q.Set("buyToken", p.BuyToken)
	if p.SellAmount != nil {
		q.Set("sellAmount", p.SellAmount.String())
	}
	return q
}

func (c *APIClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("0x-version", apiVersion)
	if c.apiKey != "" {
		req.Header.Set("0x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "swap api request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || (apiErr.Message == "" && apiErr.Reason == "") {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal swap api response")
	}
	return nil
}
