package swap

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_Price(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("0x-api-key")
		gotVersion = r.Header.Get("0x-version")
		_, _ = w.Write([]byte(`{"buyAmount":"50000000000000000","expiresInSeconds":5}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "secret")
	resp, err := c.Price(context.Background(), PriceParams{
		ChainID:    1,
		SellToken:  usdcAddr,
		BuyToken:   wethAddr,
		SellAmount: big.NewInt(100_000_000),
	})
	require.NoError(t, err)

	assert.Equal(t, "/price", gotPath)
	assert.Equal(t, "1", gotQuery.Get("chainId"))
	assert.Equal(t, usdcAddr, gotQuery.Get("sellToken"))
	assert.Equal(t, wethAddr, gotQuery.Get("buyToken"))
	assert.Equal(t, "100000000", gotQuery.Get("sellAmount"))
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "v2", gotVersion)

	assert.Equal(t, "50000000000000000", resp.BuyAmount)
	require.NotNil(t, resp.ExpiresInSeconds)
	assert.Equal(t, 5, *resp.ExpiresInSeconds)
}

func TestAPIClient_Quote(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "flat transaction",
			body: `{"to":"0x0000000000001fF3684f28c67538d4D072C22734","data":"0xdeadbeef","value":"0","gas":"210000",
				"buyAmount":"50000000000000000","issues":{"allowance":{"spender":"0x0000000000001fF3684f28c67538d4D072C22734","actual":"0"}}}`,
		},
		{
			name: "nested transaction",
			body: `{"transaction":{"to":"0x0000000000001fF3684f28c67538d4D072C22734","data":"0xdeadbeef","value":"0","gas":"210000"},
				"buyAmount":"50000000000000000","issues":{"allowance":{"spender":"0x0000000000001fF3684f28c67538d4D072C22734"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery url.Values
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/quote", r.URL.Path)
				gotQuery = r.URL.Query()
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewAPIClient(srv.URL, "").Quote(context.Background(), QuoteParams{
				PriceParams: PriceParams{ChainID: 8453, SellToken: usdcAddr, BuyToken: wethAddr, SellAmount: big.NewInt(1)},
				Taker:       "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
				SlippageBps: 50,
			})
			require.NoError(t, err)

			assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", gotQuery.Get("taker"))
			assert.Equal(t, "50", gotQuery.Get("slippageBps"))
			assert.Equal(t, "8453", gotQuery.Get("chainId"))

			tx := resp.Tx()
			assert.Equal(t, "0x0000000000001fF3684f28c67538d4D072C22734", tx.To)
			assert.Equal(t, "0xdeadbeef", tx.Data)
			assert.Equal(t, "210000", tx.Gas)
			assert.Equal(t, "0x0000000000001fF3684f28c67538d4D072C22734", resp.AllowanceSpender())
		})
	}
}

func TestAPIClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"name":"INPUT_INVALID","message":"sellAmount is too small"}`))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, "").Price(context.Background(), PriceParams{ChainID: 1, SellAmount: big.NewInt(1)})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INPUT_INVALID", apiErr.Name)
	assert.Contains(t, apiErr.Error(), "sellAmount is too small")
}

func TestAPIClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream unavailable`))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, "").Price(context.Background(), PriceParams{ChainID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestQuoteResponse_NoAllowanceIssue(t *testing.T) {
	assert.Empty(t, QuoteResponse{}.AllowanceSpender())
	assert.Empty(t, QuoteResponse{Issues: &Issues{}}.AllowanceSpender())
}
