// Package collector fetches OHLCV candles for the chart from DEX and CEX market-data sources.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

const (
	defaultGeckoTerminalURL = "https://api.geckoterminal.com/api/v2"
	defaultHTTPTimeout      = 15 * time.Second
	maxGeckoTerminalLimit   = 1000
)

// CandleProvider fetches candles of one market. The market itself is bound at construction.
type CandleProvider interface {
	// GetCandles returns at most limit candles of the given timeframe.
	// The result is not required to be sorted or deduplicated.
	GetCandles(ctx context.Context, timeframe domain.Timeframe, limit int) ([]domain.Candle, error)
}

// GeckoTerminalProvider reads pool OHLCV from the GeckoTerminal public API.
type GeckoTerminalProvider struct {
	baseURL    string
	network    string
	pool       string
	httpClient *http.Client
}

// NewGeckoTerminalProvider creates a provider for a pool on the given network (e.g. "eth", "base").
func NewGeckoTerminalProvider(baseURL, network, pool string) *GeckoTerminalProvider {
	if baseURL == "" {
		baseURL = defaultGeckoTerminalURL
	}
	return &GeckoTerminalProvider{
		baseURL:    baseURL,
		network:    network,
		pool:       pool,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type geckoOHLCVResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList [][]json.Number `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
	} `json:"errors,omitempty"`
}

// GetCandles fetches pool candles; rows arrive newest first.
func (p *GeckoTerminalProvider) GetCandles(ctx context.Context, timeframe domain.Timeframe, limit int) ([]domain.Candle, error) {
	period, aggregate, err := geckoTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxGeckoTerminalLimit {
		limit = maxGeckoTerminalLimit
	}

	q := url.Values{}
	q.Set("aggregate", fmt.Sprintf("%d", aggregate))
	q.Set("limit", fmt.Sprintf("%d", limit))
	endpoint := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/%s?%s",
		p.baseURL, url.PathEscape(p.network), url.PathEscape(p.pool), period, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "geckoterminal request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geckoterminal returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed geckoOHLCVResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal ohlcv response")
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("geckoterminal error: %s (status %s)", parsed.Errors[0].Title, parsed.Errors[0].Status)
	}

	rows := parsed.Data.Attributes.OHLCVList
	out := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, errors.Errorf("malformed ohlcv row at index %d", i)
		}
		ts, err := row[0].Int64()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse timestamp at index %d", i)
		}
		volume := "0"
		if len(row) > 5 {
			volume = row[5].String()
		}
		candle, err := parseCandle(ts, row[1].String(), row[2].String(), row[3].String(), row[4].String(), volume)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out = append(out, candle)
	}

	return out, nil
}

// geckoTimeframe maps a timeframe onto GeckoTerminal's period/aggregate pair.
func geckoTimeframe(tf domain.Timeframe) (string, int, error) {
	d, err := tf.Duration()
	if err != nil {
		return "", 0, err
	}
	switch {
	case d < time.Hour && time.Hour%d == 0:
		return "minute", int(d / time.Minute), nil
	case d < 24*time.Hour && (24*time.Hour)%d == 0:
		return "hour", int(d / time.Hour), nil
	case d == 24*time.Hour:
		return "day", 1, nil
	default:
		return "", 0, fmt.Errorf("timeframe %s is not supported by geckoterminal", tf)
	}
}

// parseCandle builds a candle from decimal strings as returned by exchange APIs.
func parseCandle(ts int64, open, high, low, closeP, volume string) (domain.Candle, error) {
	values := make([]float64, 5)
	for i, s := range []string{open, high, low, closeP, volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, errors.Wrapf(err, "failed to parse %q", s)
		}
		values[i] = d.InexactFloat64()
	}
	return domain.Candle{
		Time:   ts,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
