package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"peakwatch/internal/candle"
)

const klinePath = "/v5/market/kline"

// BybitOptions parameterise the Bybit V5 market-data fetcher.
type BybitOptions struct {
	BaseURL   string
	Category  string
	Timeout   time.Duration
	UserAgent string
}

// Bybit fetches spot klines from the Bybit V5 REST API.
type Bybit struct {
	opts    BybitOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBybit constructs a market-data fetcher.
func NewBybit(opts BybitOptions, logger zerolog.Logger) *Bybit {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	if opts.Category == "" {
		opts.Category = "spot"
	}

	return &Bybit{
		opts:    opts,
		logger:  logger.With().Str("component", "kline_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchKlines retrieves up to limit candles for symbol/interval and returns
// them normalized into a time-ordered series.
func (b *Bybit) FetchKlines(ctx context.Context, symbol, interval string, limit int) (candle.Series, error) {
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol and interval required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	endpoint := fmt.Sprintf("%s%s?category=%s&symbol=%s&interval=%s&limit=%d",
		b.baseURL, klinePath, b.opts.Category, symbol, interval, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "peakwatch/1.0")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, payload)
	}

	var env klineResponse
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode kline response: %w", err)
	}
	if env.RetCode != 0 {
		return nil, fmt.Errorf("bybit api error (%d): %s", env.RetCode, env.RetMsg)
	}

	series, err := candle.ParseRows(env.Result.List)
	if err != nil {
		return nil, err
	}

	b.logger.Debug().Str("symbol", symbol).Str("interval", interval).
		Int("candles", len(series)).Msg("klines fetched")
	return series, nil
}

type klineResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string     `json:"category"`
		Symbol   string     `json:"symbol"`
		List     [][]string `json:"list"`
	} `json:"result"`
}

func parseAPIError(status int, payload []byte) error {
	var apiErr struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.RetMsg != "" {
		return fmt.Errorf("bybit api error (%d, retCode %s): %s", status, strconv.Itoa(apiErr.RetCode), apiErr.RetMsg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("bybit api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("bybit api error (%d)", status)
}

var _ KlineFetcher = (*Bybit)(nil)
