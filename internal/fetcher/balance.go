package fetcher

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	walletBalancePath = "/v5/account/wallet-balance"
	recvWindowMillis  = "5000"
)

// ErrBalanceUnavailable indicates that no account category returned a usable
// balance (bad keys, missing permissions, IP whitelist). Recoverable.
var ErrBalanceUnavailable = errors.New("fetcher: balance unavailable")

// defaultAccountTypes is the fallback order tried until one succeeds.
var defaultAccountTypes = []string{"UNIFIED", "CONTRACT", "SPOT"}

// BalanceOptions parameterise the Bybit wallet-balance fetcher.
type BalanceOptions struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	Coin         string
	AccountTypes []string
	Timeout      time.Duration
}

// Balance reads the wallet balance from the Bybit V5 private API, signing
// requests with the stored credentials.
type Balance struct {
	opts    BalanceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewBalance constructs a balance fetcher.
func NewBalance(opts BalanceOptions, logger zerolog.Logger) *Balance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	if opts.Coin == "" {
		opts.Coin = "USDT"
	}
	if len(opts.AccountTypes) == 0 {
		opts.AccountTypes = defaultAccountTypes
	}

	return &Balance{
		opts:    opts,
		logger:  logger.With().Str("component", "balance_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		now:     time.Now,
	}
}

// FetchBalance tries each configured account category in order and returns the
// first balance found. Per-category failures are logged and skipped; if every
// category fails the overall result is ErrBalanceUnavailable.
func (b *Balance) FetchBalance(ctx context.Context) (float64, error) {
	if b.opts.APIKey == "" || b.opts.APISecret == "" {
		return 0, fmt.Errorf("%w: api credentials not configured", ErrBalanceUnavailable)
	}

	for _, accountType := range b.opts.AccountTypes {
		value, err := b.fetchAccountType(ctx, accountType)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			b.logger.Debug().Err(err).Str("account_type", accountType).Msg("balance lookup failed, trying next category")
			continue
		}
		return value, nil
	}
	return 0, ErrBalanceUnavailable
}

func (b *Balance) fetchAccountType(ctx context.Context, accountType string) (float64, error) {
	query := fmt.Sprintf("accountType=%s&coin=%s", accountType, b.opts.Coin)
	endpoint := fmt.Sprintf("%s%s?%s", b.baseURL, walletBalancePath, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-BAPI-API-KEY", b.opts.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindowMillis)
	req.Header.Set("X-BAPI-SIGN", b.sign(timestamp, query))

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, parseAPIError(resp.StatusCode, payload)
	}

	var env walletBalanceResponse
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, fmt.Errorf("decode wallet balance response: %w", err)
	}
	if env.RetCode != 0 {
		return 0, fmt.Errorf("bybit api error (%d): %s", env.RetCode, env.RetMsg)
	}
	if len(env.Result.List) == 0 {
		return 0, fmt.Errorf("no %s account in response", accountType)
	}

	for _, coin := range env.Result.List[0].Coin {
		if coin.Coin != b.opts.Coin {
			continue
		}
		value, err := strconv.ParseFloat(coin.WalletBalance, 64)
		if err != nil {
			return 0, fmt.Errorf("parse wallet balance %q: %w", coin.WalletBalance, err)
		}
		return value, nil
	}

	// Account exists but holds none of the coin: a real zero, not a failure.
	return 0, nil
}

// sign computes the V5 request signature over timestamp+key+recvWindow+query.
func (b *Balance) sign(timestamp, query string) string {
	mac := hmac.New(sha256.New, []byte(b.opts.APISecret))
	mac.Write([]byte(timestamp + b.opts.APIKey + recvWindowMillis + query))
	return hex.EncodeToString(mac.Sum(nil))
}

type walletBalanceResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			AccountType string `json:"accountType"`
			Coin        []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	} `json:"result"`
}

var _ BalanceFetcher = (*Balance)(nil)
