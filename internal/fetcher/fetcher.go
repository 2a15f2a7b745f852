package fetcher

import (
	"context"

	"peakwatch/internal/candle"
)

// KlineFetcher retrieves OHLC candles for a symbol from the exchange.
type KlineFetcher interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) (candle.Series, error)
}

// BalanceFetcher retrieves the available quote-asset balance using stored
// credentials. Implementations return ErrBalanceUnavailable when no account
// category yields a balance; callers report that inline, they do not crash.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context) (float64, error)
}
