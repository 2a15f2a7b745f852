package app

import (
	"context"
	"errors"
	"time"

	"peakwatch/internal/candle"
	"peakwatch/internal/fetcher"
	"peakwatch/internal/levels"
	"peakwatch/internal/service"
)

// SimulateAlert pushes a synthetic candle set through the real resolution,
// deduplication and notification path. Useful for verifying channel wiring
// without live market data.
func (a *App) SimulateAlert(ctx context.Context, min, max, price float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	resolver := levels.NewResolver(&staticKlineFetcher{min: min, max: max, price: price}, levels.ResolverOptions{
		Symbol:   a.Config.Watch.Symbol,
		Interval: a.Config.Watch.Interval,
		Limit:    a.Config.Watch.Limit,
		Eps:      a.Config.Watch.ClusterEps,
	}, a.Logger)

	svc := service.New(resolver, nil, nil, nil, notifier, service.Options{
		AlertPct: a.Config.Watch.AlertPct,
	}, a.Logger)

	return svc.Tick(ctx, time.Now().UTC())
}

// staticKlineFetcher synthesises a series with one clear low and high plateau
// so the resolver reports min/max at the requested prices.
type staticKlineFetcher struct {
	min, max, price float64
}

func (s *staticKlineFetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) (candle.Series, error) {
	mid := (s.min + s.max) / 2
	values := []float64{mid, s.min, s.min, s.min, mid, s.max, s.max, s.max, mid}
	series := make(candle.Series, 0, len(values))
	for i, v := range values {
		series = append(series, candle.Candle{Ts: int64(i + 1), Open: v, High: v, Low: v, Close: v})
	}
	series[len(series)-1].Close = s.price
	return series, nil
}

var _ fetcher.KlineFetcher = (*staticKlineFetcher)(nil)
