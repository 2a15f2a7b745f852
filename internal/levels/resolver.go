package levels

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"peakwatch/internal/fetcher"
)

// PeakLevels is the outcome of one resolution pass. Nil fields mean "no
// discernible level yet" (or an empty series for LastClose), which is distinct
// from a zero-support level.
type PeakLevels struct {
	Min       *Level
	Max       *Level
	LastClose *float64
}

// ResolverOptions parameterise a resolution pass.
type ResolverOptions struct {
	Symbol   string
	Interval string
	Limit    int
	Eps      float64
}

// Resolver derives peak support/resistance levels from exchange candles:
// fetch -> detect extrema -> cluster lows and highs independently -> pick the
// highest-support cluster on each side.
type Resolver struct {
	klines fetcher.KlineFetcher
	opts   ResolverOptions
	logger zerolog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(klines fetcher.KlineFetcher, opts ResolverOptions, logger zerolog.Logger) *Resolver {
	return &Resolver{
		klines: klines,
		opts:   opts,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Options returns the resolution parameters in use.
func (r *Resolver) Options() ResolverOptions {
	return r.opts
}

// Resolve runs one pass. It is read-only and idempotent: with unchanged
// upstream candles, repeated calls return identical results. An empty candle
// series is a valid outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context) (PeakLevels, error) {
	if r.opts.Eps <= 0 || r.opts.Eps >= 1 {
		return PeakLevels{}, fmt.Errorf("cluster eps %v outside (0,1)", r.opts.Eps)
	}

	series, err := r.klines.FetchKlines(ctx, r.opts.Symbol, r.opts.Interval, r.opts.Limit)
	if err != nil {
		return PeakLevels{}, fmt.Errorf("fetch klines: %w", err)
	}

	ex := DetectExtrema(series)

	lowClusters, err := Cluster(ex.Lows, r.opts.Eps)
	if err != nil {
		return PeakLevels{}, fmt.Errorf("cluster lows: %w", err)
	}
	highClusters, err := Cluster(ex.Highs, r.opts.Eps)
	if err != nil {
		return PeakLevels{}, fmt.Errorf("cluster highs: %w", err)
	}

	result := PeakLevels{LastClose: series.LastClose()}
	if len(lowClusters) > 0 {
		top := lowClusters[0]
		result.Min = &top
	}
	if len(highClusters) > 0 {
		top := highClusters[0]
		result.Max = &top
	}

	r.logger.Debug().
		Int("candles", len(series)).
		Int("low_extrema", len(ex.Lows)).
		Int("high_extrema", len(ex.Highs)).
		Msg("resolution pass complete")

	return result, nil
}
