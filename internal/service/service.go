package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"peakwatch/internal/alerting"
	"peakwatch/internal/fetcher"
	"peakwatch/internal/levels"
	"peakwatch/internal/storage"
)

// Service owns the alert state machine: it resolves peak levels on every
// tick, deduplicates against the last emitted signature, and dispatches
// proximity alerts. lastSig is the single piece of shared mutable state; the
// mutex covers compute candidate -> compare -> emit -> store, so overlapping
// ticks cannot double-emit.
type Service struct {
	resolver    *levels.Resolver
	balance     fetcher.BalanceFetcher
	sampleStore storage.LevelSampleStore
	alertStore  storage.AlertStore
	notifier    alerting.Notifier
	logger      zerolog.Logger

	alertPct float64
	locker   storage.AdvisoryLocker
	lockKey  int64

	mu      sync.Mutex
	lastSig *Signature
}

// Options configure the service beyond its collaborators.
type Options struct {
	AlertPct        float64
	AdvisoryLockKey int64
}

// New constructs the alert service. balance may be nil (deployment without
// credentials); sampleStore, alertStore and notifier may be nil as well, each
// disabling its concern.
func New(resolver *levels.Resolver, balance fetcher.BalanceFetcher, sampleStore storage.LevelSampleStore, alertStore storage.AlertStore, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := sampleStore.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		resolver:    resolver,
		balance:     balance,
		sampleStore: sampleStore,
		alertStore:  alertStore,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		alertPct:    opts.AlertPct,
		locker:      locker,
		lockKey:     opts.AdvisoryLockKey,
	}
}

// Resolve runs one on-demand resolution pass, bypassing deduplication.
func (s *Service) Resolve(ctx context.Context) (levels.PeakLevels, error) {
	return s.resolver.Resolve(ctx)
}

// ResolverOptions exposes the resolution parameters for presentation.
func (s *Service) ResolverOptions() levels.ResolverOptions {
	return s.resolver.Options()
}

// FetchBalance looks up the quote balance. Returns nil when no balance
// fetcher is configured or none of the account categories succeeded; that is
// the "balance unavailable" condition, not an error.
func (s *Service) FetchBalance(ctx context.Context) *float64 {
	if s.balance == nil {
		return nil
	}
	value, err := s.balance.FetchBalance(ctx)
	if err != nil {
		if !errors.Is(err, fetcher.ErrBalanceUnavailable) {
			s.logger.Warn().Err(err).Msg("balance lookup failed")
		}
		return nil
	}
	return &value
}

// HasBalanceFetcher reports whether this deployment includes a balance
// collaborator (and hence a balance component in the alert signature).
func (s *Service) HasBalanceFetcher() bool {
	return s.balance != nil
}

// Tick executes one scheduled alert evaluation.
func (s *Service) Tick(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.evaluate(ctx, bucket)
}

func (s *Service) evaluate(ctx context.Context, bucket time.Time) error {
	opts := s.resolver.Options()

	peaks, err := s.resolver.Resolve(ctx)
	if err != nil {
		// A failed resolution aborts only this tick. The signature stays
		// untouched so the next tick retries cleanly; the destination gets a
		// one-line diagnostic.
		s.recordErroredSample(ctx, bucket, opts, err)
		if s.notifier != nil {
			diag := alerting.Notification{Diagnostic: fmt.Sprintf("alert tick failed: %v", err)}
			if notifyErr := s.notifier.Notify(ctx, diag); notifyErr != nil {
				s.logger.Error().Err(notifyErr).Msg("failed to deliver diagnostic")
			}
		}
		return fmt.Errorf("resolve levels: %w", err)
	}

	balance := s.FetchBalance(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := NewSignature(peaks, balance, s.balance != nil)
	if s.lastSig != nil && candidate.Equal(*s.lastSig) {
		s.logger.Debug().Time("bucket", bucket).Msg("alert suppressed, signature unchanged")
		s.recordSample(ctx, bucket, opts, peaks, balance, "suppressed")
		return nil
	}

	nearMin := s.near(peaks.LastClose, peaks.Min)
	nearMax := s.near(peaks.LastClose, peaks.Max)

	if s.notifier != nil {
		note := alerting.Notification{
			Time:               bucket,
			Symbol:             opts.Symbol,
			Interval:           opts.Interval,
			EpsPct:             opts.Eps,
			Min:                peaks.Min,
			Max:                peaks.Max,
			Price:              peaks.LastClose,
			Balance:            balance,
			BalanceUnavailable: s.balance != nil && balance == nil,
			NearMin:            nearMin,
			NearMax:            nearMax,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			// Emission failed: leave the signature untouched so the alert is
			// retried on the next change-free tick.
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch alert")
			s.recordErroredSample(ctx, bucket, opts, err)
			return fmt.Errorf("dispatch alert: %w", err)
		}
	}

	s.lastSig = &candidate
	s.recordSample(ctx, bucket, opts, peaks, balance, "emitted")
	s.recordAlert(ctx, bucket, opts, candidate, nearMin, nearMax)

	s.logger.Info().Time("bucket", bucket).
		Bool("near_min", nearMin).
		Bool("near_max", nearMax).
		Msg("alert emitted")
	return nil
}

// near reports whether price sits within the alert band of a level. Both the
// price and the level must be present.
func (s *Service) near(price *float64, level *levels.Level) bool {
	if price == nil || level == nil || level.Price == 0 {
		return false
	}
	d := *price - level.Price
	if d < 0 {
		d = -d
	}
	return d/level.Price <= s.alertPct
}

// LastSignature returns a copy of the last emitted signature, if any.
func (s *Service) LastSignature() *Signature {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSig == nil {
		return nil
	}
	sig := *s.lastSig
	return &sig
}

func (s *Service) recordSample(ctx context.Context, bucket time.Time, opts levels.ResolverOptions, peaks levels.PeakLevels, balance *float64, status string) {
	if s.sampleStore == nil {
		return
	}

	sample := storage.LevelSample{
		Bucket:    bucket,
		Symbol:    opts.Symbol,
		Interval:  opts.Interval,
		LastClose: toDecimal(peaks.LastClose),
		Balance:   toDecimal(balance),
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if peaks.Min != nil {
		sample.MinPrice = toDecimal(&peaks.Min.Price)
		sample.MinSupport = peaks.Min.Support
	}
	if peaks.Max != nil {
		sample.MaxPrice = toDecimal(&peaks.Max.Price)
		sample.MaxSupport = peaks.Max.Support
	}

	if err := s.sampleStore.UpsertLevelSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist level sample")
	}
}

func (s *Service) recordErroredSample(ctx context.Context, bucket time.Time, opts levels.ResolverOptions, cause error) {
	if s.sampleStore == nil {
		return
	}

	msg := cause.Error()
	sample := storage.LevelSample{
		Bucket:    bucket,
		Symbol:    opts.Symbol,
		Interval:  opts.Interval,
		Status:    "errored",
		Error:     &msg,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sampleStore.UpsertLevelSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist errored sample")
	}
}

func (s *Service) recordAlert(ctx context.Context, bucket time.Time, opts levels.ResolverOptions, sig Signature, nearMin, nearMax bool) {
	if s.alertStore == nil {
		return
	}

	record := storage.AlertRecord{
		SampleTS:   bucket,
		Symbol:     opts.Symbol,
		MinPrice:   sig.MinPrice,
		MinSupport: sig.MinSupport,
		MaxPrice:   sig.MaxPrice,
		MaxSupport: sig.MaxSupport,
		NearMin:    nearMin,
		NearMax:    nearMax,
	}
	if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist alert record")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func toDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
