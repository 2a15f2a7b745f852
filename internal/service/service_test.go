package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"peakwatch/internal/alerting"
	"peakwatch/internal/candle"
	"peakwatch/internal/levels"
)

type seriesFetcher struct {
	mu     sync.Mutex
	series candle.Series
	err    error
}

func (f *seriesFetcher) FetchKlines(ctx context.Context, symbol, interval string, limit int) (candle.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.series, f.err
}

func (f *seriesFetcher) set(series candle.Series) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series = series
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

func (n *recordingNotifier) last() alerting.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notes[len(n.notes)-1]
}

type staticBalance struct {
	value float64
	err   error
}

func (b *staticBalance) FetchBalance(ctx context.Context) (float64, error) {
	return b.value, b.err
}

// flatSeries builds candles whose interior plateau produces deterministic
// min/max levels at low and high, closing at price.
func flatSeries(low, high, price float64) candle.Series {
	mid := (low + high) / 2
	values := []float64{mid, low, low, low, mid, high, high, high, mid}
	out := make(candle.Series, 0, len(values))
	for i, v := range values {
		out = append(out, candle.Candle{Ts: int64(i + 1), Open: v, High: v, Low: v, Close: v})
	}
	out[len(out)-1].Close = price
	return out
}

func newTestService(f *seriesFetcher, notifier alerting.Notifier, balance *staticBalance, alertPct float64) *Service {
	resolver := levels.NewResolver(f, levels.ResolverOptions{
		Symbol:   "BTCUSDT",
		Interval: "1",
		Limit:    200,
		Eps:      0.008,
	}, zerolog.Nop())

	svc := New(resolver, nil, nil, nil, notifier, Options{AlertPct: alertPct}, zerolog.Nop())
	if balance != nil {
		svc.balance = balance
	}
	return svc
}

func TestTickEmitsThenSuppresses(t *testing.T) {
	fetcher := &seriesFetcher{series: flatSeries(100, 110, 105)}
	notifier := &recordingNotifier{}
	svc := newTestService(fetcher, notifier, nil, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("first tick should succeed: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("first tick must emit, got %d notifications", notifier.count())
	}

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("second tick should succeed: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("identical state must be suppressed, got %d notifications", notifier.count())
	}
}

func TestTickRearmsOnRoundedChange(t *testing.T) {
	// 100.004 and 100.006 both round to 100.00 at two decimals: no re-emit.
	// 100.01 moves the rounding: re-emit.
	fetcher := &seriesFetcher{series: flatSeries(100.004, 110, 105)}
	notifier := &recordingNotifier{}
	svc := newTestService(fetcher, notifier, nil, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	fetcher.set(flatSeries(100.006, 110, 105))
	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("sub-rounding churn must stay silent, got %d emissions", notifier.count())
	}

	fetcher.set(flatSeries(100.01, 110, 105))
	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if notifier.count() != 2 {
		t.Fatalf("rounded change must re-arm, got %d emissions", notifier.count())
	}
}

func TestTickProximityFlags(t *testing.T) {
	// price 100 vs min 99.9: 0.1/99.9 ≈ 0.001 <= 0.002 → nearMin. Max 110 is
	// far away.
	fetcher := &seriesFetcher{series: flatSeries(99.9, 110, 100)}
	notifier := &recordingNotifier{}
	svc := newTestService(fetcher, notifier, nil, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	note := notifier.last()
	if !note.NearMin {
		t.Fatal("expected nearMin flag")
	}
	if note.NearMax {
		t.Fatal("nearMax must be false for a distant level")
	}
}

func TestTickBothFlagsPossible(t *testing.T) {
	// Levels 0.1% apart with price between them: both flags fire.
	fetcher := &seriesFetcher{series: flatSeries(100, 100.1, 100.05)}
	notifier := &recordingNotifier{}
	svc := newTestService(fetcher, notifier, nil, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	note := notifier.last()
	if !note.NearMin || !note.NearMax {
		t.Fatalf("expected both proximity flags, got %+v", note)
	}
}

func TestTickResolveFailureLeavesSignature(t *testing.T) {
	fetcher := &seriesFetcher{series: flatSeries(100, 110, 105)}
	notifier := &recordingNotifier{}
	svc := newTestService(fetcher, notifier, nil, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	sigBefore := svc.LastSignature()

	fetcher.mu.Lock()
	fetcher.err = errors.New("exchange unreachable")
	fetcher.mu.Unlock()

	if err := svc.Tick(context.Background(), time.Now()); err == nil {
		t.Fatal("failed resolution must surface an error")
	}

	sigAfter := svc.LastSignature()
	if sigBefore == nil || sigAfter == nil || !sigBefore.Equal(*sigAfter) {
		t.Fatalf("signature must be untouched by a failed tick: %+v vs %+v", sigBefore, sigAfter)
	}

	// The destination received a one-line diagnostic, not an alert.
	if notifier.count() != 2 {
		t.Fatalf("expected diagnostic delivery, got %d notifications", notifier.count())
	}
	if notifier.last().Diagnostic == "" {
		t.Fatal("expected a diagnostic message")
	}
}

func TestTickNotifyFailureLeavesSignature(t *testing.T) {
	fetcher := &seriesFetcher{series: flatSeries(100, 110, 105)}
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	svc := newTestService(fetcher, notifier, nil, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err == nil {
		t.Fatal("failed emission must surface an error")
	}
	if svc.LastSignature() != nil {
		t.Fatal("signature must not be stored when emission failed")
	}

	notifier.mu.Lock()
	notifier.err = nil
	notifier.mu.Unlock()

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("retry tick should emit: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one successful emission, got %d", notifier.count())
	}
}

func TestTickBalanceUnavailableDegrades(t *testing.T) {
	fetcher := &seriesFetcher{series: flatSeries(100, 110, 105)}
	notifier := &recordingNotifier{}
	balance := &staticBalance{err: errors.New("401 unauthorized")}
	svc := newTestService(fetcher, notifier, balance, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("balance failure must not abort the tick: %v", err)
	}

	note := notifier.last()
	if note.Balance != nil {
		t.Fatalf("balance should be absent, got %v", *note.Balance)
	}
	if !note.BalanceUnavailable {
		t.Fatal("expected balance reported as unavailable")
	}
}

func TestTickBalanceChangeRearms(t *testing.T) {
	fetcher := &seriesFetcher{series: flatSeries(100, 110, 105)}
	notifier := &recordingNotifier{}
	balance := &staticBalance{value: 1000}
	svc := newTestService(fetcher, notifier, balance, 0.002)

	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("unchanged balance must not re-emit, got %d", notifier.count())
	}

	balance.value = 1250.50
	if err := svc.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if notifier.count() != 2 {
		t.Fatalf("balance change must re-arm, got %d emissions", notifier.count())
	}
}

func TestConcurrentTicksEmitOnce(t *testing.T) {
	fetcher := &seriesFetcher{series: flatSeries(100, 110, 105)}
	notifier := &recordingNotifier{}
	svc := newTestService(fetcher, notifier, nil, 0.002)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Tick(context.Background(), time.Now())
		}()
	}
	wg.Wait()

	if notifier.count() != 1 {
		t.Fatalf("concurrent identical ticks must emit exactly once, got %d", notifier.count())
	}
}
