package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"peakwatch/internal/alerting"
	"peakwatch/internal/levels"
)

// Now resolves current levels once and prints them with the latest price.
// This is the synchronous query path; the deduplicator is not involved.
func (a *App) Now(ctx context.Context) error {
	svc := a.newService(nil, nil)

	peaks, err := svc.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve levels: %w", err)
	}

	opts := svc.ResolverOptions()
	fmt.Fprintf(os.Stdout, "⏱ %s\n📊 %s %sm\n• Price: %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		opts.Symbol, opts.Interval,
		alerting.FormatPrice(peaks.LastClose))
	printLevels(peaks.Min, peaks.Max)
	return nil
}

// Peaks resolves and prints the top min/max clusters.
func (a *App) Peaks(ctx context.Context) error {
	svc := a.newService(nil, nil)

	peaks, err := svc.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve levels: %w", err)
	}

	fmt.Fprintf(os.Stdout, "📈 Peaks (cluster %.1f%%):\n", svc.ResolverOptions().Eps*100)
	printLevels(peaks.Min, peaks.Max)
	return nil
}

// Balance looks up and prints the quote balance.
func (a *App) Balance(ctx context.Context) error {
	svc := a.newService(nil, nil)
	if !svc.HasBalanceFetcher() {
		return errors.New("bybit.api_key/api_secret not configured")
	}

	balance := svc.FetchBalance(ctx)
	if balance == nil {
		fmt.Fprintln(os.Stdout, "balance unavailable: check keys, Read permission, IP whitelist and testnet flag")
		return nil
	}
	fmt.Fprintf(os.Stdout, "💰 %s balance: %s\n", a.Config.Bybit.BalanceCoin, alerting.FormatPrice(balance))
	return nil
}

func printLevels(min, max *levels.Level) {
	note := alerting.Notification{Min: min, Max: max}
	fmt.Fprintln(os.Stdout, levelLines(note))
}
