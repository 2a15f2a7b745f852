package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"peakwatch/internal/alerting"
	"peakwatch/internal/service"
)

const startReply = `✅ Bot is running.
Commands:
/now — price + peaks right now
/peaks — top min/max levels
/balance — quote balance`

// commandHandler builds the dispatch for inbound chat commands. Every command
// resolves levels on demand through the service, bypassing deduplication.
func (a *App) commandHandler(svc *service.Service) alerting.CommandHandler {
	return func(ctx context.Context, command string) string {
		// Strip a possible @botname suffix.
		if i := strings.IndexByte(command, '@'); i > 0 {
			command = command[:i]
		}

		switch command {
		case "/start":
			return startReply
		case "/now":
			return a.answerNow(ctx, svc)
		case "/peaks":
			return a.answerPeaks(ctx, svc)
		case "/balance":
			return a.answerBalance(ctx, svc)
		default:
			return ""
		}
	}
}

func (a *App) answerNow(ctx context.Context, svc *service.Service) string {
	peaks, err := svc.Resolve(ctx)
	if err != nil {
		return fmt.Sprintf("⚠️ query failed: %v", err)
	}

	opts := svc.ResolverOptions()
	note := alerting.Notification{
		Symbol:   opts.Symbol,
		Interval: opts.Interval,
		EpsPct:   opts.Eps,
		Min:      peaks.Min,
		Max:      peaks.Max,
	}
	return fmt.Sprintf("⏱ %s\n📊 %s %sm\n• Price: %s\n%s",
		time.Now().Format("2006-01-02 15:04:05"),
		opts.Symbol, opts.Interval,
		alerting.FormatPrice(peaks.LastClose),
		levelLines(note))
}

func (a *App) answerPeaks(ctx context.Context, svc *service.Service) string {
	peaks, err := svc.Resolve(ctx)
	if err != nil {
		return fmt.Sprintf("⚠️ query failed: %v", err)
	}

	opts := svc.ResolverOptions()
	note := alerting.Notification{Min: peaks.Min, Max: peaks.Max}
	return fmt.Sprintf("📈 Peaks (cluster %.1f%%):\n%s", opts.Eps*100, levelLines(note))
}

func (a *App) answerBalance(ctx context.Context, svc *service.Service) string {
	if !svc.HasBalanceFetcher() {
		return "⚠️ Balance unavailable: no API credentials configured"
	}
	balance := svc.FetchBalance(ctx)
	if balance == nil {
		return "⚠️ Balance unavailable: check keys, Read permission, IP whitelist and testnet flag"
	}
	return fmt.Sprintf("💰 %s balance: %s", a.Config.Bybit.BalanceCoin, alerting.FormatPrice(balance))
}

func levelLines(note alerting.Notification) string {
	minPrice, minSupport := "n/a", 0
	if note.Min != nil {
		minPrice = alerting.FormatPrice(&note.Min.Price)
		minSupport = note.Min.Support
	}
	maxPrice, maxSupport := "n/a", 0
	if note.Max != nil {
		maxPrice = alerting.FormatPrice(&note.Max.Price)
		maxSupport = note.Max.Support
	}
	return fmt.Sprintf("• Min:  %s (x%d)\n• Max: %s (x%d)", minPrice, minSupport, maxPrice, maxSupport)
}
