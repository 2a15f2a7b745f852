package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"peakwatch/internal/storage"
)

// Show prints recent persisted samples or alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlerts(ctx, store, opts.Limit)
	}
	return a.showSamples(ctx, store, opts.Limit)
}

func (a *App) showSamples(ctx context.Context, store storage.LevelSampleStore, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tMin\tSup\tMax\tSup\tClose\tBalance\tStatus\tError")

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = sanitizeInline(*sample.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			sample.Bucket.UTC().Format(time.RFC3339),
			sample.Symbol,
			optionalFixed(sample.MinPrice, 2),
			sample.MinSupport,
			optionalFixed(sample.MaxPrice, 2),
			sample.MaxSupport,
			optionalFixed(sample.LastClose, 2),
			optionalFixed(sample.Balance, 2),
			sample.Status,
			errMsg,
		)
	}

	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tMin\tSup\tMax\tSup\tNearMin\tNearMax")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%d\t%v\t%v\n",
			alert.SampleTS.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.MinPrice.StringFixed(2),
			alert.MinSupport,
			alert.MaxPrice.StringFixed(2),
			alert.MaxSupport,
			alert.NearMin,
			alert.NearMax,
		)
	}

	return writer.Flush()
}

func optionalFixed(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
