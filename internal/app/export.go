package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"peakwatch/internal/storage"
)

// Export renders historical level samples as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.LevelSample, max int) []storage.LevelSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.LevelSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.LevelSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "symbol", "interval", "min_price", "min_support", "max_price", "max_support", "last_close", "balance", "status", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = *sample.Error
		}
		record := []string{
			sample.Bucket.Format(time.RFC3339),
			sample.Symbol,
			sample.Interval,
			optionalFixed(sample.MinPrice, 4),
			strconv.Itoa(sample.MinSupport),
			optionalFixed(sample.MaxPrice, 4),
			strconv.Itoa(sample.MaxSupport),
			optionalFixed(sample.LastClose, 4),
			optionalFixed(sample.Balance, 2),
			sample.Status,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.LevelSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	// Chart series only carry points where the value existed; go-chart cannot
	// render holes.
	minX, minY := seriesOf(samples, func(s storage.LevelSample) *float64 { return optionalFloat(s.MinPrice) })
	maxX, maxY := seriesOf(samples, func(s storage.LevelSample) *float64 { return optionalFloat(s.MaxPrice) })
	closeX, closeY := seriesOf(samples, func(s storage.LevelSample) *float64 { return optionalFloat(s.LastClose) })

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Min level",
				XValues: minX,
				YValues: minY,
			},
			chart.TimeSeries{
				Name:    "Max level",
				XValues: maxX,
				YValues: maxY,
			},
			chart.TimeSeries{
				Name:    "Close",
				XValues: closeX,
				YValues: closeY,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func seriesOf(samples []storage.LevelSample, pick func(storage.LevelSample) *float64) ([]time.Time, []float64) {
	var xs []time.Time
	var ys []float64
	for _, sample := range samples {
		if v := pick(sample); v != nil {
			xs = append(xs, sample.Bucket)
			ys = append(ys, *v)
		}
	}
	return xs, ys
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func optionalFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}
