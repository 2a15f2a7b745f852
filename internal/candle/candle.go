package candle

import (
	"fmt"
	"sort"
	"strconv"
)

// Candle is one OHLC bar. Timestamp is the exchange-native start time of the
// bar (Bybit: unix milliseconds).
type Candle struct {
	Ts     int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a sequence of candles sorted ascending by timestamp.
type Series []Candle

// LastClose returns the close of the most recent candle, or nil for an empty
// series.
func (s Series) LastClose() *float64 {
	if len(s) == 0 {
		return nil
	}
	c := s[len(s)-1].Close
	return &c
}

// ParseRows converts raw kline rows ([start, open, high, low, close, volume,
// turnover] as strings, arbitrary order) into a Series sorted ascending by
// timestamp. A malformed required field fails the whole batch; the caller must
// not work with a partially parsed series. Duplicate timestamps are kept and
// sorted stably.
func ParseRows(rows [][]string) (Series, error) {
	series := make(Series, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("kline row %d: expected at least 5 fields, got %d", i, len(row))
		}

		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kline row %d: parse timestamp %q: %w", i, row[0], err)
		}

		var ohlc [4]float64
		for j := 0; j < 4; j++ {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("kline row %d: parse field %d %q: %w", i, j+1, row[j+1], err)
			}
			ohlc[j] = v
		}

		c := Candle{Ts: ts, Open: ohlc[0], High: ohlc[1], Low: ohlc[2], Close: ohlc[3]}
		if len(row) > 5 {
			// Volume is informational only; a bad value does not fail the batch.
			if v, err := strconv.ParseFloat(row[5], 64); err == nil {
				c.Volume = v
			}
		}
		series = append(series, c)
	}

	sort.SliceStable(series, func(a, b int) bool { return series[a].Ts < series[b].Ts })
	return series, nil
}
