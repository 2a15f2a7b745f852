package levels

import "peakwatch/internal/candle"

// Extrema holds the raw low/high prices flagged by DetectExtrema, in original
// time order. Repeated equal prices are kept; a flat plateau contributes one
// entry per qualifying candle, which is what lets a well-tested level
// accumulate support.
type Extrema struct {
	Lows  []float64
	Highs []float64
}

// DetectExtrema scans a sorted series with the 3-candle neighborhood rule:
// an interior candle is a local low iff its low is <= both neighbors' lows,
// and a local high iff its high is >= both neighbors' highs. A candle can be
// both. The first and last candles have no full neighborhood and are never
// classified, so any series shorter than 3 yields nothing.
func DetectExtrema(series candle.Series) Extrema {
	ex := Extrema{Lows: []float64{}, Highs: []float64{}}
	for i := 1; i+1 < len(series); i++ {
		prev, cur, next := series[i-1], series[i], series[i+1]
		if cur.Low <= prev.Low && cur.Low <= next.Low {
			ex.Lows = append(ex.Lows, cur.Low)
		}
		if cur.High >= prev.High && cur.High >= next.High {
			ex.Highs = append(ex.Highs, cur.High)
		}
	}
	return ex
}
