package candle

import (
	"testing"
)

func TestParseRowsSortsAscending(t *testing.T) {
	rows := [][]string{
		{"3000", "10", "11", "9", "10.5", "100", "1"},
		{"1000", "9", "10", "8", "9.5", "100", "1"},
		{"2000", "9.5", "10.5", "8.5", "10", "100", "1"},
	}

	series, err := ParseRows(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Ts < series[i-1].Ts {
			t.Fatalf("series not sorted at index %d", i)
		}
	}
	if series[0].Close != 9.5 {
		t.Fatalf("expected oldest close 9.5, got %v", series[0].Close)
	}
}

func TestParseRowsKeepsDuplicateTimestamps(t *testing.T) {
	rows := [][]string{
		{"1000", "1", "2", "0.5", "1.5", "1", "1"},
		{"1000", "2", "3", "1.5", "2.5", "1", "1"},
	}

	series, err := ParseRows(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("duplicates must be kept, got %d candles", len(series))
	}
	// Stable sort preserves upstream order for equal timestamps.
	if series[0].Open != 1 || series[1].Open != 2 {
		t.Fatalf("stable order violated: %+v", series)
	}
}

func TestParseRowsMalformedFieldFailsBatch(t *testing.T) {
	cases := [][][]string{
		{{"x", "1", "2", "0.5", "1.5"}},
		{{"1000", "abc", "2", "0.5", "1.5"}},
		{{"1000", "1", "2", "0.5"}},
		{{"1000", "1", "2", "0.5", "oops"}},
	}
	for i, rows := range cases {
		if _, err := ParseRows(rows); err == nil {
			t.Fatalf("case %d: malformed row should fail the batch", i)
		}
	}
}

func TestParseRowsIgnoresBadVolume(t *testing.T) {
	series, err := ParseRows([][]string{{"1000", "1", "2", "0.5", "1.5", "notanumber", "1"}})
	if err != nil {
		t.Fatalf("bad volume must not fail the batch: %v", err)
	}
	if series[0].Volume != 0 {
		t.Fatalf("expected zero volume, got %v", series[0].Volume)
	}
}

func TestLastClose(t *testing.T) {
	if got := (Series{}).LastClose(); got != nil {
		t.Fatalf("empty series should have no last close, got %v", *got)
	}

	s := Series{{Ts: 1, Close: 10}, {Ts: 2, Close: 11}}
	got := s.LastClose()
	if got == nil || *got != 11 {
		t.Fatalf("expected last close 11, got %v", got)
	}
}
