package data

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

func TestResample(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	minute := func(i int, open, high, low, close, volume string) types.Candle {
		return types.Candle{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   dec(t, open),
			High:   dec(t, high),
			Low:    dec(t, low),
			Close:  dec(t, close),
			Volume: dec(t, volume),
		}
	}

	input := []types.Candle{
		minute(0, "100", "110", "95", "105", "10"),
		minute(1, "105", "120", "100", "118", "20"),
		minute(2, "118", "119", "90", "92", "30"),
		minute(3, "92", "98", "91", "97", "5"),
		minute(4, "97", "99", "96", "98", "5"),
		// Second bucket starts at minute 5.
		minute(5, "98", "130", "98", "125", "40"),
		minute(6, "125", "126", "120", "121", "10"),
	}

	out, err := Resample(input, types.Timeframe5m)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("resampled to %d candles, want 2", len(out))
	}

	first := out[0]
	if !first.Time.Equal(start) {
		t.Errorf("bucket time = %s, want %s", first.Time, start)
	}
	if !first.Open.Equal(dec(t, "100")) || !first.Close.Equal(dec(t, "98")) {
		t.Errorf("open/close = %s/%s, want 100/98", first.Open, first.Close)
	}
	if !first.High.Equal(dec(t, "120")) || !first.Low.Equal(dec(t, "90")) {
		t.Errorf("high/low = %s/%s, want 120/90", first.High, first.Low)
	}
	if !first.Volume.Equal(dec(t, "70")) {
		t.Errorf("volume = %s, want 70", first.Volume)
	}

	second := out[1]
	if !second.Time.Equal(start.Add(5 * time.Minute)) {
		t.Errorf("bucket time = %s, want %s", second.Time, start.Add(5*time.Minute))
	}
	if !second.High.Equal(dec(t, "130")) || !second.Volume.Equal(dec(t, "50")) {
		t.Errorf("high/volume = %s/%s, want 130/50", second.High, second.Volume)
	}
}

func TestResampleSkipsGaps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	input := []types.Candle{
		{Time: start, Open: dec(t, "1"), High: dec(t, "1"), Low: dec(t, "1"), Close: dec(t, "1"), Volume: decimal.Zero},
		// Nothing for the next 5m bucket; the series jumps to minute 10.
		{Time: start.Add(10 * time.Minute), Open: dec(t, "2"), High: dec(t, "2"), Low: dec(t, "2"), Close: dec(t, "2"), Volume: decimal.Zero},
	}

	out, err := Resample(input, types.Timeframe5m)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("resampled to %d candles, want 2 (no synthetic fill)", len(out))
	}
	if !out[1].Time.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("second bucket at %s, want %s", out[1].Time, start.Add(10*time.Minute))
	}
}

func TestResampleRejectsBadInput(t *testing.T) {
	if _, err := Resample(nil, types.Timeframe5m); err == nil {
		t.Error("expected error for an empty series")
	}
	candles := testCandles(t, 2)
	if _, err := Resample(candles, types.Timeframe("2w")); err == nil {
		t.Error("expected error for an unknown timeframe")
	}
}
