package data

import (
	"fmt"

	"github.com/candleworks/backtest/pkg/types"
)

// Resample aggregates a chronological candle series into a larger timeframe.
// Each output bucket keeps the first open, the highest high, the lowest low,
// the last close and the summed volume of its input candles; its time is the
// input time floored to the bucket interval. Gaps in the input produce gaps
// in the output, not empty candles.
func Resample(candles []types.Candle, timeframe types.Timeframe) ([]types.Candle, error) {
	if err := types.ValidateCandles(candles); err != nil {
		return nil, err
	}
	interval, err := timeframe.Duration()
	if err != nil {
		return nil, err
	}

	var out []types.Candle
	for _, candle := range candles {
		bucket := candle.Time.Truncate(interval)
		if len(out) == 0 || !out[len(out)-1].Time.Equal(bucket) {
			if len(out) > 0 && bucket.Before(out[len(out)-1].Time) {
				return nil, fmt.Errorf("candle at %s falls before the open bucket %s",
					candle.Time, out[len(out)-1].Time)
			}
			out = append(out, types.Candle{
				Time:   bucket,
				Open:   candle.Open,
				High:   candle.High,
				Low:    candle.Low,
				Close:  candle.Close,
				Volume: candle.Volume,
			})
			continue
		}

		current := &out[len(out)-1]
		if candle.High.GreaterThan(current.High) {
			current.High = candle.High
		}
		if candle.Low.LessThan(current.Low) {
			current.Low = candle.Low
		}
		current.Close = candle.Close
		current.Volume = current.Volume.Add(candle.Volume)
	}
	return out, nil
}
