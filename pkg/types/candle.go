// Package types provides shared type definitions for the backtest simulator.
package types

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is the bar interval of a candle series.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the bar interval as a time.Duration.
func (t Timeframe) Duration() (time.Duration, error) {
	switch t {
	case Timeframe1m:
		return time.Minute, nil
	case Timeframe5m:
		return 5 * time.Minute, nil
	case Timeframe15m:
		return 15 * time.Minute, nil
	case Timeframe1h:
		return time.Hour, nil
	case Timeframe4h:
		return 4 * time.Hour, nil
	case Timeframe1d:
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown timeframe %q", t)
}

// Candle is a single OHLCV bar. Candles are read-only for the whole run and
// must be supplied in chronological order; the simulator does not sort them.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Price derives the representative price of the candle for the given point.
// PriceAtRandom draws a uniform sample in [low, high] from rng; rng may be
// nil for every other point.
func (c Candle) Price(point PricePoint, rng *rand.Rand) decimal.Decimal {
	switch point {
	case PriceAtOpen:
		return c.Open
	case PriceAtClose:
		return c.Close
	case PriceAtHigh:
		return c.High
	case PriceAtLow:
		return c.Low
	case PriceAtRandom:
		if rng == nil {
			panic("types: PriceAtRandom requires a rand source")
		}
		spread := c.High.Sub(c.Low)
		offset := spread.Mul(decimal.NewFromFloat(rng.Float64()))
		return c.Low.Add(offset)
	}
	panic(fmt.Sprintf("types: unknown price point %q", point))
}

// ValidateCandles checks that the series is non-empty and in chronological
// (non-decreasing time) order. Loaders must run this before the core does.
func ValidateCandles(candles []Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("candle series is empty")
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Time.Before(candles[i-1].Time) {
			return fmt.Errorf("candle %d (%s) is earlier than candle %d (%s): series must be chronological",
				i, candles[i].Time.Format(time.RFC3339), i-1, candles[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}
