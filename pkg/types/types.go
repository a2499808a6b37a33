// Package types provides shared type definitions for the backtest simulator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetType identifies one side of the traded pair.
type AssetType string

const (
	AssetBase  AssetType = "base"
	AssetQuote AssetType = "quote"
)

// TradeDirection is the full direction of a trade request, covering both
// spot and margin operations. Fee sources resolve against it.
type TradeDirection string

const (
	DirectionSpotBuy     TradeDirection = "spot_buy"
	DirectionSpotSell    TradeDirection = "spot_sell"
	DirectionMarginLong  TradeDirection = "margin_long"
	DirectionMarginShort TradeDirection = "margin_short"
)

// TradeOperation is the buy/sell polarity of a trade. Spot buys and margin
// longs are buys; spot sells and margin shorts are sells.
type TradeOperation string

const (
	OperationBuy  TradeOperation = "buy"
	OperationSell TradeOperation = "sell"
)

// Operation reduces a direction to its buy/sell polarity. The second return
// is false for directions without one.
func (d TradeDirection) Operation() (TradeOperation, bool) {
	switch d {
	case DirectionSpotBuy, DirectionMarginLong:
		return OperationBuy, true
	case DirectionSpotSell, DirectionMarginShort:
		return OperationSell, true
	}
	return "", false
}

// PricePoint selects which price of a candle represents the tick.
type PricePoint string

const (
	PriceAtOpen   PricePoint = "open"
	PriceAtClose  PricePoint = "close"
	PriceAtHigh   PricePoint = "high"
	PriceAtLow    PricePoint = "low"
	PriceAtRandom PricePoint = "random"
)

// Trade is an immutable record of one executed spot trade.
type Trade struct {
	Operation   TradeOperation  `json:"operation"`
	Price       decimal.Decimal `json:"price"`
	BaseAmount  decimal.Decimal `json:"baseAmount"`
	QuoteAmount decimal.Decimal `json:"quoteAmount"`
	CandleIndex int             `json:"candleIndex"`
	CandleTime  time.Time       `json:"candleTime"`
}
