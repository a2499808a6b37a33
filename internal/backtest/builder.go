package backtest

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/backtest/pkg/types"
)

// Builder assembles a run's configuration fluently. Configuration errors are
// collected and surfaced by Run; nothing is deferred into the candle loop.
type Builder struct {
	setup *setup
	err   error
}

// NewBuilder creates a builder over the given candle series with default
// settings: quote budget 10000, open price point, 0.1% base-asset spot fee,
// 5x leverage with a 0.1 liquidation ratio, and the last 30 days of data
// evaluated. The series must be chronological; it is validated here, before
// the core ever runs.
func NewBuilder(candles []types.Candle) (*Builder, error) {
	if err := types.ValidateCandles(candles); err != nil {
		return nil, fmt.Errorf("invalid candle data: %w", err)
	}

	defaultFee, _ := types.NewFee(types.AmountPercentage, decimal.NewFromFloat(0.1), types.FeeSourceBase)
	b := &Builder{setup: &setup{
		Candles:              candles,
		PricePoint:           types.PriceAtOpen,
		StartingBaseBalance:  decimal.Zero,
		StartingQuoteBalance: decimal.NewFromInt(10000),

		DefaultSpotBuySize:     types.MaxAmount(),
		DefaultSpotSellSize:    types.MaxAmount(),
		DefaultMarginLongSize:  types.MaxAmount(),
		DefaultMarginShortSize: types.MaxAmount(),

		SpotFees:         []types.Fee{defaultFee},
		LeverageRatio:    decimal.NewFromInt(5),
		LiquidationRatio: decimal.NewFromFloat(0.1),

		Logger: zap.NewNop(),
		Rand:   rand.New(rand.NewSource(1)),
	}}

	end := candles[len(candles)-1].Time
	return b.EvaluateBetween(end.AddDate(0, 0, -30), end), nil
}

// FromConfig creates a builder from a serializable run configuration.
func FromConfig(candles []types.Candle, cfg types.RunConfig) (*Builder, error) {
	b, err := NewBuilder(candles)
	if err != nil {
		return nil, err
	}
	if !cfg.BaseBudget.IsZero() {
		b.WithBaseBudget(cfg.BaseBudget)
	}
	if !cfg.QuoteBudget.IsZero() {
		b.WithQuoteBudget(cfg.QuoteBudget)
	}
	if !cfg.StartTime.IsZero() || !cfg.EndTime.IsZero() {
		b.EvaluateBetween(cfg.StartTime, cfg.EndTime)
	}
	if cfg.PricePoint != "" {
		b.WithPricePoint(cfg.PricePoint)
	}
	if cfg.SpotFees != nil {
		b.WithSpotFees(cfg.SpotFees...)
	}
	if !cfg.LeverageRatio.IsZero() {
		b.WithMarginLeverage(cfg.LeverageRatio)
	}
	if !cfg.LiquidationRatio.IsZero() {
		b.WithMarginLiquidationRatio(cfg.LiquidationRatio)
	}
	if cfg.RandomSeed != 0 {
		b.WithRandomSeed(cfg.RandomSeed)
	}
	return b, nil
}

// fail records the first configuration error.
func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// OnTick registers a strategy callback. Multiple callbacks are allowed and
// run in registration order on every evaluated candle.
func (b *Builder) OnTick(fn TickFunc) *Builder {
	b.setup.TickFuncs = append(b.setup.TickFuncs, fn)
	return b
}

// PostTick registers a callback that runs after all strategy callbacks of a
// tick. Intended for progress reporting and evaluation; by convention it
// should not trade.
func (b *Builder) PostTick(fn TickFunc) *Builder {
	b.setup.PostTickFuncs = append(b.setup.PostTickFuncs, fn)
	return b
}

// OnLogEntry registers an observer fired synchronously for every run log
// entry.
func (b *Builder) OnLogEntry(fn LogObserver) *Builder {
	b.setup.LogObservers = append(b.setup.LogObservers, fn)
	return b
}

// EvaluateBetween restricts evaluation to candles within [start, end].
// Candles outside the range remain visible to callbacks but are not ticked.
func (b *Builder) EvaluateBetween(start, end time.Time) *Builder {
	if start.After(end) {
		return b.fail(fmt.Errorf("evaluate range start %s is after end %s", start, end))
	}

	first := -1
	for i, c := range b.setup.Candles {
		if !c.Time.Before(start) {
			first = i
			break
		}
	}
	if first < 0 {
		return b.fail(fmt.Errorf("no candles on or after %s", start))
	}

	last := len(b.setup.Candles) - 1
	for i := first; i < len(b.setup.Candles); i++ {
		if b.setup.Candles[i].Time.After(end) {
			last = i - 1
			break
		}
	}
	if last < first {
		return b.fail(fmt.Errorf("no candles between %s and %s", start, end))
	}

	b.setup.EvaluateFirstIndex = first
	b.setup.EvaluateLastIndex = last
	return b
}

// EvaluateRange restricts evaluation to the inclusive candle index range.
func (b *Builder) EvaluateRange(first, last int) *Builder {
	if first < 0 || last >= len(b.setup.Candles) || first > last {
		return b.fail(fmt.Errorf("invalid evaluate range [%d, %d] for %d candles", first, last, len(b.setup.Candles)))
	}
	b.setup.EvaluateFirstIndex = first
	b.setup.EvaluateLastIndex = last
	return b
}

// WithPricePoint selects which candle price represents each tick.
func (b *Builder) WithPricePoint(point types.PricePoint) *Builder {
	switch point {
	case types.PriceAtOpen, types.PriceAtClose, types.PriceAtHigh, types.PriceAtLow, types.PriceAtRandom:
		b.setup.PricePoint = point
		return b
	}
	return b.fail(fmt.Errorf("unknown price point %q", point))
}

// WithQuoteBudget sets the starting quote balance. Must be positive.
func (b *Builder) WithQuoteBudget(amount decimal.Decimal) *Builder {
	if amount.LessThanOrEqual(decimal.Zero) {
		return b.fail(fmt.Errorf("quote budget must be greater than 0, got %s", amount))
	}
	b.setup.StartingQuoteBalance = amount
	return b
}

// WithBaseBudget sets the starting base balance. Defaults to 0 since runs
// normally start from a quote budget.
func (b *Builder) WithBaseBudget(amount decimal.Decimal) *Builder {
	if amount.IsNegative() {
		return b.fail(fmt.Errorf("base budget cannot be negative, got %s", amount))
	}
	b.setup.StartingBaseBalance = amount
	return b
}

// WithDefaultSpotBuySize sets the order size used by Spot.Buy.
func (b *Builder) WithDefaultSpotBuySize(spec types.AmountSpec) *Builder {
	b.setup.DefaultSpotBuySize = spec
	return b
}

// WithDefaultSpotSellSize sets the order size used by Spot.Sell.
func (b *Builder) WithDefaultSpotSellSize(spec types.AmountSpec) *Builder {
	b.setup.DefaultSpotSellSize = spec
	return b
}

// WithDefaultMarginLongSize sets the borrow size used by Margin.Long.
func (b *Builder) WithDefaultMarginLongSize(spec types.AmountSpec) *Builder {
	b.setup.DefaultMarginLongSize = spec
	return b
}

// WithDefaultMarginShortSize sets the borrow size used by Margin.Short.
func (b *Builder) WithDefaultMarginShortSize(spec types.AmountSpec) *Builder {
	b.setup.DefaultMarginShortSize = spec
	return b
}

// WithSpotFees replaces the ordered spot fee list. An empty call makes spot
// trading fee-free.
func (b *Builder) WithSpotFees(fees ...types.Fee) *Builder {
	for _, fee := range fees {
		if _, err := types.NewFee(fee.Kind, fee.Amount, fee.Source); err != nil {
			return b.fail(fmt.Errorf("invalid spot fee: %w", err))
		}
	}
	b.setup.SpotFees = fees
	return b
}

// WithMarginLeverage sets the leverage ratio for margin borrows.
func (b *Builder) WithMarginLeverage(ratio decimal.Decimal) *Builder {
	if ratio.LessThanOrEqual(decimal.Zero) {
		return b.fail(fmt.Errorf("leverage ratio must be positive, got %s", ratio))
	}
	b.setup.LeverageRatio = ratio
	return b
}

// WithMarginLiquidationRatio sets the collateral fraction of the borrowed
// amount below which a position liquidates.
func (b *Builder) WithMarginLiquidationRatio(ratio decimal.Decimal) *Builder {
	if ratio.IsNegative() {
		return b.fail(fmt.Errorf("liquidation ratio cannot be negative, got %s", ratio))
	}
	b.setup.LiquidationRatio = ratio
	return b
}

// WithLogger mirrors run log entries to the given zap logger. Defaults to a
// no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger == nil {
		return b.fail(fmt.Errorf("logger cannot be nil"))
	}
	b.setup.Logger = logger
	return b
}

// WithRandomSeed seeds the source used by the random price point, keeping
// randomized runs reproducible.
func (b *Builder) WithRandomSeed(seed int64) *Builder {
	b.setup.Rand = rand.New(rand.NewSource(seed))
	return b
}

// Run executes the backtest synchronously and returns the immutable result.
// It fails without ticking a single candle if any configuration call was
// invalid.
func (b *Builder) Run() (*Result, error) {
	if b.err != nil {
		return nil, fmt.Errorf("invalid backtest configuration: %w", b.err)
	}
	return run(b.setup), nil
}
