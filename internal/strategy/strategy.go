// Package strategy provides reference trading strategies for the backtest
// engine.
package strategy

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/backtest/internal/backtest"
	"github.com/candleworks/backtest/pkg/types"
)

// Strategy drives trades against the running backtest state. OnTick is
// registered with the builder and called once per evaluated candle; a
// strategy instance belongs to a single run.
type Strategy interface {
	Name() string
	Description() string
	OnTick(state *backtest.State)
}

// Registry manages available strategy factories by name.
type Registry struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	factories map[string]func() Strategy
}

// NewRegistry creates a registry with the built-in strategies registered.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger:    logger,
		factories: make(map[string]func() Strategy),
	}

	r.Register("buy_and_hold", func() Strategy { return NewBuyAndHold() })
	r.Register("sma_cross", func() Strategy { return NewSMACross(10, 30) })
	r.Register("dip_buyer", func() Strategy { return NewDipBuyer(decimal.NewFromFloat(0.05)) })

	return r
}

// Register adds a strategy factory under a name, replacing any previous one.
func (r *Registry) Register(name string, factory func() Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create builds a fresh strategy instance by name.
func (r *Registry) Create(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// List returns all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// BuyAndHold spends the full quote balance on the first evaluated candle and
// never trades again. Its result tracks the buy-and-hold baseline less fees.
type BuyAndHold struct {
	bought bool
}

// NewBuyAndHold creates a buy-and-hold strategy.
func NewBuyAndHold() *BuyAndHold {
	return &BuyAndHold{}
}

func (s *BuyAndHold) Name() string { return "buy_and_hold" }
func (s *BuyAndHold) Description() string {
	return "Buys the full quote balance on the first candle and holds"
}

func (s *BuyAndHold) OnTick(state *backtest.State) {
	if s.bought {
		return
	}
	if ok, _ := state.Trade.Spot.Buy(); ok {
		s.bought = true
	}
}

// SMACross trades simple moving average crossovers: it buys the full quote
// balance when the fast average crosses above the slow one and sells the
// full base balance on the opposite cross.
type SMACross struct {
	fast, slow int
	wasBullish bool
	primed     bool
}

// NewSMACross creates an SMA crossover strategy. fast must be shorter than
// slow; typical values are 10 and 30.
func NewSMACross(fast, slow int) *SMACross {
	if fast >= slow {
		fast, slow = slow, fast
	}
	return &SMACross{fast: fast, slow: slow}
}

func (s *SMACross) Name() string { return "sma_cross" }
func (s *SMACross) Description() string {
	return "Trades fast/slow simple moving average crossovers"
}

func (s *SMACross) OnTick(state *backtest.State) {
	idx := state.CurrentIndex()
	if idx+1 < s.slow {
		return
	}

	candles := state.Candles()
	fastAvg := closeAverage(candles[idx+1-s.fast : idx+1])
	slowAvg := closeAverage(candles[idx+1-s.slow : idx+1])
	isBullish := fastAvg.GreaterThan(slowAvg)

	if !s.primed {
		s.primed = true
		s.wasBullish = isBullish
		return
	}

	switch {
	case isBullish && !s.wasBullish:
		state.Trade.Spot.Buy()
	case !isBullish && s.wasBullish:
		state.Trade.Spot.Sell()
	}
	s.wasBullish = isBullish
}

func closeAverage(candles []types.Candle) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

// DipBuyer buys the full quote balance when price drops by the configured
// fraction from the last entry-free high and sells once it recovers.
type DipBuyer struct {
	drop    decimal.Decimal
	high    decimal.Decimal
	holding bool
}

// NewDipBuyer creates a dip-buying strategy. drop is the fractional decline
// from the running high that triggers a buy, e.g. 0.05 for 5%.
func NewDipBuyer(drop decimal.Decimal) *DipBuyer {
	return &DipBuyer{drop: drop}
}

func (s *DipBuyer) Name() string { return "dip_buyer" }
func (s *DipBuyer) Description() string {
	return "Buys a fixed drawdown from the running high, sells on recovery"
}

func (s *DipBuyer) OnTick(state *backtest.State) {
	price := state.CurrentPrice()
	if s.high.IsZero() || price.GreaterThan(s.high) {
		s.high = price
	}

	if !s.holding {
		trigger := s.high.Mul(decimal.NewFromInt(1).Sub(s.drop))
		if price.LessThanOrEqual(trigger) {
			if ok, _ := state.Trade.Spot.Buy(); ok {
				s.holding = true
			}
		}
		return
	}

	if price.GreaterThanOrEqual(s.high) {
		if ok, _ := state.Trade.Spot.Sell(); ok {
			s.holding = false
			s.high = price
		}
	}
}
