package backtest

import (
	"testing"

	"github.com/candleworks/backtest/pkg/types"
)

func mustFee(t *testing.T, kind types.AmountKind, amount string, source types.FeeSource) types.Fee {
	t.Helper()
	fee, err := types.NewFee(kind, dec(amount), source)
	if err != nil {
		t.Fatalf("NewFee: %v", err)
	}
	return fee
}

func TestResolveFeeSource(t *testing.T) {
	tests := []struct {
		name      string
		source    types.FeeSource
		direction types.TradeDirection
		want      types.FeeSource
		wantOp    types.TradeOperation
	}{
		{"input on spot buy", types.FeeSourceInput, types.DirectionSpotBuy, types.FeeSourceQuote, types.OperationBuy},
		{"output on spot buy", types.FeeSourceOutput, types.DirectionSpotBuy, types.FeeSourceBase, types.OperationBuy},
		{"input on spot sell", types.FeeSourceInput, types.DirectionSpotSell, types.FeeSourceBase, types.OperationSell},
		{"output on spot sell", types.FeeSourceOutput, types.DirectionSpotSell, types.FeeSourceQuote, types.OperationSell},
		{"input on margin long", types.FeeSourceInput, types.DirectionMarginLong, types.FeeSourceQuote, types.OperationBuy},
		{"output on margin short", types.FeeSourceOutput, types.DirectionMarginShort, types.FeeSourceQuote, types.OperationSell},
		{"base passes through", types.FeeSourceBase, types.DirectionSpotBuy, types.FeeSourceBase, types.OperationBuy},
		{"both passes through", types.FeeSourceBoth, types.DirectionSpotSell, types.FeeSourceBoth, types.OperationSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, op := ResolveFeeSource(tt.source, tt.direction)
			if source != tt.want || op != tt.wantOp {
				t.Errorf("ResolveFeeSource(%q, %q) = (%q, %q), want (%q, %q)",
					tt.source, tt.direction, source, op, tt.want, tt.wantOp)
			}
		})
	}
}

func TestResolveFeeSourceUnresolvablePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for contextual source without polarity")
		}
	}()
	ResolveFeeSource(types.FeeSourceInput, types.TradeDirection("no_action"))
}

func TestCalculateFee(t *testing.T) {
	price := dec("100")

	t.Run("base source sell has no quote fee", func(t *testing.T) {
		fee := mustFee(t, types.AmountPercentage, "1", types.FeeSourceBase)
		baseFee, quoteFee := CalculateFee(fee, types.DirectionSpotSell, dec("10"), price)
		if !quoteFee.IsZero() {
			t.Errorf("quote fee = %s, want 0", quoteFee)
		}
		if !baseFee.Equal(dec("0.1")) {
			t.Errorf("base fee = %s, want 0.1", baseFee)
		}
	})

	t.Run("quote source buy has no base fee", func(t *testing.T) {
		fee := mustFee(t, types.AmountPercentage, "1", types.FeeSourceQuote)
		baseFee, quoteFee := CalculateFee(fee, types.DirectionSpotBuy, dec("1000"), price)
		if !baseFee.IsZero() {
			t.Errorf("base fee = %s, want 0", baseFee)
		}
		if !quoteFee.Equal(dec("10")) {
			t.Errorf("quote fee = %s, want 10", quoteFee)
		}
	})

	t.Run("percentage charges the input amount in each denomination", func(t *testing.T) {
		// Buying with 1000 quote at price 100: the input is 10 base or
		// 1000 quote. A 1% both-sided fee takes half of each.
		fee := mustFee(t, types.AmountPercentage, "1", types.FeeSourceBoth)
		baseFee, quoteFee := CalculateFee(fee, types.DirectionSpotBuy, dec("1000"), price)
		if !baseFee.Equal(dec("0.05")) {
			t.Errorf("base fee = %s, want 0.05", baseFee)
		}
		if !quoteFee.Equal(dec("5")) {
			t.Errorf("quote fee = %s, want 5", quoteFee)
		}
	})

	t.Run("absolute fee ignores the input amount", func(t *testing.T) {
		fee := mustFee(t, types.AmountAbsolute, "3", types.FeeSourceQuote)
		baseFee, quoteFee := CalculateFee(fee, types.DirectionSpotBuy, dec("999999"), price)
		if !baseFee.IsZero() || !quoteFee.Equal(dec("3")) {
			t.Errorf("fees = (%s, %s), want (0, 3)", baseFee, quoteFee)
		}
	})
}

func TestCombinedFeesOrderIndependent(t *testing.T) {
	price := dec("100")
	input := dec("1000")
	a := mustFee(t, types.AmountPercentage, "0.5", types.FeeSourceQuote)
	b := mustFee(t, types.AmountAbsolute, "2", types.FeeSourceBase)
	c := mustFee(t, types.AmountPercentage, "1", types.FeeSourceBoth)

	base1, quote1 := CombinedFees([]types.Fee{a, b, c}, types.DirectionSpotBuy, input, price)
	base2, quote2 := CombinedFees([]types.Fee{c, a, b}, types.DirectionSpotBuy, input, price)
	if !base1.Equal(base2) || !quote1.Equal(quote2) {
		t.Errorf("fee totals depend on order: (%s, %s) vs (%s, %s)", base1, quote1, base2, quote2)
	}

	// Fees are computed against the same input, not chained: totals are
	// plain sums of the individual results.
	wantQuote := dec("5").Add(dec("5")) // 0.5% of 1000 + half of 1% of 1000
	if !quote1.Equal(wantQuote) {
		t.Errorf("quote fee total = %s, want %s", quote1, wantQuote)
	}
	wantBase := dec("2").Add(dec("0.05")) // absolute 2 + half of 1% of 10 base
	if !base1.Equal(wantBase) {
		t.Errorf("base fee total = %s, want %s", base1, wantBase)
	}
}

func TestCombinedFeesEmpty(t *testing.T) {
	baseFee, quoteFee := CombinedFees(nil, types.DirectionSpotBuy, dec("1000"), dec("100"))
	if !baseFee.IsZero() || !quoteFee.IsZero() {
		t.Errorf("empty fee list produced fees (%s, %s)", baseFee, quoteFee)
	}
}
