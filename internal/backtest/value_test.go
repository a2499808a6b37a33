package backtest

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/candleworks/backtest/pkg/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCombinedValue(t *testing.T) {
	tests := []struct {
		name     string
		asset    types.AssetType
		base     string
		quote    string
		price    string
		expected string
	}{
		{"base denomination", types.AssetBase, "0.6", "600", "1000", "1.2"},
		{"quote denomination", types.AssetQuote, "0.6", "600", "1000", "1200"},
		{"quote only", types.AssetQuote, "0", "250", "50", "250"},
		{"base only", types.AssetBase, "2", "0", "50", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CombinedValue(tt.asset, dec(tt.base), dec(tt.quote), dec(tt.price))
			if !got.Equal(dec(tt.expected)) {
				t.Errorf("CombinedValue = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	if got := ToBase(dec("600"), dec("1000")); !got.Equal(dec("0.6")) {
		t.Errorf("ToBase = %s, want 0.6", got)
	}
	if got := ToQuote(dec("0.6"), dec("1000")); !got.Equal(dec("600")) {
		t.Errorf("ToQuote = %s, want 600", got)
	}
}

func TestTradeOutput(t *testing.T) {
	// Buy: quote in, base out, quote fee off the input, base fee off the
	// output.
	got := TradeOutput(types.OperationBuy, dec("1000"), dec("100"), dec("0.01"), dec("50"))
	if !got.Equal(dec("9.49")) {
		t.Errorf("buy output = %s, want 9.49", got)
	}

	// Sell: base in, quote out.
	got = TradeOutput(types.OperationSell, dec("10"), dec("100"), dec("1"), dec("30"))
	if !got.Equal(dec("870")) {
		t.Errorf("sell output = %s, want 870", got)
	}
}

func TestNonPositivePricePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero price")
		}
	}()
	ToBase(dec("100"), decimal.Zero)
}
