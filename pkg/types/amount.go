package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountKind defines how an amount value is interpreted.
type AmountKind string

const (
	// AmountMax uses the full available balance; the amount value is ignored.
	AmountMax AmountKind = "max"
	// AmountAbsolute is a literal amount of the asset.
	AmountAbsolute AmountKind = "absolute"
	// AmountPercentage is a percentage (0, 100] of the available balance.
	AmountPercentage AmountKind = "percentage"
)

// ErrInsufficientBalance is returned when an AmountSpec with AllowPartial
// disabled resolves to more than the available balance.
var ErrInsufficientBalance = fmt.Errorf("requested amount exceeds available balance")

// AmountSpec describes the size of a trade request. It is immutable once
// constructed and only resolves to a literal value against a balance.
type AmountSpec struct {
	Kind         AmountKind      `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	AllowPartial bool            `json:"allowPartial"`
}

// NewAmountSpec validates and creates an AmountSpec. With allowPartial, a
// request larger than the balance is clipped to the balance at resolution
// time; without it, resolution fails instead.
func NewAmountSpec(kind AmountKind, amount decimal.Decimal, allowPartial bool) (AmountSpec, error) {
	switch kind {
	case AmountMax:
		// Amount is ignored.
	case AmountAbsolute:
		if amount.LessThanOrEqual(decimal.Zero) {
			return AmountSpec{}, fmt.Errorf("absolute amounts must be greater than 0, got %s", amount)
		}
	case AmountPercentage:
		if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(decimal.NewFromInt(100)) {
			return AmountSpec{}, fmt.Errorf("percentage amounts must be between 0 and 100, got %s", amount)
		}
	default:
		return AmountSpec{}, fmt.Errorf("unknown amount kind %q", kind)
	}
	return AmountSpec{Kind: kind, Amount: amount, AllowPartial: allowPartial}, nil
}

// MaxAmount is the spec that consumes the full available balance.
func MaxAmount() AmountSpec {
	return AmountSpec{Kind: AmountMax, AllowPartial: true}
}

// Resolve determines the literal amount for a trade against the available
// balance. The bool reports whether the literal equals the full requested
// value; it is false when the request was clipped. Resolution fails with
// ErrInsufficientBalance when clipping is needed but AllowPartial is off.
func (s AmountSpec) Resolve(available decimal.Decimal) (decimal.Decimal, bool, error) {
	var literal decimal.Decimal
	switch s.Kind {
	case AmountMax:
		literal = available
	case AmountAbsolute:
		literal = s.Amount
	case AmountPercentage:
		literal = available.Mul(s.Amount.Div(decimal.NewFromInt(100)))
	default:
		panic(fmt.Sprintf("types: unknown amount kind %q", s.Kind))
	}

	if literal.GreaterThan(available) {
		if !s.AllowPartial {
			return decimal.Zero, false, fmt.Errorf("resolving %s %s against balance %s: %w",
				s.Kind, s.Amount, available, ErrInsufficientBalance)
		}
		return available, false, nil
	}
	return literal, true, nil
}
