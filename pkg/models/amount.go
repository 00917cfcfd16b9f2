// Package models defines the core domain models for multi-step transaction workflows.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for amounts that cannot be represented exactly
// in the asset's smallest fractional unit. Covers malformed strings, negative
// values and values exceeding the declared precision.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is an exact token quantity held as an integer count of the asset's
// smallest fractional units. Token amounts are never stored or compared as
// floating-point values.
type Amount struct {
	units    *big.Int
	decimals uint8
}

// ParseAmount converts a decimal string into an Amount scaled to the asset's
// fractional-unit precision. "1.5" at 18 decimals becomes 1500000000000000000
// units. Fractional digits beyond the declared precision are rejected, not
// rounded.
func ParseAmount(value string, decimals uint8) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return Amount{}, fmt.Errorf("%w: %q exceeds %d decimal precision", ErrInvalidAmount, value, decimals)
	}

	return Amount{units: scaled.BigInt(), decimals: decimals}, nil
}

// AmountFromUnits builds an Amount from a raw count of smallest fractional
// units, as read from on-chain state (allowances, balances).
func AmountFromUnits(units *big.Int, decimals uint8) Amount {
	if units == nil {
		units = big.NewInt(0)
	}

	return Amount{units: new(big.Int).Set(units), decimals: decimals}
}

// ZeroAmount returns the zero value at the given precision.
func ZeroAmount(decimals uint8) Amount {
	return Amount{units: big.NewInt(0), decimals: decimals}
}

// Units returns a copy of the raw fractional-unit count.
func (a Amount) Units() *big.Int {
	if a.units == nil {
		return big.NewInt(0)
	}

	return new(big.Int).Set(a.units)
}

func (a Amount) Decimals() uint8 {
	return a.decimals
}

func (a Amount) IsZero() bool {
	return a.units == nil || a.units.Sign() == 0
}

// Cmp compares two amounts exactly, rescaling to a common precision when the
// operands declare different decimals.
func (a Amount) Cmp(other Amount) int {
	left := a.Units()
	right := other.Units()

	if a.decimals < other.decimals {
		left.Mul(left, pow10(other.decimals-a.decimals))
	} else if other.decimals < a.decimals {
		right.Mul(right, pow10(a.decimals-other.decimals))
	}

	return left.Cmp(right)
}

// String formats the amount as a decimal string without trailing zeros.
func (a Amount) String() string {
	if a.units == nil {
		return "0"
	}

	return decimal.NewFromBigInt(a.units, -int32(a.decimals)).String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"value":%q,"decimals":%d}`, a.String(), a.decimals)), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var wire struct {
		Value    string `json:"value"`
		Decimals uint8  `json:"decimals"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	parsed, err := ParseAmount(wire.Value, wire.Decimals)
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
