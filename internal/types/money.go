// README: Common money value object used across modules (amounts in minor units).
package types

import (
	"fmt"
	"math"
)

const DefaultCurrency = "EUR"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// FromUnits converts whole currency units (e.g. a rounded quote) to minor units.
func FromUnits(units int64, currency string) Money {
	return Money{Amount: units * 100, Currency: currency}
}

// FromFloat converts a decimal amount such as 35.25 to minor units, rounding half away from zero.
func FromFloat(v float64, currency string) Money {
	return Money{Amount: int64(math.Round(v * 100)), Currency: currency}
}

func (m Money) Float() float64 {
	return float64(m.Amount) / 100
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.currencyOr(o)}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount - o.Amount, Currency: m.currencyOr(o)}
}

func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// MulRate multiplies by a fractional rate and rounds to the nearest minor unit.
func (m Money) MulRate(rate float64) Money {
	return Money{Amount: int64(math.Round(float64(m.Amount) * rate)), Currency: m.Currency}
}

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) String() string {
	sign := ""
	a := m.Amount
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, a/100, a%100, m.Currency)
}

func (m Money) currencyOr(o Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return o.Currency
}
