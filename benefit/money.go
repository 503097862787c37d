package benefit

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Amount with currency
// =============================================================================

// DefaultCurrency is assumed when a catalog entry doesn't name one.
const DefaultCurrency = "TWD"

// Money is a decimal amount in a currency. Decimal avoids float rounding on
// cashback caps and usage totals.
type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value float64, currency string) Money {
	return Money{Value: decimal.NewFromFloat(value), Currency: currency}
}

// ParseMoney parses a decimal string. An empty string is zero.
func ParseMoney(value, currency string) (Money, error) {
	if currency == "" {
		currency = DefaultCurrency
	}
	if value == "" {
		return Money{Value: decimal.Zero, Currency: currency}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, invalid("amount", "not a decimal: %q", value)
	}
	return Money{Value: d, Currency: currency}, nil
}

func (m Money) IsZero() bool { return m.Value.IsZero() }

func (m Money) String() string {
	return m.Value.StringFixedBank(2) + " " + m.Currency
}
