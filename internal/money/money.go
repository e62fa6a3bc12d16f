package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// Money is an exact amount in a single ISO 4217 currency.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

func New(amount decimal.Decimal, unit currency.Unit) Money {
	return Money{Amount: amount, Currency: unit}
}

// Parse builds Money from the textual representation stored in the database.
func Parse(amount, code string) (Money, error) {
	var m Money

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return m, fmt.Errorf("decimal.NewFromString: %w", err)
	}

	unit, err := currency.ParseISO(code)
	if err != nil {
		return m, fmt.Errorf("currency.ParseISO: %w", err)
	}

	return Money{Amount: d, Currency: unit}, nil
}

func MustParse(amount, code string) Money {
	m, err := Parse(amount, code)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) Mul(qty int) Money {
	return Money{
		Amount:   m.Amount.Mul(decimal.NewFromInt(int64(qty))),
		Currency: m.Currency,
	}
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// MinorUnits returns the amount in the currency's minor units, e.g. cents.
// Payment gateways charge in minor units. The exponent comes from the
// currency: USD shifts by 2, zero-decimal currencies like JPY by 0.
func (m Money) MinorUnits() int64 {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Amount.Shift(int32(scale)).Round(0).IntPart()
}

func (m Money) String() string {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Amount.StringFixed(int32(scale)) + " " + m.Currency.String()
}
