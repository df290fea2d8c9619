// Package money implements fixed-point monetary amounts.
//
// Amounts are held as an unsigned number of minor units (cents) tagged with an
// ISO-4217 currency code. Arithmetic is exact; rounding only happens when a
// decimal string from the outside world is converted in.
package money

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Scale is the number of fractional digits carried by every amount.
const Scale = 2

var (
	// ErrCurrencyMismatch is returned when operands carry different currencies.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	// ErrInvalidCurrency is returned for codes that are not ISO-4217.
	ErrInvalidCurrency = errors.New("money: invalid currency")
	// ErrNegative is returned when a result would drop below zero.
	ErrNegative = errors.New("money: negative amount")
	// ErrOverflow is returned when a result does not fit in 64 bits.
	ErrOverflow = errors.New("money: overflow")
)

// Money is an exact amount of minor units in a single currency.
// The zero value has no currency and is only useful as "unset".
type Money struct {
	minor    uint64
	currency string
}

// Of builds an amount of minor units in the given currency.
func Of(minor uint64, code string) (Money, error) {
	cur, err := normalizeCurrency(code)
	if err != nil {
		return Money{}, err
	}
	return Money{minor: minor, currency: cur}, nil
}

// MustOf is Of for constants known to be valid; it panics otherwise.
func MustOf(minor uint64, code string) Money {
	m, err := Of(minor, code)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(code string) (Money, error) {
	return Of(0, code)
}

// ParseDecimal converts a decimal string such as "12.345" into minor units,
// rounding half-up to Scale digits.
func ParseDecimal(s, code string) (Money, error) {
	cur, err := normalizeCurrency(code)
	if err != nil {
		return Money{}, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return Money{}, ErrNegative
	}
	minor := d.Round(Scale).Shift(Scale)
	if !minor.IsInteger() || minor.GreaterThan(fromUint64(math.MaxUint64, 0)) {
		return Money{}, ErrOverflow
	}
	return Money{minor: minor.BigInt().Uint64(), currency: cur}, nil
}

func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// Currency returns the ISO-4217 code, or "" for the zero value.
func (m Money) Currency() string { return m.currency }

// MinorUnits returns the exact number of minor units.
func (m Money) MinorUnits() uint64 { return m.minor }

// IsZero reports whether the amount carries no minor units.
func (m Money) IsZero() bool { return m.minor == 0 }

// IsSet reports whether the amount has a currency.
func (m Money) IsSet() bool { return m.currency != "" }

// Equal reports structural equality.
func (m Money) Equal(o Money) bool {
	return m.minor == o.minor && m.currency == o.currency
}

// Add returns m + o.
func (m Money) Add(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, mismatch(m, o)
	}
	sum, carry := bits.Add64(m.minor, o.minor, 0)
	if carry != 0 {
		return Money{}, ErrOverflow
	}
	return Money{minor: sum, currency: m.currency}, nil
}

// Sub returns m - o. The result may not be negative.
func (m Money) Sub(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, mismatch(m, o)
	}
	if o.minor > m.minor {
		return Money{}, ErrNegative
	}
	return Money{minor: m.minor - o.minor, currency: m.currency}, nil
}

// Mul returns m scaled by a non-negative integer factor.
func (m Money) Mul(n int64) (Money, error) {
	if n < 0 {
		return Money{}, ErrNegative
	}
	hi, lo := bits.Mul64(m.minor, uint64(n))
	if hi != 0 {
		return Money{}, ErrOverflow
	}
	return Money{minor: lo, currency: m.currency}, nil
}

// DecimalString renders the amount as a plain decimal, e.g. "12.34".
func (m Money) DecimalString() string {
	return fromUint64(m.minor, -Scale).StringFixed(Scale)
}

// Display renders the amount with the currency symbol using the number
// conventions of the given language, e.g. "R$ 1.234,50" for pt-BR.
func (m Money) Display(tag language.Tag) string {
	unit, err := currency.ParseISO(m.currency)
	if err != nil {
		return m.String()
	}
	amount := fromUint64(m.minor, -Scale).InexactFloat64()
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(amount)))
}

// String implements fmt.Stringer.
func (m Money) String() string {
	if m.currency == "" {
		return m.DecimalString()
	}
	return m.DecimalString() + " " + m.currency
}

func fromUint64(v uint64, exp int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), exp)
}

func mismatch(a, b Money) error {
	return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a.currency, b.currency)
}
