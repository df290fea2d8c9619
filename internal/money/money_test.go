package money

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestOf_NormalizesCurrency(t *testing.T) {
	m, err := Of(1500, " brl ")
	require.NoError(t, err)
	assert.Equal(t, "BRL", m.Currency())
	assert.Equal(t, uint64(1500), m.MinorUnits())

	_, err = Of(1, "R$")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestArithmetic(t *testing.T) {
	a := MustOf(1050, "BRL")
	b := MustOf(250, "BRL")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Equal(MustOf(1300, "BRL")))

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), diff.MinorUnits())

	_, err = b.Sub(a)
	assert.ErrorIs(t, err, ErrNegative)

	tripled, err := b.Mul(3)
	require.NoError(t, err)
	assert.Equal(t, "7.50", tripled.DecimalString())

	_, err = b.Mul(-1)
	assert.ErrorIs(t, err, ErrNegative)
}

func TestArithmetic_CurrencyMismatch(t *testing.T) {
	brl := MustOf(100, "BRL")
	usd := MustOf(100, "USD")

	_, err := brl.Add(usd)
	assert.True(t, errors.Is(err, ErrCurrencyMismatch))
	_, err = brl.Sub(usd)
	assert.True(t, errors.Is(err, ErrCurrencyMismatch))
	assert.False(t, brl.Equal(usd))
}

func TestMul_Overflow(t *testing.T) {
	m := MustOf(1<<62, "BRL")
	_, err := m.Mul(8)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestParseDecimal_RoundsHalfUp(t *testing.T) {
	cases := map[string]uint64{
		"12.34":  1234,
		"12.345": 1235,
		"12.344": 1234,
		"0.005":  1,
		"7":      700,
	}
	for in, want := range cases {
		m, err := ParseDecimal(in, "BRL")
		require.NoError(t, err, in)
		assert.Equal(t, want, m.MinorUnits(), in)
	}

	_, err := ParseDecimal("-1.00", "BRL")
	assert.ErrorIs(t, err, ErrNegative)
	_, err = ParseDecimal("abc", "BRL")
	assert.Error(t, err)
}

func TestDecimalString(t *testing.T) {
	assert.Equal(t, "0.00", MustOf(0, "BRL").DecimalString())
	assert.Equal(t, "0.07", MustOf(7, "BRL").DecimalString())
	assert.Equal(t, "30.00", MustOf(3000, "BRL").DecimalString())
	assert.Equal(t, "30.00 BRL", MustOf(3000, "BRL").String())
}

func TestDisplay_ContainsSymbol(t *testing.T) {
	out := MustOf(123450, "BRL").Display(language.BrazilianPortuguese)
	assert.Contains(t, out, "R$")
}
