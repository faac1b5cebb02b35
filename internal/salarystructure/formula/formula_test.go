package formula

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "HOUSE_RENT_ALLOWANCE", Identifier("House Rent Allowance"))
	assert.Equal(t, "BASIC", Identifier(" basic "))
	assert.Equal(t, "HRA", Identifier("hra"))
}

func TestEvalPrecedenceAndFunctions(t *testing.T) {
	vars := map[string]decimal.Decimal{
		"BASIC": d("30000"),
		"HRA":   d("12000"),
	}
	cases := map[string]string{
		"basic * 40 / 100":          "12000",
		"(BASIC + HRA) * 0.1":       "4200",
		"BASIC - HRA * 2":           "6000",
		"-HRA + BASIC":              "18000",
		"min(BASIC, 15000)":         "15000",
		"max(1600, BASIC * 0.0001)": "1600",
		"round(BASIC / 7, 2)":       "4285.71",
		"1600":                      "1600",
	}
	for src, want := range cases {
		expr, err := Parse(src)
		require.NoError(t, err, src)
		got, err := expr.Eval(vars)
		require.NoError(t, err, src)
		assert.True(t, got.Equal(d(want)), "%s = %s, want %s", src, got, want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"", "BASIC *", "(BASIC", "BASIC $ 2", "min()", "1 2"} {
		_, err := Parse(src)
		assert.ErrorIs(t, err, ErrSyntax, src)
	}
	_, err := Parse("sqrt(BASIC)")
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestEvalErrors(t *testing.T) {
	expr, err := Parse("BASIC / (HRA - HRA)")
	require.NoError(t, err)
	_, err = expr.Eval(map[string]decimal.Decimal{"BASIC": d("1"), "HRA": d("2")})
	assert.ErrorIs(t, err, ErrDivisionByZero)

	expr, err = Parse("SPECIAL + 1")
	require.NoError(t, err)
	_, err = expr.Eval(map[string]decimal.Decimal{})
	assert.ErrorIs(t, err, ErrUnknownIdentifier)
}

func TestRefs(t *testing.T) {
	expr, err := Parse("min(basic, hra) + Basic * 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"BASIC", "HRA"}, Refs(expr))
}

func TestOrder(t *testing.T) {
	order, err := Order(
		[]string{"SPECIAL", "BASIC", "HRA"},
		map[string][]string{"SPECIAL": {"HRA", "BASIC"}, "HRA": {"BASIC"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"BASIC", "HRA", "SPECIAL"}, order)

	_, err = Order(
		[]string{"A", "B", "C"},
		map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}},
	)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "A -> B -> C -> A")
}
