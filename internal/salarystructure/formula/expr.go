package formula

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Expr is a parsed formula.
type Expr interface {
	Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error)
	collectRefs(into map[string]struct{})
}

// Refs returns the identifiers an expression references, sorted.
func Refs(e Expr) []string {
	set := make(map[string]struct{})
	e.collectRefs(set)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type number struct{ value decimal.Decimal }

func (n number) Eval(map[string]decimal.Decimal) (decimal.Decimal, error) { return n.value, nil }
func (n number) collectRefs(map[string]struct{})                          {}

type ident struct{ name string }

func (i ident) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, ok := vars[i.name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", i.name, ErrUnknownIdentifier)
	}
	return v, nil
}

func (i ident) collectRefs(into map[string]struct{}) { into[i.name] = struct{}{} }

type negate struct{ operand Expr }

func (n negate) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.operand.Eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

func (n negate) collectRefs(into map[string]struct{}) { n.operand.collectRefs(into) }

type binary struct {
	op          byte
	left, right Expr
}

func (b binary) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := b.left.Eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := b.right.Eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch b.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	default:
		if r.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return l.Div(r), nil
	}
}

func (b binary) collectRefs(into map[string]struct{}) {
	b.left.collectRefs(into)
	b.right.collectRefs(into)
}

type call struct {
	fn   string
	args []Expr
}

func (c call) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	values := make([]decimal.Decimal, 0, len(c.args))
	for _, arg := range c.args {
		v, err := arg.Eval(vars)
		if err != nil {
			return decimal.Zero, err
		}
		values = append(values, v)
	}
	switch c.fn {
	case "min":
		return decimal.Min(values[0], values[1:]...), nil
	case "max":
		return decimal.Max(values[0], values[1:]...), nil
	default:
		places := int32(0)
		if len(values) == 2 {
			places = int32(values[1].IntPart())
		}
		return values[0].Round(places), nil
	}
}

func (c call) collectRefs(into map[string]struct{}) {
	for _, arg := range c.args {
		arg.collectRefs(into)
	}
}
