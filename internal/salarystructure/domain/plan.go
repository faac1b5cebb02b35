package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/formula"
)

// Plan is a structure version compiled into evaluation order. Plans are
// immutable and safe to share between goroutines.
type Plan struct {
	Components []Component
	order      []int
	formulas   map[string]formula.Expr
}

// Compile validates components and builds their dependency graph. The same
// checks run when a version is saved and when a stored version is first used.
func Compile(components []Component) (*Plan, error) {
	if len(components) == 0 {
		return nil, ErrEmptyStructure
	}

	index := make(map[string]int, len(components))
	normalized := make([]Component, len(components))
	for i, c := range components {
		c.Code = formula.Identifier(firstNonEmpty(c.Code, c.Name))
		c.BaseComponent = formula.Identifier(c.BaseComponent)
		if c.Code == "" {
			return nil, fmt.Errorf("component %d: %w", i, ErrInvalidComponent)
		}
		if _, dup := index[c.Code]; dup {
			return nil, fmt.Errorf("%s: %w", c.Code, ErrDuplicateComponent)
		}
		index[c.Code] = i
		normalized[i] = c
	}

	nodes := make([]string, 0, len(normalized))
	deps := make(map[string][]string, len(normalized))
	formulas := make(map[string]formula.Expr)
	for _, c := range normalized {
		nodes = append(nodes, c.Code)
		if c.Kind != KindEarning && c.Kind != KindDeduction {
			return nil, fmt.Errorf("%s: %w", c.Code, ErrUnknownComponentKind)
		}
		switch c.Computation {
		case ComputationFixedAmount:
			if c.Amount.IsNegative() {
				return nil, fmt.Errorf("%s: negative amount: %w", c.Code, ErrInvalidComponent)
			}
		case ComputationPercentOfBase:
			if c.BaseComponent == "" {
				return nil, fmt.Errorf("%s: %w", c.Code, ErrMissingBaseComponent)
			}
			if _, ok := index[c.BaseComponent]; !ok {
				return nil, fmt.Errorf("%s: base %s: %w", c.Code, c.BaseComponent, ErrMissingBaseComponent)
			}
			if c.Percent.IsNegative() {
				return nil, fmt.Errorf("%s: negative percent: %w", c.Code, ErrInvalidComponent)
			}
			deps[c.Code] = []string{c.BaseComponent}
		case ComputationFormula:
			expr, err := formula.Parse(c.Formula)
			if err != nil {
				return nil, fmt.Errorf("%s: %v: %w", c.Code, err, ErrInvalidFormula)
			}
			refs := formula.Refs(expr)
			for _, ref := range refs {
				if _, ok := index[ref]; !ok {
					return nil, fmt.Errorf("%s references %s: %w", c.Code, ref, ErrUnknownReference)
				}
			}
			formulas[c.Code] = expr
			deps[c.Code] = refs
		default:
			return nil, fmt.Errorf("%s: %q: %w", c.Code, c.Computation, ErrUnknownComputation)
		}
	}

	ordered, err := formula.Order(nodes, deps)
	if err != nil {
		if errors.Is(err, formula.ErrCycle) {
			return nil, fmt.Errorf("%v: %w", err, ErrCyclicComponentDependency)
		}
		return nil, err
	}
	order := make([]int, 0, len(ordered))
	for _, code := range ordered {
		order = append(order, index[code])
	}

	return &Plan{Components: normalized, order: order, formulas: formulas}, nil
}

// FullAmounts evaluates every component's full-period amount, unrounded.
// overrides replace FIXED_AMOUNT values by component code.
func (p *Plan) FullAmounts(overrides map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	values := make(map[string]decimal.Decimal, len(p.Components))
	for _, i := range p.order {
		c := p.Components[i]
		var v decimal.Decimal
		switch c.Computation {
		case ComputationFixedAmount:
			v = c.Amount
			if o, ok := overrides[c.Code]; ok {
				v = o
			}
		case ComputationPercentOfBase:
			v = values[c.BaseComponent].Mul(c.Percent).Div(decimal.NewFromInt(100))
		case ComputationFormula:
			result, err := p.formulas[c.Code].Eval(values)
			if err != nil {
				return nil, fmt.Errorf("%s: %v: %w", c.Code, err, ErrComponentEvaluationFailure)
			}
			v = result
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("%s evaluated to %s: %w", c.Code, v, ErrComponentEvaluationFailure)
		}
		values[c.Code] = v
	}
	return values, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
