// Package engine is the pure payroll computation. It performs no I/O: every
// input is resolved by the caller beforehand, so the same Input always yields
// the same Result.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrollengine/internal/payroll/domain"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
)

// maxPrecision is the scale of the stored amount columns.
const maxPrecision = 4

// Calculate runs the payroll steps in fixed order. Rounding is half-up to
// in.Precision and applied once to each final value; totals are sums of
// already-rounded finals so the payslip always adds up.
func Calculate(in domain.Input) (domain.Result, error) {
	if err := validate(in); err != nil {
		return domain.Result{}, err
	}
	if in.Baseline != nil {
		return supplementary(in)
	}
	round := func(v decimal.Decimal) decimal.Decimal { return v.Round(in.Precision) }

	full, err := in.Plan.FullAmounts(in.Overrides)
	if err != nil {
		return domain.Result{}, err
	}

	res := domain.Result{
		TotalDays:             in.Attendance.TotalDays,
		PaidDays:              in.Attendance.PaidDays,
		LOPDays:               in.Attendance.LOPDays,
		AssumedFullAttendance: in.Attendance.AssumedFullAttendance,
		UsedSystemDefault:     in.Rules.UsedSystemDefault(),
	}

	// Steps 1-3: prorate, gross, loss of pay.
	gross := decimal.Zero
	taxable := decimal.Zero
	pfWages := decimal.Zero
	otherDeductions := decimal.Zero
	lopUnrounded := decimal.Zero
	amounts := make(map[string]decimal.Decimal, len(in.Plan.Components))
	for _, c := range in.Plan.Components {
		fullAmount := full[c.Code]
		amount := fullAmount
		if c.Proratable {
			amount = prorate(fullAmount, in.Attendance.PaidDays, in.Attendance.TotalDays)
			if c.Kind == salarystructuredomain.KindEarning {
				lopUnrounded = lopUnrounded.Add(fullAmount.Sub(amount))
			}
		}
		amount = round(amount)
		amounts[c.Code] = amount

		res.Lines = append(res.Lines, domain.Line{
			Code:       c.Code,
			Name:       c.Name,
			Kind:       c.Kind,
			FullAmount: round(fullAmount),
			Amount:     amount,
			Proratable: c.Proratable,
		})

		if c.Kind == salarystructuredomain.KindDeduction {
			otherDeductions = otherDeductions.Add(amount)
			continue
		}
		gross = gross.Add(amount)
		if c.Taxable {
			taxable = taxable.Add(amount)
		}
		if c.PFWage {
			pfWages = pfWages.Add(amount)
		}
	}
	vGross, vTaxable, vPFWages := addVariableLines(&res, in.VariablePayments, round)
	gross = gross.Add(vGross)
	taxable = taxable.Add(vTaxable)
	pfWages = pfWages.Add(vPFWages)
	res.GrossEarnings = gross
	res.TaxableEarnings = taxable
	res.LOPAmount = round(lopUnrounded)
	res.OtherDeductions = otherDeductions

	// Step 4: provident fund on the capped PF wage base.
	res.PFWages = decimal.Zero
	res.PFEmployee = decimal.Zero
	res.PFEmployer = decimal.Zero
	if in.Applicability.PF {
		rule := in.Rules.PF
		base := decimal.Min(pfWages, rule.WageCeiling)
		res.PFWages = base
		res.PFEmployee = round(statutorydomain.Percent(base, rule.EmployeeRatePercent))
		res.PFEmployer = round(statutorydomain.Percent(base, rule.EmployerRatePercent))
	}

	// Step 5: ESI, evaluated for this period alone.
	res.ESIWages = decimal.Zero
	res.ESIEmployee = decimal.Zero
	res.ESIEmployer = decimal.Zero
	if in.Applicability.ESI && !gross.GreaterThan(in.Rules.ESI.WageCeiling) {
		rule := in.Rules.ESI
		res.ESIWages = gross
		res.ESIEmployee = round(statutorydomain.Percent(gross, rule.EmployeeRatePercent))
		res.ESIEmployer = round(statutorydomain.Percent(gross, rule.EmployerRatePercent))
	}

	// Step 6: professional tax from the band containing the base.
	res.ProfessionalTax = decimal.Zero
	if in.Applicability.PT {
		base, err := ptBase(in.Rules.PT, gross, amounts)
		if err != nil {
			return domain.Result{}, err
		}
		res.ProfessionalTax = round(in.Rules.PT.Bands.FlatAmount(base))
	}

	// Step 7: withholding tax, re-projected every period from YTD figures.
	res.ProjectedAnnualTaxable = decimal.Zero
	res.AnnualTax = decimal.Zero
	res.TDS = decimal.Zero
	if in.Applicability.TDS {
		projected, annualTax, perPeriod := withholding(in, taxable)
		res.ProjectedAnnualTaxable = round(projected)
		res.AnnualTax = round(annualTax)
		res.TDS = round(perPeriod)
	}

	// Steps 8-9.
	return settle(res, in.Precision)
}

func settle(res domain.Result, precision int32) (domain.Result, error) {
	res.GrossDeductions = res.PFEmployee.
		Add(res.ESIEmployee).
		Add(res.ProfessionalTax).
		Add(res.TDS).
		Add(res.OtherDeductions)
	res.NetPay = res.GrossEarnings.Sub(res.GrossDeductions)
	if res.NetPay.IsNegative() {
		return res, fmt.Errorf("gross %s, deductions %s: %w",
			res.GrossEarnings.StringFixed(precision),
			res.GrossDeductions.StringFixed(precision),
			domain.ErrNegativeNetPay,
		)
	}
	return res, nil
}

// addVariableLines appends one unprorated earning line per payment and
// returns the rounded gross, taxable and PF wage sums they contribute.
func addVariableLines(res *domain.Result, payments []domain.VariablePayment, round func(decimal.Decimal) decimal.Decimal) (gross, taxable, pfWages decimal.Decimal) {
	gross, taxable, pfWages = decimal.Zero, decimal.Zero, decimal.Zero
	for _, vp := range payments {
		amount := round(vp.Amount)
		res.Lines = append(res.Lines, domain.Line{
			Code:       vp.Code,
			Name:       vp.Code,
			Kind:       salarystructuredomain.KindEarning,
			FullAmount: amount,
			Amount:     amount,
			Variable:   true,
		})
		gross = gross.Add(amount)
		if vp.Taxable {
			taxable = taxable.Add(amount)
		}
		if vp.PFWage {
			pfWages = pfWages.Add(amount)
		}
	}
	return gross, taxable, pfWages
}

// supplementary computes only the variable payments of a period whose
// regular run is already finalized. Statutory amounts are the increment the
// payments cause over the baseline: PF on the ceiling headroom left, ESI
// while the combined gross stays eligible, the PT band top-up and the extra
// annual tax, withheld in full.
func supplementary(in domain.Input) (domain.Result, error) {
	round := func(v decimal.Decimal) decimal.Decimal { return v.Round(in.Precision) }
	base := in.Baseline

	res := domain.Result{
		Lines:                  []domain.Line{},
		TotalDays:              decimal.Zero,
		PaidDays:               decimal.Zero,
		LOPDays:                decimal.Zero,
		LOPAmount:              decimal.Zero,
		OtherDeductions:        decimal.Zero,
		PFWages:                decimal.Zero,
		PFEmployee:             decimal.Zero,
		PFEmployer:             decimal.Zero,
		ESIWages:               decimal.Zero,
		ESIEmployee:            decimal.Zero,
		ESIEmployer:            decimal.Zero,
		ProfessionalTax:        decimal.Zero,
		ProjectedAnnualTaxable: decimal.Zero,
		AnnualTax:              decimal.Zero,
		TDS:                    decimal.Zero,
		UsedSystemDefault:      in.Rules.UsedSystemDefault(),
	}
	gross, taxable, pfWages := addVariableLines(&res, in.VariablePayments, round)
	res.GrossEarnings = gross
	res.TaxableEarnings = taxable

	if in.Applicability.PF {
		rule := in.Rules.PF
		headroom := rule.WageCeiling.Sub(base.PFWages)
		if headroom.IsNegative() {
			headroom = decimal.Zero
		}
		pfBase := decimal.Min(pfWages, headroom)
		res.PFWages = pfBase
		res.PFEmployee = round(statutorydomain.Percent(pfBase, rule.EmployeeRatePercent))
		res.PFEmployer = round(statutorydomain.Percent(pfBase, rule.EmployerRatePercent))
	}

	if in.Applicability.ESI && !base.GrossEarnings.Add(gross).GreaterThan(in.Rules.ESI.WageCeiling) {
		rule := in.Rules.ESI
		res.ESIWages = gross
		res.ESIEmployee = round(statutorydomain.Percent(gross, rule.EmployeeRatePercent))
		res.ESIEmployer = round(statutorydomain.Percent(gross, rule.EmployerRatePercent))
	}

	// A component-based PT base does not move with variable pay.
	if in.Applicability.PT && len(in.Rules.PT.BaseComponents) == 0 {
		due := round(in.Rules.PT.Bands.FlatAmount(base.GrossEarnings.Add(gross)))
		if topUp := due.Sub(base.ProfessionalTax); topUp.IsPositive() {
			res.ProfessionalTax = topUp
		}
	}

	if in.Applicability.TDS {
		projected := base.ProjectedAnnualTaxable.Add(taxable)
		before := annualTaxOn(in, base.ProjectedAnnualTaxable)
		after := annualTaxOn(in, projected)
		res.ProjectedAnnualTaxable = round(projected)
		res.AnnualTax = round(after)
		if extra := after.Sub(before); extra.IsPositive() {
			res.TDS = round(extra)
		}
	}

	return settle(res, in.Precision)
}

// prorate multiplies before dividing so exact ratios like 25/30 of 30000 stay exact.
func prorate(full, paidDays, totalDays decimal.Decimal) decimal.Decimal {
	if totalDays.IsZero() {
		return decimal.Zero
	}
	return full.Mul(paidDays).Div(totalDays)
}

// ptBase is gross earnings unless the rule names base components, each of
// which must be a component of the structure.
func ptBase(rule *statutorydomain.Rule, gross decimal.Decimal, amounts map[string]decimal.Decimal) (decimal.Decimal, error) {
	if len(rule.BaseComponents) == 0 {
		return gross, nil
	}
	base := decimal.Zero
	for _, code := range rule.BaseComponents {
		amount, ok := amounts[code]
		if !ok {
			return decimal.Zero, fmt.Errorf("professional tax base %q: %w", code, statutorydomain.ErrUnknownBaseComponent)
		}
		base = base.Add(amount)
	}
	return base, nil
}

// withholding projects annual taxable income, applies exemptions and the
// standard deduction, walks the slabs, adds cess and spreads the tax still
// owed over the remaining periods including this one.
func withholding(in domain.Input, currentTaxable decimal.Decimal) (projected, annualTax, perPeriod decimal.Decimal) {
	remaining := decimal.NewFromInt(int64(in.RemainingPeriods))

	projected = in.YTD.TaxableEarnings.Add(currentTaxable.Mul(remaining))
	annualTax = annualTaxOn(in, projected)

	owed := annualTax.Sub(in.YTD.TDS)
	if owed.IsNegative() {
		owed = decimal.Zero
	}
	return projected, annualTax, owed.Div(remaining)
}

// annualTaxOn applies exemptions and the standard deduction to a projected
// annual taxable income, walks the slabs and adds cess.
func annualTaxOn(in domain.Input, projected decimal.Decimal) decimal.Decimal {
	rule := in.Rules.TDS
	taxableIncome := projected.Sub(in.AnnualExemptions).Sub(rule.StandardDeduction)
	if taxableIncome.IsNegative() {
		taxableIncome = decimal.Zero
	}
	tax := rule.Bands.MarginalTax(taxableIncome)
	return tax.Add(statutorydomain.Percent(tax, rule.CessRatePercent))
}

func validate(in domain.Input) error {
	if in.Precision < 0 || in.Precision > maxPrecision {
		return fmt.Errorf("precision %d: %w", in.Precision, domain.ErrInvalidInput)
	}
	if _, err := domain.NormalizeVariablePayments(in.VariablePayments); err != nil {
		return fmt.Errorf("%w: %w", err, domain.ErrInvalidInput)
	}
	if in.Baseline == nil {
		if in.Plan == nil {
			return fmt.Errorf("no structure plan: %w", domain.ErrInvalidInput)
		}
		a := in.Attendance
		if !a.TotalDays.IsPositive() || a.PaidDays.IsNegative() || a.LOPDays.IsNegative() || !a.PaidDays.Add(a.LOPDays).Equal(a.TotalDays) {
			return fmt.Errorf("attendance %s+%s/%s: %w", a.PaidDays, a.LOPDays, a.TotalDays, domain.ErrInvalidInput)
		}
	}
	if in.Applicability.PF && in.Rules.PF == nil {
		return fmt.Errorf("PF: %w", domain.ErrMissingRule)
	}
	if in.Applicability.ESI && in.Rules.ESI == nil {
		return fmt.Errorf("ESI: %w", domain.ErrMissingRule)
	}
	if in.Applicability.PT && in.Rules.PT == nil {
		return fmt.Errorf("PT: %w", domain.ErrMissingRule)
	}
	if in.Applicability.TDS {
		if in.Rules.TDS == nil {
			return fmt.Errorf("TDS: %w", domain.ErrMissingRule)
		}
		if in.RemainingPeriods < 1 || in.RemainingPeriods > 12 {
			return fmt.Errorf("remaining periods %d: %w", in.RemainingPeriods, domain.ErrInvalidInput)
		}
	}
	return nil
}
