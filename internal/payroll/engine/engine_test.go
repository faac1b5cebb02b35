package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	attendancedomain "github.com/smallbiznis/payrollengine/internal/attendance/domain"
	"github.com/smallbiznis/payrollengine/internal/payroll/domain"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func fixed(code string, amount string, proratable, pfWage, taxable bool) salarystructuredomain.Component {
	return salarystructuredomain.Component{
		Code:        code,
		Name:        code,
		Kind:        salarystructuredomain.KindEarning,
		Computation: salarystructuredomain.ComputationFixedAmount,
		Amount:      d(amount),
		Proratable:  proratable,
		PFWage:      pfWage,
		Taxable:     taxable,
	}
}

func compile(t *testing.T, components ...salarystructuredomain.Component) *salarystructuredomain.Plan {
	t.Helper()
	plan, err := salarystructuredomain.Compile(components)
	require.NoError(t, err)
	return plan
}

func attendance(total, paid string) attendancedomain.Aggregate {
	return attendancedomain.Aggregate{
		TotalDays: d(total),
		PaidDays:  d(paid),
		LOPDays:   d(total).Sub(d(paid)),
	}
}

func pfRule() *statutorydomain.Rule {
	return &statutorydomain.Rule{
		RuleType:            statutorydomain.RuleTypePF,
		WageCeiling:         d("15000"),
		EmployeeRatePercent: d("12"),
		EmployerRatePercent: d("12"),
	}
}

func esiRule() *statutorydomain.Rule {
	return &statutorydomain.Rule{
		RuleType:            statutorydomain.RuleTypeESI,
		WageCeiling:         d("21000"),
		EmployeeRatePercent: d("0.75"),
		EmployerRatePercent: d("3.25"),
	}
}

func ptRule() *statutorydomain.Rule {
	return &statutorydomain.Rule{
		RuleType: statutorydomain.RuleTypePT,
		Bands: statutorydomain.Bands{
			{LowerBound: d("0"), UpperBound: dp("7500"), Amount: d("0")},
			{LowerBound: d("7500"), UpperBound: dp("10000"), Amount: d("175")},
			{LowerBound: d("10000"), Amount: d("200")},
		},
	}
}

func tdsRule() *statutorydomain.Rule {
	return &statutorydomain.Rule{
		RuleType:          statutorydomain.RuleTypeTDS,
		StandardDeduction: d("50000"),
		CessRatePercent:   d("4"),
		Bands: statutorydomain.Bands{
			{LowerBound: d("0"), UpperBound: dp("300000"), RatePercent: d("0")},
			{LowerBound: d("300000"), UpperBound: dp("600000"), RatePercent: d("5")},
			{LowerBound: d("600000"), RatePercent: d("10")},
		},
	}
}

func TestCalculate_PFCeilingApplied(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision:     2,
		Plan:          compile(t, fixed("BASIC", "20000", true, true, true)),
		Applicability: domain.Applicability{PF: true},
		Attendance:    attendance("30", "30"),
		Rules:         statutorydomain.Rules{PF: pfRule()},
	})
	require.NoError(t, err)

	assert.True(t, res.PFWages.Equal(d("15000")))
	assert.True(t, res.PFEmployee.Equal(d("1800")), res.PFEmployee.String())
	assert.True(t, res.PFEmployer.Equal(d("1800")), res.PFEmployer.String())
	assert.True(t, res.NetPay.Equal(d("18200")))
}

func TestCalculate_ProratesByPaidDays(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision:  2,
		Plan:       compile(t, fixed("BASIC", "30000", true, false, true)),
		Attendance: attendance("30", "25"),
	})
	require.NoError(t, err)

	require.Len(t, res.Lines, 1)
	assert.True(t, res.Lines[0].Amount.Equal(d("25000")))
	assert.True(t, res.Lines[0].FullAmount.Equal(d("30000")))
	assert.True(t, res.GrossEarnings.Equal(d("25000")))
	assert.True(t, res.LOPAmount.Equal(d("5000")))
	assert.True(t, res.LOPDays.Equal(d("5")))
}

func TestCalculate_NonProratableIgnoresAttendance(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision: 2,
		Plan: compile(t,
			fixed("BASIC", "30000", true, false, true),
			fixed("MEAL", "1500", false, false, false),
		),
		Attendance: attendance("30", "15"),
	})
	require.NoError(t, err)

	assert.True(t, res.GrossEarnings.Equal(d("16500")))
	assert.True(t, res.TaxableEarnings.Equal(d("15000")))
	assert.True(t, res.LOPAmount.Equal(d("15000")))
}

func TestCalculate_RoundsEachLineOnce(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision: 2,
		Plan: compile(t,
			fixed("BASIC", "10000", true, false, true),
			fixed("HRA", "10000", true, false, true),
		),
		Attendance: attendance("31", "30"),
	})
	require.NoError(t, err)

	// 10000 x 30/31 = 9677.4193...
	for _, l := range res.Lines {
		assert.True(t, l.Amount.Equal(d("9677.42")), l.Amount.String())
	}
	assert.True(t, res.GrossEarnings.Equal(d("19354.84")))
	// LOP is rounded once over the unrounded differences: 2 x 322.5806... = 645.16
	assert.True(t, res.LOPAmount.Equal(d("645.16")), res.LOPAmount.String())
}

func TestCalculate_PercentAndFormulaComponents(t *testing.T) {
	plan := compile(t,
		fixed("BASIC", "20000", true, true, true),
		salarystructuredomain.Component{
			Code: "HRA", Kind: salarystructuredomain.KindEarning,
			Computation: salarystructuredomain.ComputationPercentOfBase,
			Percent:     d("40"), BaseComponent: "BASIC", Proratable: true, Taxable: true,
		},
		salarystructuredomain.Component{
			Code: "SPECIAL", Kind: salarystructuredomain.KindEarning,
			Computation: salarystructuredomain.ComputationFormula,
			Formula:     "max(0, 40000 - BASIC - HRA)", Proratable: true, Taxable: true,
		},
	)
	res, err := Calculate(domain.Input{Precision: 2, Plan: plan, Attendance: attendance("30", "30")})
	require.NoError(t, err)

	amounts := map[string]decimal.Decimal{}
	for _, l := range res.Lines {
		amounts[l.Code] = l.Amount
	}
	assert.True(t, amounts["HRA"].Equal(d("8000")))
	assert.True(t, amounts["SPECIAL"].Equal(d("12000")))
	assert.True(t, res.GrossEarnings.Equal(d("40000")))
}

func TestCalculate_OverrideReplacesFixedAmount(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision:  2,
		Plan:       compile(t, fixed("BASIC", "20000", true, false, true)),
		Overrides:  map[string]decimal.Decimal{"BASIC": d("24000")},
		Attendance: attendance("30", "30"),
	})
	require.NoError(t, err)
	assert.True(t, res.GrossEarnings.Equal(d("24000")))
}

func TestCalculate_ESICeiling(t *testing.T) {
	cases := []struct {
		name     string
		basic    string
		employee string
		employer string
	}{
		{name: "below ceiling", basic: "20000", employee: "150", employer: "650"},
		{name: "at ceiling", basic: "21000", employee: "157.5", employer: "682.5"},
		{name: "above ceiling", basic: "21000.01", employee: "0", employer: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Calculate(domain.Input{
				Precision:     2,
				Plan:          compile(t, fixed("BASIC", tc.basic, true, false, true)),
				Applicability: domain.Applicability{ESI: true},
				Attendance:    attendance("30", "30"),
				Rules:         statutorydomain.Rules{ESI: esiRule()},
			})
			require.NoError(t, err)
			assert.True(t, res.ESIEmployee.Equal(d(tc.employee)), res.ESIEmployee.String())
			assert.True(t, res.ESIEmployer.Equal(d(tc.employer)), res.ESIEmployer.String())
		})
	}
}

func TestCalculate_ProfessionalTaxBand(t *testing.T) {
	cases := []struct {
		basic string
		want  string
	}{
		{basic: "7000", want: "0"},
		{basic: "7500", want: "175"},
		{basic: "9999.99", want: "175"},
		{basic: "10000", want: "200"},
		{basic: "50000", want: "200"},
	}
	for _, tc := range cases {
		res, err := Calculate(domain.Input{
			Precision:     2,
			Plan:          compile(t, fixed("BASIC", tc.basic, false, false, true)),
			Applicability: domain.Applicability{PT: true},
			Attendance:    attendance("30", "30"),
			Rules:         statutorydomain.Rules{PT: ptRule()},
		})
		require.NoError(t, err)
		assert.True(t, res.ProfessionalTax.Equal(d(tc.want)), "basic %s got %s", tc.basic, res.ProfessionalTax)
	}
}

func TestCalculate_ProfessionalTaxOnBaseComponents(t *testing.T) {
	rule := ptRule()
	rule.BaseComponents = []string{"BASIC"}
	res, err := Calculate(domain.Input{
		Precision: 2,
		Plan: compile(t,
			fixed("BASIC", "7000", false, false, true),
			fixed("HRA", "5000", false, false, true),
		),
		Applicability: domain.Applicability{PT: true},
		Attendance:    attendance("30", "30"),
		Rules:         statutorydomain.Rules{PT: rule},
	})
	require.NoError(t, err)
	assert.True(t, res.ProfessionalTax.IsZero())
}

func TestCalculate_ProfessionalTaxUnknownBaseComponentFails(t *testing.T) {
	rule := ptRule()
	rule.BaseComponents = []string{"HOUSE_RENT"}
	_, err := Calculate(domain.Input{
		Precision: 2,
		Plan: compile(t,
			fixed("BASIC", "7000", false, false, true),
			fixed("HRA", "5000", false, false, true),
		),
		Applicability: domain.Applicability{PT: true},
		Attendance:    attendance("30", "30"),
		Rules:         statutorydomain.Rules{PT: rule},
	})
	require.ErrorIs(t, err, statutorydomain.ErrUnknownBaseComponent)
	assert.Equal(t, domain.FailureInvalidStatutory, domain.FailureCodeFor(err))
	assert.True(t, domain.IsEmployeeFailure(err))
}

func TestCalculate_ProfessionalTaxBaseMatchesNamedComponent(t *testing.T) {
	rule := ptRule()
	rule.BaseComponents = []string{"HOUSE_RENT"}
	hra := fixed("", "8000", false, false, true)
	hra.Name = "House Rent"
	res, err := Calculate(domain.Input{
		Precision:     2,
		Plan:          compile(t, fixed("BASIC", "7000", false, false, true), hra),
		Applicability: domain.Applicability{PT: true},
		Attendance:    attendance("30", "30"),
		Rules:         statutorydomain.Rules{PT: rule},
	})
	require.NoError(t, err)
	assert.True(t, res.ProfessionalTax.Equal(d("175")), res.ProfessionalTax.String())
}

func TestCalculate_TDSProjection(t *testing.T) {
	// 12 remaining periods of 60000: projected 720000, less 50000 standard
	// deduction = 670000. Tax: 300000 x 5% + 70000 x 10% = 22000, +4% cess = 22880.
	res, err := Calculate(domain.Input{
		Precision:        2,
		Plan:             compile(t, fixed("BASIC", "60000", true, false, true)),
		Applicability:    domain.Applicability{TDS: true},
		Attendance:       attendance("30", "30"),
		Rules:            statutorydomain.Rules{TDS: tdsRule()},
		RemainingPeriods: 12,
	})
	require.NoError(t, err)

	assert.True(t, res.ProjectedAnnualTaxable.Equal(d("720000")))
	assert.True(t, res.AnnualTax.Equal(d("22880")), res.AnnualTax.String())
	assert.True(t, res.TDS.Equal(d("1906.67")), res.TDS.String())
}

func TestCalculate_TDSUsesYearToDate(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision:        2,
		Plan:             compile(t, fixed("BASIC", "60000", true, false, true)),
		Applicability:    domain.Applicability{TDS: true},
		Attendance:       attendance("30", "30"),
		Rules:            statutorydomain.Rules{TDS: tdsRule()},
		YTD:              domain.YTD{TaxableEarnings: d("360000"), TDS: d("11440")},
		RemainingPeriods: 6,
	})
	require.NoError(t, err)

	// Same projection as a full year; half the tax is already withheld.
	assert.True(t, res.ProjectedAnnualTaxable.Equal(d("720000")))
	assert.True(t, res.TDS.Equal(d("1906.67")), res.TDS.String())
}

func TestCalculate_TDSNeverNegative(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision:        2,
		Plan:             compile(t, fixed("BASIC", "10000", true, false, true)),
		Applicability:    domain.Applicability{TDS: true},
		Attendance:       attendance("30", "30"),
		Rules:            statutorydomain.Rules{TDS: tdsRule()},
		YTD:              domain.YTD{TaxableEarnings: d("100000"), TDS: d("5000")},
		RemainingPeriods: 3,
	})
	require.NoError(t, err)
	assert.True(t, res.TDS.IsZero())
}

func TestCalculate_NetPayIdentity(t *testing.T) {
	plan := compile(t,
		fixed("BASIC", "18000", true, true, true),
		fixed("HRA", "7200", true, false, true),
		salarystructuredomain.Component{
			Code: "CANTEEN", Kind: salarystructuredomain.KindDeduction,
			Computation: salarystructuredomain.ComputationFixedAmount, Amount: d("500"),
		},
	)
	res, err := Calculate(domain.Input{
		Precision:        2,
		Plan:             plan,
		Applicability:    domain.Applicability{PF: true, ESI: true, PT: true, TDS: true},
		Attendance:       attendance("31", "28.5"),
		Rules:            statutorydomain.Rules{PF: pfRule(), ESI: esiRule(), PT: ptRule(), TDS: tdsRule()},
		RemainingPeriods: 9,
		VariablePayments: []domain.VariablePayment{{Code: "BONUS", Amount: d("1000"), Taxable: true}},
	})
	require.NoError(t, err)

	deductions := res.PFEmployee.Add(res.ESIEmployee).Add(res.ProfessionalTax).Add(res.TDS).Add(res.OtherDeductions)
	assert.True(t, res.GrossDeductions.Equal(deductions))
	assert.True(t, res.NetPay.Equal(res.GrossEarnings.Sub(res.GrossDeductions)))
	assert.True(t, res.OtherDeductions.Equal(d("500")))
	assert.True(t, res.PaidDays.Add(res.LOPDays).Equal(res.TotalDays))
	assert.Len(t, res.Lines, 4)
}

func TestCalculate_NegativeNetPay(t *testing.T) {
	plan := compile(t,
		fixed("BASIC", "1000", true, false, true),
		salarystructuredomain.Component{
			Code: "LOAN", Kind: salarystructuredomain.KindDeduction,
			Computation: salarystructuredomain.ComputationFixedAmount, Amount: d("5000"),
		},
	)
	_, err := Calculate(domain.Input{Precision: 2, Plan: plan, Attendance: attendance("30", "30")})
	require.ErrorIs(t, err, domain.ErrNegativeNetPay)
	assert.Equal(t, domain.FailureNegativeNetPay, domain.FailureCodeFor(err))
}

func TestCalculate_MissingRule(t *testing.T) {
	_, err := Calculate(domain.Input{
		Precision:     2,
		Plan:          compile(t, fixed("BASIC", "1000", true, false, true)),
		Applicability: domain.Applicability{PF: true},
		Attendance:    attendance("30", "30"),
	})
	require.ErrorIs(t, err, domain.ErrMissingRule)
	assert.Equal(t, domain.FailureConfigNotFound, domain.FailureCodeFor(err))
}

func TestCalculate_RejectsInconsistentAttendance(t *testing.T) {
	_, err := Calculate(domain.Input{
		Precision: 2,
		Plan:      compile(t, fixed("BASIC", "1000", true, false, true)),
		Attendance: attendancedomain.Aggregate{
			TotalDays: d("30"), PaidDays: d("20"), LOPDays: d("5"),
		},
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCalculate_Deterministic(t *testing.T) {
	in := domain.Input{
		Precision:     2,
		Plan:          compile(t, fixed("BASIC", "33333.33", true, true, true)),
		Applicability: domain.Applicability{PF: true, PT: true},
		Attendance:    attendance("31", "29"),
		Rules:         statutorydomain.Rules{PF: pfRule(), PT: ptRule()},
	}
	a, err := Calculate(in)
	require.NoError(t, err)
	b, err := Calculate(in)
	require.NoError(t, err)
	assert.Equal(t, a.Checksum(7), b.Checksum(7))
	assert.NotEqual(t, a.Checksum(7), a.Checksum(8))
}

func TestCalculate_VariablePaymentCountsTowardPFWages(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision:        2,
		Plan:             compile(t, fixed("BASIC", "10000", true, true, true)),
		Applicability:    domain.Applicability{PF: true},
		Attendance:       attendance("30", "30"),
		Rules:            statutorydomain.Rules{PF: pfRule()},
		VariablePayments: []domain.VariablePayment{{Code: "ARREARS", Amount: d("8000"), Taxable: true, PFWage: true}},
	})
	require.NoError(t, err)

	assert.True(t, res.GrossEarnings.Equal(d("18000")))
	assert.True(t, res.PFWages.Equal(d("15000")), res.PFWages.String())
	assert.True(t, res.PFEmployee.Equal(d("1800")))
}

func TestCalculate_RejectsInvalidVariablePayment(t *testing.T) {
	_, err := Calculate(domain.Input{
		Precision:        2,
		Plan:             compile(t, fixed("BASIC", "10000", true, false, true)),
		Attendance:       attendance("30", "30"),
		VariablePayments: []domain.VariablePayment{{Code: "BONUS", Amount: d("-1")}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, err, domain.ErrInvalidVariablePayment)
}

func TestCalculate_RejectsPrecisionBeyondStoredScale(t *testing.T) {
	_, err := Calculate(domain.Input{
		Precision:  5,
		Plan:       compile(t, fixed("BASIC", "10000", true, false, true)),
		Attendance: attendance("30", "30"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCalculate_SupplementaryComputesOnlyVariablePayments(t *testing.T) {
	in := domain.Input{
		Precision:        2,
		Applicability:    domain.Applicability{PF: true, ESI: true, PT: true, TDS: true},
		Rules:            statutorydomain.Rules{PF: pfRule(), ESI: esiRule(), PT: ptRule(), TDS: tdsRule()},
		RemainingPeriods: 12,
		VariablePayments: []domain.VariablePayment{{Code: "BONUS", Amount: d("10000"), Taxable: true, PFWage: true}},
		Baseline: &domain.Baseline{
			GrossEarnings:          d("20000"),
			PFWages:                d("12000"),
			ProfessionalTax:        d("200"),
			ProjectedAnnualTaxable: d("720000"),
		},
	}
	res, err := Calculate(in)
	require.NoError(t, err)

	require.Len(t, res.Lines, 1)
	assert.Equal(t, "BONUS", res.Lines[0].Code)
	assert.True(t, res.Lines[0].Variable)
	assert.True(t, res.TotalDays.IsZero())
	assert.True(t, res.GrossEarnings.Equal(d("10000")))

	// Only 3000 of ceiling headroom was left by the regular run.
	assert.True(t, res.PFWages.Equal(d("3000")), res.PFWages.String())
	assert.True(t, res.PFEmployee.Equal(d("360")))
	assert.True(t, res.PFEmployer.Equal(d("360")))
	// Combined gross 30000 is above the ESI ceiling; PT band already paid.
	assert.True(t, res.ESIEmployee.IsZero())
	assert.True(t, res.ProfessionalTax.IsZero())
	// Annual tax on 730000 is 23920 against 22880 on 720000.
	assert.True(t, res.ProjectedAnnualTaxable.Equal(d("730000")))
	assert.True(t, res.TDS.Equal(d("1040")), res.TDS.String())
	assert.True(t, res.NetPay.Equal(d("8600")), res.NetPay.String())
}

func TestCalculate_SupplementaryTopsUpProfessionalTaxAndESI(t *testing.T) {
	res, err := Calculate(domain.Input{
		Precision:        2,
		Applicability:    domain.Applicability{ESI: true, PT: true},
		Rules:            statutorydomain.Rules{ESI: esiRule(), PT: ptRule()},
		VariablePayments: []domain.VariablePayment{{Code: "BONUS", Amount: d("3000")}},
		Baseline: &domain.Baseline{
			GrossEarnings:          d("8000"),
			PFWages:                d("0"),
			ProfessionalTax:        d("175"),
			ProjectedAnnualTaxable: d("0"),
		},
	})
	require.NoError(t, err)

	assert.True(t, res.ProfessionalTax.Equal(d("25")), res.ProfessionalTax.String())
	assert.True(t, res.ESIWages.Equal(d("3000")))
	assert.True(t, res.ESIEmployee.Equal(d("22.5")), res.ESIEmployee.String())
	assert.True(t, res.ESIEmployer.Equal(d("97.5")), res.ESIEmployer.String())
	assert.True(t, res.NetPay.Equal(d("2952.5")), res.NetPay.String())
}
