package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatECR  Format = "ecr"
	FormatCSV  Format = "csv"
)

// ParseFormat defaults to JSON when raw is empty.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatECR:
		return FormatECR, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Row is one member line of the remittance extract.
type Row struct {
	EmployeeID      snowflake.ID    `json:"employee_id"`
	EmployeeCode    string          `json:"employee_code"`
	UAN             string          `json:"uan"`
	Name            string          `json:"name"`
	GrossWages      decimal.Decimal `json:"gross_wages"`
	EPFWages        decimal.Decimal `json:"epf_wages"`
	EPSWages        decimal.Decimal `json:"eps_wages"`
	EDLIWages       decimal.Decimal `json:"edli_wages"`
	PFEmployee      decimal.Decimal `json:"pf_employee"`
	PFEmployer      decimal.Decimal `json:"pf_employer"`
	EPFContribution decimal.Decimal `json:"epf_contribution"`
	ESINumber       string          `json:"esi_number,omitempty"`
	ESIWages        decimal.Decimal `json:"esi_wages"`
	ESIEmployee     decimal.Decimal `json:"esi_employee"`
	ESIEmployer     decimal.Decimal `json:"esi_employer"`
	NCPDays         decimal.Decimal `json:"ncp_days"`
}

type Totals struct {
	GrossWages      decimal.Decimal `json:"gross_wages"`
	EPFWages        decimal.Decimal `json:"epf_wages"`
	PFEmployee      decimal.Decimal `json:"pf_employee"`
	PFEmployer      decimal.Decimal `json:"pf_employer"`
	EPFContribution decimal.Decimal `json:"epf_contribution"`
	ESIWages        decimal.Decimal `json:"esi_wages"`
	ESIEmployee     decimal.Decimal `json:"esi_employee"`
	ESIEmployer     decimal.Decimal `json:"esi_employer"`
	NCPDays         decimal.Decimal `json:"ncp_days"`
}

func (t Totals) add(r Row) Totals {
	return Totals{
		GrossWages:      t.GrossWages.Add(r.GrossWages),
		EPFWages:        t.EPFWages.Add(r.EPFWages),
		PFEmployee:      t.PFEmployee.Add(r.PFEmployee),
		PFEmployer:      t.PFEmployer.Add(r.PFEmployer),
		EPFContribution: t.EPFContribution.Add(r.EPFContribution),
		ESIWages:        t.ESIWages.Add(r.ESIWages),
		ESIEmployee:     t.ESIEmployee.Add(r.ESIEmployee),
		ESIEmployer:     t.ESIEmployer.Add(r.ESIEmployer),
		NCPDays:         t.NCPDays.Add(r.NCPDays),
	}
}

// Round returns r with every amount rounded to precision decimal places.
func (r Row) Round(precision int32) Row {
	for _, v := range []*decimal.Decimal{
		&r.GrossWages, &r.EPFWages, &r.EPSWages, &r.EDLIWages,
		&r.PFEmployee, &r.PFEmployer, &r.EPFContribution,
		&r.ESIWages, &r.ESIEmployee, &r.ESIEmployer,
	} {
		*v = v.Round(precision)
	}
	return r
}

// Sum totals the rows.
func Sum(rows []Row) Totals {
	var t Totals
	for _, r := range rows {
		t = t.add(r)
	}
	return t
}

// Extract is a reconciled statutory remittance for one finalized cycle.
type Extract struct {
	ID          string       `json:"id"`
	TenantID    snowflake.ID `json:"tenant_id"`
	CycleID     snowflake.ID `json:"cycle_id"`
	Period      string       `json:"period"`
	RunType     string       `json:"run_type"`
	GeneratedAt time.Time    `json:"generated_at"`
	// Precision is the currency precision captured when the cycle locked.
	Precision int32  `json:"precision"`
	Rows      []Row  `json:"rows"`
	Totals    Totals `json:"totals"`
}
