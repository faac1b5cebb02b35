// Package render serializes statutory extracts. Renderers are pure.
package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrollengine/internal/extract/domain"
)

// ecrSeparator is the EPFO ECR field delimiter.
const ecrSeparator = "#~#"

var csvHeader = []string{
	"employee_code", "uan", "name",
	"gross_wages", "epf_wages", "eps_wages", "edli_wages",
	"pf_employee", "pf_employer", "epf_contribution",
	"esi_number", "esi_wages", "esi_employee", "esi_employer",
	"ncp_days",
}

// ECR renders one line per member:
// UAN, name, gross, EPF, EPS and EDLI wages, employee PF, employer PF,
// EPF contribution, NCP days.
func ECR(ex *domain.Extract) []byte {
	amount := amountFn(ex)
	var buf bytes.Buffer
	for _, r := range ex.Rows {
		fields := []string{
			r.UAN,
			sanitizeECR(r.Name),
			amount(r.GrossWages),
			amount(r.EPFWages),
			amount(r.EPSWages),
			amount(r.EDLIWages),
			amount(r.PFEmployee),
			amount(r.PFEmployer),
			amount(r.EPFContribution),
			r.NCPDays.String(),
		}
		buf.WriteString(strings.Join(fields, ecrSeparator))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func CSV(ex *domain.Extract) ([]byte, error) {
	amount := amountFn(ex)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range ex.Rows {
		record := []string{
			r.EmployeeCode, r.UAN, r.Name,
			amount(r.GrossWages), amount(r.EPFWages), amount(r.EPSWages), amount(r.EDLIWages),
			amount(r.PFEmployee), amount(r.PFEmployer), amount(r.EPFContribution),
			r.ESINumber, amount(r.ESIWages), amount(r.ESIEmployee), amount(r.ESIEmployer),
			r.NCPDays.String(),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render dispatches on format and returns the body and its content type.
func Render(ex *domain.Extract, format domain.Format) ([]byte, string, error) {
	switch format {
	case domain.FormatECR:
		return ECR(ex), "text/plain; charset=utf-8", nil
	case domain.FormatCSV:
		body, err := CSV(ex)
		return body, "text/csv; charset=utf-8", err
	case domain.FormatJSON:
		body, err := json.Marshal(ex)
		return body, "application/json", err
	default:
		return nil, "", domain.ErrUnsupportedFormat
	}
}

// Filename is ECR_<year><month>_<runtype>_<id>.<ext>.
func Filename(ex *domain.Extract, format domain.Format) string {
	ext := string(format)
	if format == domain.FormatECR {
		ext = "txt"
	}
	period := strings.ReplaceAll(ex.Period, "-", "")
	return fmt.Sprintf("ECR_%s_%s_%s.%s", period, strings.ToLower(ex.RunType), ex.ID, ext)
}

func amountFn(ex *domain.Extract) func(decimal.Decimal) string {
	return func(v decimal.Decimal) string { return v.StringFixed(ex.Precision) }
}

func sanitizeECR(s string) string {
	s = strings.ReplaceAll(s, ecrSeparator, " ")
	return strings.Join(strings.Fields(s), " ")
}
