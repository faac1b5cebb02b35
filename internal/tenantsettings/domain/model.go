package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPrecision = errors.New("invalid_precision")
	ErrInvalidFYStart   = errors.New("invalid_fiscal_year_start_month")
)

// MaxCurrencyPrecision is bounded by the numeric(20,4) amount columns.
const MaxCurrencyPrecision = 4

// Settings are the read-only tenant inputs the engine consumes: currency
// precision, fiscal-year start and the attendance fallback switch.
type Settings struct {
	TenantID             snowflake.ID `gorm:"primaryKey;column:tenant_id"`
	CurrencyPrecision    int32        `gorm:"column:currency_precision;not null"`
	FiscalYearStartMonth int          `gorm:"column:fiscal_year_start_month;not null"`
	AssumeFullAttendance bool         `gorm:"column:assume_full_attendance;not null"`
	CreatedAt            time.Time    `gorm:"not null"`
	UpdatedAt            time.Time    `gorm:"not null"`
}

func (Settings) TableName() string { return "tenant_payroll_settings" }

func (s *Settings) Validate() error {
	if s.TenantID == 0 {
		return ErrInvalidTenant
	}
	if s.CurrencyPrecision < 0 || s.CurrencyPrecision > MaxCurrencyPrecision {
		return ErrInvalidPrecision
	}
	if s.FiscalYearStartMonth < 1 || s.FiscalYearStartMonth > 12 {
		return ErrInvalidFYStart
	}
	return nil
}

// FiscalYearStart returns the first day of the fiscal year containing d.
func (s Settings) FiscalYearStart(d time.Time) time.Time {
	start := time.Month(s.FiscalYearStartMonth)
	year := d.Year()
	if d.Month() < start {
		year--
	}
	return time.Date(year, start, 1, 0, 0, 0, 0, time.UTC)
}

// RemainingPeriods counts monthly periods from the period containing d to the
// end of its fiscal year, inclusive of the current one.
func (s Settings) RemainingPeriods(d time.Time) int {
	fyStart := s.FiscalYearStart(d)
	elapsed := (d.Year()-fyStart.Year())*12 + int(d.Month()) - int(fyStart.Month())
	return 12 - elapsed
}

type UpsertRequest struct {
	CurrencyPrecision    *int32 `json:"currency_precision"`
	FiscalYearStartMonth *int   `json:"fiscal_year_start_month"`
	AssumeFullAttendance *bool  `json:"assume_full_attendance"`
}

type Service interface {
	// Get returns stored settings or the engine defaults when the tenant has none.
	Get(ctx context.Context, tenantID snowflake.ID) (Settings, error)
	Upsert(ctx context.Context, tenantID snowflake.ID, req UpsertRequest) (Settings, error)
}
