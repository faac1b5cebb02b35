package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrollengine/internal/attendance/domain"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	tenantsettingsdomain "github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AggregatorParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	Employees employeedomain.Service
	Settings  tenantsettingsdomain.Service
}

type Aggregator struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	employees employeedomain.Service
	settings  tenantsettingsdomain.Service
}

func NewAggregator(p AggregatorParam) domain.Aggregator {
	return &Aggregator{
		db:        p.DB,
		log:       p.Log.Named("attendance.aggregator"),
		repo:      p.Repo,
		employees: p.Employees,
		settings:  p.Settings,
	}
}

var (
	one  = decimal.NewFromInt(1)
	half = decimal.RequireFromString("0.5")
)

func (a *Aggregator) Aggregate(ctx context.Context, tenantID, employeeID snowflake.ID, periodStart, periodEnd time.Time) (domain.Aggregate, error) {
	periodStart, periodEnd = truncateDay(periodStart), truncateDay(periodEnd)
	if periodEnd.Before(periodStart) {
		return domain.Aggregate{}, domain.ErrInvalidPeriod
	}

	emp, err := a.employees.Get(ctx, tenantID, employeeID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	records, err := a.repo.ListRecords(ctx, a.db, tenantID, employeeID, periodStart, periodEnd)
	if err != nil {
		return domain.Aggregate{}, err
	}
	leaves, err := a.repo.ListLeaves(ctx, a.db, tenantID, employeeID, periodStart, periodEnd)
	if err != nil {
		return domain.Aggregate{}, err
	}

	assumeFull := false
	if len(records) == 0 && len(leaves) == 0 {
		settings, err := a.settings.Get(ctx, tenantID)
		if err != nil {
			return domain.Aggregate{}, err
		}
		if !settings.AssumeFullAttendance {
			return domain.Aggregate{}, domain.ErrNoAttendanceData
		}
		assumeFull = true
	}

	return Summarize(*emp, records, leaves, periodStart, periodEnd, assumeFull), nil
}

// Summarize classifies each calendar day of the period. Any leave covering a
// day decides it before attendance does: approved paid leave is paid, every
// other leave is loss of pay even over a PRESENT record. Without leave the
// attendance record decides and a day with neither is loss of pay. Days
// outside employment are always loss of pay.
func Summarize(emp employeedomain.Employee, records []domain.Record, leaves []domain.Leave, periodStart, periodEnd time.Time, assumeFull bool) domain.Aggregate {
	byDay := make(map[time.Time]domain.AttendanceStatus, len(records))
	for _, r := range records {
		byDay[truncateDay(r.Date)] = r.Status
	}

	agg := domain.Aggregate{
		TotalDays:             decimal.Zero,
		PaidDays:              decimal.Zero,
		LOPDays:               decimal.Zero,
		WorkedDays:            decimal.Zero,
		PaidLeaveDays:         decimal.Zero,
		AssumedFullAttendance: assumeFull,
	}
	for day := periodStart; !day.After(periodEnd); day = day.AddDate(0, 0, 1) {
		agg.TotalDays = agg.TotalDays.Add(one)

		if !emp.EmployedOn(day) {
			agg.LOPDays = agg.LOPDays.Add(one)
			continue
		}
		if assumeFull {
			agg.PaidDays = agg.PaidDays.Add(one)
			agg.WorkedDays = agg.WorkedDays.Add(one)
			continue
		}
		switch leaveOn(leaves, day) {
		case leavePaid:
			agg.PaidDays = agg.PaidDays.Add(one)
			agg.PaidLeaveDays = agg.PaidLeaveDays.Add(one)
			continue
		case leaveUnpaid:
			agg.LOPDays = agg.LOPDays.Add(one)
			continue
		}

		switch byDay[day] {
		case domain.StatusPresent:
			agg.PaidDays = agg.PaidDays.Add(one)
			agg.WorkedDays = agg.WorkedDays.Add(one)
		case domain.StatusHoliday, domain.StatusWeeklyOff:
			agg.PaidDays = agg.PaidDays.Add(one)
		case domain.StatusHalfDay:
			agg.PaidDays = agg.PaidDays.Add(half)
			agg.WorkedDays = agg.WorkedDays.Add(half)
			agg.LOPDays = agg.LOPDays.Add(half)
		default:
			// absent or no record
			agg.LOPDays = agg.LOPDays.Add(one)
		}
	}
	return agg
}

type leaveKind int

const (
	leaveNone leaveKind = iota
	leaveUnpaid
	leavePaid
)

// leaveOn resolves the leave covering day. Approved paid leave wins when
// requests overlap; pending, rejected and unpaid requests make the day LOP.
func leaveOn(leaves []domain.Leave, day time.Time) leaveKind {
	kind := leaveNone
	for _, l := range leaves {
		if !l.Covers(day) {
			continue
		}
		if l.PaysDay() {
			return leavePaid
		}
		kind = leaveUnpaid
	}
	return kind
}

func truncateDay(t time.Time) time.Time {
	return domain.Day(t)
}
