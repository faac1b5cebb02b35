package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNoAttendanceData = errors.New("no_attendance_data")
	ErrInvalidPeriod    = errors.New("invalid_period")
)

type AttendanceStatus string

const (
	StatusPresent   AttendanceStatus = "PRESENT"
	StatusAbsent    AttendanceStatus = "ABSENT"
	StatusHalfDay   AttendanceStatus = "HALF_DAY"
	StatusHoliday   AttendanceStatus = "HOLIDAY"
	StatusWeeklyOff AttendanceStatus = "WEEKLY_OFF"
)

type LeaveStatus string

const (
	LeaveApproved LeaveStatus = "APPROVED"
	LeavePending  LeaveStatus = "PENDING"
	LeaveRejected LeaveStatus = "REJECTED"
)

// Record is one day of attendance from the time-keeping system.
type Record struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	TenantID   snowflake.ID     `gorm:"column:tenant_id;not null;index:ix_attendance_records_day,priority:1"`
	EmployeeID snowflake.ID     `gorm:"column:employee_id;not null;index:ix_attendance_records_day,priority:2"`
	Date       time.Time        `gorm:"column:date;not null;index:ix_attendance_records_day,priority:3"`
	Status     AttendanceStatus `gorm:"type:text;not null"`
	CreatedAt  time.Time        `gorm:"not null"`
}

func (Record) TableName() string { return "attendance_records" }

// Leave is a leave request spanning StartDate..EndDate inclusive.
type Leave struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;index:ix_leave_records_employee,priority:1"`
	EmployeeID snowflake.ID `gorm:"column:employee_id;not null;index:ix_leave_records_employee,priority:2"`
	StartDate  time.Time    `gorm:"column:start_date;not null"`
	EndDate    time.Time    `gorm:"column:end_date;not null"`
	Paid       bool         `gorm:"not null"`
	Status     LeaveStatus  `gorm:"type:text;not null"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (Leave) TableName() string { return "leave_records" }

// Covers reports whether the leave spans the calendar day of d. Both bounds
// are compared by UTC date, so a leave stored with a time of day still covers
// its first and last day.
func (l Leave) Covers(d time.Time) bool {
	day := Day(d)
	return !day.Before(Day(l.StartDate)) && !day.After(Day(l.EndDate))
}

// PaysDay reports whether the leave keeps the day paid.
func (l Leave) PaysDay() bool {
	return l.Status == LeaveApproved && l.Paid
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Aggregate is derived per employee and period; PaidDays + LOPDays always
// equals TotalDays.
type Aggregate struct {
	TotalDays             decimal.Decimal `json:"total_days"`
	PaidDays              decimal.Decimal `json:"paid_days"`
	LOPDays               decimal.Decimal `json:"lop_days"`
	WorkedDays            decimal.Decimal `json:"worked_days"`
	PaidLeaveDays         decimal.Decimal `json:"paid_leave_days"`
	AssumedFullAttendance bool            `json:"assumed_full_attendance"`
}

type Repository interface {
	ListRecords(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, start, end time.Time) ([]Record, error)
	ListLeaves(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, start, end time.Time) ([]Leave, error)
}

type Aggregator interface {
	Aggregate(ctx context.Context, tenantID, employeeID snowflake.ID, periodStart, periodEnd time.Time) (Aggregate, error)
}
