package domain

import (
	"fmt"
	"time"
)

// Period is one calendar month of payroll.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func NewPeriod(month, year int) (Period, error) {
	if month < 1 || month > 12 || year < 2000 || year > 2200 {
		return Period{}, fmt.Errorf("%02d/%d: %w", month, year, ErrInvalidPeriod)
	}
	return Period{Month: month, Year: year}, nil
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the last calendar day of the month at midnight UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

func (p Period) Days() int {
	return p.End().Day()
}

func (p Period) String() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Month)
}
