package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingPeriods(t *testing.T) {
	s := Settings{FiscalYearStartMonth: 4}

	assert.Equal(t, 12, s.RemainingPeriods(time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 3, s.RemainingPeriods(time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, s.RemainingPeriods(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		s.FiscalYearStart(time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)))

	calendar := Settings{FiscalYearStartMonth: 1}
	assert.Equal(t, 7, calendar.RemainingPeriods(time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)))
}

func TestValidateCapsPrecisionAtStoredScale(t *testing.T) {
	s := Settings{TenantID: 1, CurrencyPrecision: 4, FiscalYearStartMonth: 4}
	assert.NoError(t, s.Validate())

	s.CurrencyPrecision = 5
	assert.ErrorIs(t, s.Validate(), ErrInvalidPrecision)

	s.CurrencyPrecision = -1
	assert.ErrorIs(t, s.Validate(), ErrInvalidPrecision)
}
