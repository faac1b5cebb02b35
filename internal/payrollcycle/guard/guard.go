// Package guard holds the payroll cycle transition rules.
package guard

import (
	"github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
)

// EnsureCanRun accepts DRAFT and IN_PROGRESS; runs against finalized cycles are rejected.
func EnsureCanRun(status domain.CycleStatus) error {
	switch status {
	case domain.CycleStatusDraft, domain.CycleStatusInProgress:
		return nil
	case domain.CycleStatusLocked, domain.CycleStatusPaid:
		return domain.ErrCycleLocked
	default:
		return domain.ErrInvalidTransition
	}
}

func EnsureCanLock(status domain.CycleStatus) error {
	switch status {
	case domain.CycleStatusInProgress:
		return nil
	case domain.CycleStatusLocked, domain.CycleStatusPaid:
		return domain.ErrCycleAlreadyLocked
	default:
		return domain.ErrInvalidTransition
	}
}

func EnsureCanMarkPaid(status domain.CycleStatus) error {
	if status != domain.CycleStatusLocked {
		return domain.ErrInvalidTransition
	}
	return nil
}

func EnsureCanDelete(status domain.CycleStatus) error {
	if status.Finalized() {
		return domain.ErrInvalidTransition
	}
	return nil
}

// EnsureComplete checks every in-scope employee has a successful run.
func EnsureComplete(inScope []string, succeeded map[string]bool) error {
	for _, id := range inScope {
		if !succeeded[id] {
			return domain.ErrIncompleteCycle
		}
	}
	return nil
}
