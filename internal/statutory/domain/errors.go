package domain

import "errors"

var (
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidRuleType       = errors.New("invalid_rule_type")
	ErrInvalidRate           = errors.New("invalid_rate")
	ErrInvalidBands          = errors.New("invalid_bands")
	ErrInvalidEffectiveRange = errors.New("invalid_effective_range")
	ErrOverlappingConfig     = errors.New("overlapping_config")
	ErrConfigNotFound        = errors.New("config_not_found")
	ErrInvalidBaseComponents = errors.New("invalid_base_components")
	// ErrUnknownBaseComponent is raised at calculation time when a configured
	// base code is not a component of the employee's structure.
	ErrUnknownBaseComponent = errors.New("unknown_base_component")
)
