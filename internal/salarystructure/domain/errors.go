package domain

import "errors"

var (
	ErrInvalidTenant              = errors.New("invalid_tenant")
	ErrInvalidCode                = errors.New("invalid_structure_code")
	ErrInvalidName                = errors.New("invalid_name")
	ErrInvalidEffectiveFrom       = errors.New("invalid_effective_from")
	ErrEmptyStructure             = errors.New("empty_structure")
	ErrInvalidComponent           = errors.New("invalid_component")
	ErrDuplicateComponent         = errors.New("duplicate_component")
	ErrUnknownComputation         = errors.New("unknown_computation")
	ErrUnknownComponentKind       = errors.New("unknown_component_kind")
	ErrMissingBaseComponent       = errors.New("missing_base_component")
	ErrInvalidFormula             = errors.New("invalid_formula")
	ErrUnknownReference           = errors.New("unknown_component_reference")
	ErrCyclicComponentDependency  = errors.New("cyclic_component_dependency")
	ErrStructureNotFound          = errors.New("structure_not_found")
	ErrStructureVersionChanged    = errors.New("structure_version_changed")
	ErrNoDefaultStructure         = errors.New("no_default_structure")
	ErrComponentEvaluationFailure = errors.New("component_evaluation_failed")
)
