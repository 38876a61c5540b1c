// Package validate implements the Procedure Validator (C4): the static
// analyzer that rejects ill-formed procedures before execution. Grounded
// exhaustively on
// original_source/backend/app/cwr/contracts/validation.py, which is the
// exact source for the phase ordering, the short-circuit-on-schema-error
// rule, branch-sibling scope copying, and the closed error-code catalogue
// reproduced below from spec.md §4.3.
package validate

// Code is one of the closed set of validator finding codes.
type Code string

const (
	MissingRequiredField       Code = "MISSING_REQUIRED_FIELD"
	InvalidFieldType           Code = "INVALID_FIELD_TYPE"
	InvalidSlugFormat          Code = "INVALID_SLUG_FORMAT"
	EmptySteps                 Code = "EMPTY_STEPS"
	DuplicateStepName          Code = "DUPLICATE_STEP_NAME"
	DuplicateParameterName     Code = "DUPLICATE_PARAMETER_NAME"
	ContradictoryParameter     Code = "CONTRADICTORY_PARAMETER"
	MissingParameterName       Code = "MISSING_PARAMETER_NAME"
	UnknownFunction            Code = "UNKNOWN_FUNCTION"
	MissingRequiredParam       Code = "MISSING_REQUIRED_PARAM"
	UnknownFunctionParam       Code = "UNKNOWN_FUNCTION_PARAM"
	InvalidParamType           Code = "INVALID_PARAM_TYPE"
	InvalidStepReference       Code = "INVALID_STEP_REFERENCE"
	InvalidParamReference      Code = "INVALID_PARAM_REFERENCE"
	CircularDependency         Code = "CIRCULAR_DEPENDENCY"
	InvalidTemplateSyntax      Code = "INVALID_TEMPLATE_SYNTAX"
	InvalidOnErrorPolicy       Code = "INVALID_ON_ERROR_POLICY"
	MissingRequiredBranch      Code = "MISSING_REQUIRED_BRANCH"
	EmptyBranch                Code = "EMPTY_BRANCH"
	InsufficientBranches       Code = "INSUFFICIENT_BRANCHES"
	InvalidBranchStructure     Code = "INVALID_BRANCH_STRUCTURE"
	FunctionMismatchWarning    Code = "FUNCTION_MISMATCH_WARNING"
	InvalidFacetFilter         Code = "INVALID_FACET_FILTER"
	InvalidOutputFieldReference Code = "INVALID_OUTPUT_FIELD_REFERENCE"
)

// Issue is one structured validator finding (§4.3).
type Issue struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Path    string          `json:"path"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the validator's output (§4.3, §6 "Validation result format").
type Result struct {
	Valid        bool    `json:"valid"`
	Errors       []Issue `json:"errors"`
	Warnings     []Issue `json:"warnings"`
	ErrorCount   int     `json:"error_count"`
	WarningCount int     `json:"warning_count"`
}

func (r *Result) addError(i Issue) {
	r.Errors = append(r.Errors, i)
	r.ErrorCount++
	r.Valid = false
}

func (r *Result) addWarning(i Issue) {
	r.Warnings = append(r.Warnings, i)
	r.WarningCount++
}
