package apiframework

import "errors"

// Standard error constants
var (
	ErrMissingParameter      = errors.New("chainops: missing parameter")
	ErrInvalidParameterValue = errors.New("chainops: invalid parameter value type")
	ErrEmptyRequest          = errors.New("chainops: empty request")
	ErrInvalidChain          = errors.New("chainops: invalid chain definition")

	ErrBadRequest          = errors.New("chainops: bad request")
	ErrUnprocessableEntity = errors.New("chainops: unprocessable entity")
	ErrNotFound            = errors.New("chainops: not found")
	ErrConflict            = errors.New("chainops: conflict")
	ErrForbidden           = errors.New("chainops: forbidden")
	ErrInternalServerError = errors.New("chainops: internal server error")

	ErrDispatchFailed = errors.New("chainops: dispatch failed")
	ErrStepFailed     = errors.New("chainops: step failed")
)

// Kind is the closed taxonomy of failure classes the orchestrator reports.
// Callers branch on Kind (via KindOf), never on error message text.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorizationDenied
	KindDispatchFailure
	KindStepFailure
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorizationDenied:
		return "authorization_denied"
	case KindDispatchFailure:
		return "dispatch_failure"
	case KindStepFailure:
		return "step_failure"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var kindMappings = []struct {
	err  error
	kind Kind
}{
	{ErrMissingParameter, KindValidation},
	{ErrInvalidParameterValue, KindValidation},
	{ErrEmptyRequest, KindValidation},
	{ErrInvalidChain, KindValidation},
	{ErrBadRequest, KindValidation},
	{ErrUnprocessableEntity, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrForbidden, KindAuthorizationDenied},
	{ErrDispatchFailed, KindDispatchFailure},
	{ErrStepFailed, KindStepFailure},
	{ErrInternalServerError, KindInternal},
}

// KindOf resolves the failure class for err by unwrapping to the standard
// error constants. Unrecognized errors report KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, m := range kindMappings {
		if errors.Is(err, m.err) {
			return m.kind
		}
	}
	return KindUnknown
}
