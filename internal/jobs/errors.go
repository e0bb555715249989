package jobs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindInvalidState
	KindValidation
	KindInsufficientFunds
	KindUpstream
	KindConflict
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidState:
		return "InvalidState"
	case KindValidation:
		return "Validation"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindUpstream:
		return "Upstream"
	case KindConflict:
		return "Conflict"
	default:
		return "Internal"
	}
}

// Stable error codes surfaced to callers.
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeJobNotFound          = "JOB_NOT_FOUND"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeStillGenerating      = "JOB_STILL_GENERATING"
	CodeAlreadyConfirmed     = "JOB_ALREADY_CONFIRMED"
	CodeJobFailed            = "JOB_FAILED"
	CodeCostNotComputed      = "COST_NOT_COMPUTED"
	CodeContentNotAvailable  = "CONTENT_NOT_AVAILABLE"
	CodeInsufficientCredits  = "INSUFFICIENT_CREDITS"
	CodePricingNotConfigured = "PRICING_NOT_CONFIGURED"
	CodeUploadFailed         = "UPLOAD_FAILED"
	CodeStorageFailed        = "STORAGE_FAILED"
	CodeConcurrentUpdate     = "CONCURRENT_UPDATE"
	CodeInternal             = "INTERNAL_ERROR"
)

// Error is the typed failure returned at every pipeline operation boundary.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Context map[string]any
	Cause   error
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Context: map[string]any{}}
}

// NewError builds a typed error for collaborators outside this package.
func NewError(kind ErrorKind, code, message string) *Error {
	return newError(kind, code, message)
}

func wrapError(kind ErrorKind, code, message string, cause error) *Error {
	e := newError(kind, code, message)
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		fmt.Fprintf(&b, " | context: %s", strings.Join(parts, ", "))
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, " | cause: %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic key/value.
func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// AsError extracts a pipeline error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the stable code carried by err, or CodeInternal.
func CodeOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// Retryable reports whether repeating the operation could succeed.
func Retryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return true
	}
	switch e.Kind {
	case KindUpstream, KindConflict, KindInternal:
		return e.Code != CodePricingNotConfigured
	default:
		return false
	}
}
