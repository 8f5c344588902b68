package errors

import "fmt"

// Reason classifies why a name could not be resolved.
type Reason string

const (
	ReasonNXDomain            Reason = "NXDOMAIN"
	ReasonTimeout             Reason = "TIMEOUT"
	ReasonServFail            Reason = "SERVFAIL"
	ReasonNoResolverAvailable Reason = "NO_RESOLVER_AVAILABLE"
)

// ResolutionFailure is returned when a name could not be turned into an address.
// Strategy names the upstream that produced the failure (empty for the whole chain).
type ResolutionFailure struct {
	Reason   Reason
	Name     string
	Strategy string
	Cause    error
}

// NewResolutionFailure creates a classified resolution failure.
func NewResolutionFailure(reason Reason, name, strategy string, cause error) *ResolutionFailure {
	return &ResolutionFailure{
		Reason:   reason,
		Name:     name,
		Strategy: strategy,
		Cause:    cause,
	}
}

// Error implements the error interface.
func (f *ResolutionFailure) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", ErrCodeResolution, f.Name, f.Reason)
	if f.Strategy != "" {
		msg += fmt.Sprintf(" (upstream: %s)", f.Strategy)
	}
	if f.Cause != nil {
		msg += fmt.Sprintf(": %v", f.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (f *ResolutionFailure) Unwrap() error {
	return f.Cause
}

// Is matches ErrResolution and any ResolutionFailure with the same reason.
func (f *ResolutionFailure) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return t.Code == ErrCodeResolution
	case *ResolutionFailure:
		return t.Reason == f.Reason
	}
	return false
}
