package upstreams

import (
	"context"
	"net"

	"github.com/dnsdivert/dnsdivert/src/internal/errors"
)

// Classify maps an upstream error onto a failure reason.
// It returns an empty reason for a nil error.
func Classify(err error) errors.Reason {
	if err == nil {
		return ""
	}

	var failure *errors.ResolutionFailure
	if errors.As(err, &failure) {
		return failure.Reason
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.ReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.ReasonTimeout
	}

	return errors.ReasonServFail
}

func asFailure(name, strategy string, err error) *errors.ResolutionFailure {
	var failure *errors.ResolutionFailure
	if errors.As(err, &failure) {
		return failure
	}
	return errors.NewResolutionFailure(Classify(err), name, strategy, err)
}
