//go:build unix

package dnsproxy

import (
	"errors"

	"golang.org/x/sys/unix"
)

// bindErrorReason describes why binding the listener failed.
func bindErrorReason(err error) string {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return "address already in use"
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return "permission denied (ports below 1024 need elevated privileges)"
	case errors.Is(err, unix.EADDRNOTAVAIL):
		return "address not available on this host"
	default:
		return "failed to bind"
	}
}
