//go:build !unix

package dnsproxy

import (
	"errors"
	"os"
)

// bindErrorReason describes why binding the listener failed.
func bindErrorReason(err error) string {
	if errors.Is(err, os.ErrPermission) {
		return "permission denied"
	}
	return "failed to bind"
}
