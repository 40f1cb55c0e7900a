package channel

import (
	"errors"
	"fmt"
)

// Sentinel errors for failed channel requests. A permission denial is a
// kind of channel error, so errors.Is(err, ErrChannel) holds for both.
var (
	ErrChannel    = errors.New("channel error")
	ErrPermission = fmt.Errorf("%w: permission denied", ErrChannel)
)

// Errorf wraps ErrChannel with a formatted message.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrChannel}, args...)...)
}

// PermissionErrorf wraps ErrPermission with a formatted message.
func PermissionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPermission}, args...)...)
}

// IsPermissionDenied reports whether err is a rank denial, local or
// server-side.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermission)
}
