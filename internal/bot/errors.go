package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/cynwrig/synctube/internal/channel"
	"github.com/cynwrig/synctube/internal/transport"
)

// Fatal control signals. Login failures and forced kicks must terminate
// the run loop; everything else a handler raises is contained.
var (
	ErrLogin  = errors.New("login failed")
	ErrKicked = errors.New("kicked")
)

func loginErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrLogin}, args...)...)
}

func kickedErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrKicked}, args...)...)
}

// isFatal reports whether an error must propagate out of dispatch
// untouched instead of being rehomed as a synthetic error event.
func isFatal(err error) bool {
	return errors.Is(err, ErrLogin) ||
		errors.Is(err, ErrKicked) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// isTransportError reports whether an error is a connection-level fault,
// recoverable by the reconnect policy.
func isTransportError(err error) bool {
	return errors.Is(err, transport.ErrConnectionFailed) ||
		errors.Is(err, transport.ErrConnectionClosed)
}

// isPermanentSendError classifies an outbound-message failure: server
// rejections (permissions, muted, flood control) will not succeed on a
// retry, while network faults and timeouts might.
func isPermanentSendError(err error) bool {
	return errors.Is(err, channel.ErrChannel)
}
