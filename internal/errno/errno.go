// Package errno converts between Go errors and the signed integer result
// codes written back to callers: zero or positive is success, negative is a
// negated errno.
package errno

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Result maps err to a result code. A nil error is 0; an error wrapping a
// unix.Errno is that errno negated; anything else is -EIO.
func Result(err error) int32 {
	if err == nil {
		return 0
	}
	var e unix.Errno
	if errors.As(err, &e) {
		return -int32(e)
	}
	return -int32(unix.EIO)
}

// FromResult returns the error carried by a result code, or nil for
// non-negative codes.
func FromResult(code int32) error {
	if code >= 0 {
		return nil
	}
	return unix.Errno(-code)
}

// Name renders a result code for logs and API responses ("ok", "EINVAL", ...).
func Name(code int32) string {
	if code >= 0 {
		return "ok"
	}
	if name := unix.ErrnoName(unix.Errno(-code)); name != "" {
		return name
	}
	return fmt.Sprintf("errno(%d)", -code)
}
