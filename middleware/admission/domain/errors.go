package domain

import "errors"

var (
	// ErrBlocked is returned for clients still serving a block.
	ErrBlocked = errors.New("client is temporarily blocked")
	// ErrThrottled is returned when a client exceeds its window quota.
	ErrThrottled = errors.New("rate limit exceeded")
	// ErrBusy is returned when no in-flight slot frees up in time.
	ErrBusy = errors.New("no in-flight slot available")
)

// IsBlockedError reports whether err is, or wraps, ErrBlocked.
func IsBlockedError(err error) bool {
	return errors.Is(err, ErrBlocked)
}

// IsThrottledError reports whether err is, or wraps, ErrThrottled.
func IsThrottledError(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsBusyError reports whether err is, or wraps, ErrBusy.
func IsBusyError(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsRejection reports whether err is one of the per-client admission
// rejections. Busy is a server-wide condition and is not included.
func IsRejection(err error) bool {
	return IsBlockedError(err) || IsThrottledError(err)
}
