package domain

import "time"

// Key identifies a client, normally its IP address.
type Key string

// Verdict is the three-way outcome of admitting one request.
type Verdict int

const (
	Allow Verdict = iota
	Throttled
	Blocked
	// Busy is reported by the in-flight cap, never by the window controller.
	Busy
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Throttled:
		return "throttled"
	case Blocked:
		return "blocked"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Rule holds the fixed-window limits applied to every client.
type Rule struct {
	Window        time.Duration
	MaxRequests   int
	BlockDuration time.Duration
}

// Decision is computed fresh for each request and never stored.
type Decision struct {
	Verdict Verdict
	Key     Key
	Rule    Rule

	// Count is the number of requests seen in the current window.
	// It is zero for Blocked, since a blocked client never touches its window.
	Count int
	// ResetAt is when the current window ends.
	ResetAt time.Time
	// UnblockAt is set for Throttled and Blocked.
	UnblockAt time.Time
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Verdict == Allow }

// Remaining is the number of requests still admitted in the current window.
func (d Decision) Remaining() int {
	if r := d.Rule.MaxRequests - d.Count; r > 0 {
		return r
	}
	return 0
}

// Err maps a rejecting verdict to its sentinel error, nil for Allow.
func (d Decision) Err() error {
	switch d.Verdict {
	case Throttled:
		return ErrThrottled
	case Blocked:
		return ErrBlocked
	case Busy:
		return ErrBusy
	default:
		return nil
	}
}

// WindowEntry counts requests since WindowStart.
type WindowEntry struct {
	Count       int
	WindowStart time.Time
}

// Expired reports whether the window has run its full length at now.
func (e WindowEntry) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(e.WindowStart) >= window
}

// Entries is the view of one key's block and window state. It is only
// valid inside the callback passed to StateStore.Update.
type Entries interface {
	UnblockAt() (time.Time, bool)
	Block(until time.Time)
	Unblock()
	Window() (WindowEntry, bool)
	SetWindow(WindowEntry)
}

// StateStore owns the block and window state of every key.
//
// Update must give fn exclusive access to the entries of key for the whole
// call, so that check-then-increment is a single atomic step per key.
type StateStore interface {
	Update(key Key, fn func(Entries))
}
