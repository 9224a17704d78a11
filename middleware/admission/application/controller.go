package application

import (
	"errors"
	"time"

	"elite-store-api/middleware/admission/domain"
)

// Default limits, used when a rule field is unset or invalid.
const (
	DefaultWindow        = 15 * time.Minute
	DefaultMaxRequests   = 100
	DefaultBlockDuration = 30 * time.Minute
)

// Controller decides admission for each request and promotes clients that
// exceed their window quota into the block list.
//
// It owns its StateStore: nothing else should mutate the store.
type Controller struct {
	store domain.StateStore
	rule  domain.Rule
}

// NewController builds a controller over store. Non-positive rule fields
// are replaced by their defaults.
func NewController(store domain.StateStore, rule domain.Rule) (*Controller, error) {
	if store == nil {
		return nil, errors.New("admission: state store is required")
	}
	return &Controller{store: store, rule: NormalizeRule(rule)}, nil
}

// NormalizeRule fills non-positive fields of r with the defaults.
func NormalizeRule(r domain.Rule) domain.Rule {
	if r.Window <= 0 {
		r.Window = DefaultWindow
	}
	if r.MaxRequests <= 0 {
		r.MaxRequests = DefaultMaxRequests
	}
	if r.BlockDuration <= 0 {
		r.BlockDuration = DefaultBlockDuration
	}
	return r
}

func (c *Controller) Rule() domain.Rule { return c.rule }

// Admit evaluates one request from key observed at now.
//
// A blocked key is rejected before its window is looked at, so blocked
// requests never consume window budget. Throttled is the only verdict that
// creates a block entry. Expired blocks are only dropped here, on the next
// request from the same key.
func (c *Controller) Admit(key domain.Key, now time.Time) domain.Decision {
	dec := domain.Decision{Key: key, Rule: c.rule}

	c.store.Update(key, func(e domain.Entries) {
		if until, ok := e.UnblockAt(); ok {
			if now.Before(until) {
				dec.Verdict = domain.Blocked
				dec.UnblockAt = until
				return
			}
			e.Unblock()
		}

		w, ok := e.Window()
		if !ok || w.Expired(now, c.rule.Window) {
			w = domain.WindowEntry{Count: 0, WindowStart: now}
		}
		w.Count++
		e.SetWindow(w)

		dec.Count = w.Count
		dec.ResetAt = w.WindowStart.Add(c.rule.Window)

		if w.Count > c.rule.MaxRequests {
			dec.Verdict = domain.Throttled
			dec.UnblockAt = now.Add(c.rule.BlockDuration)
			e.Block(dec.UnblockAt)
			return
		}
		dec.Verdict = domain.Allow
	})

	return dec
}
