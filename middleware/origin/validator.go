package origin

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOriginRejected is returned for origins outside the allow-list.
var ErrOriginRejected = errors.New("origin not allowed by CORS")

// RejectedMessage is the client-facing text for a rejected origin.
const RejectedMessage = "Not allowed by CORS"

// Canonical strips exactly one trailing slash. Both the allow-list and the
// incoming header go through it.
func Canonical(origin string) string {
	return strings.TrimSuffix(strings.TrimSpace(origin), "/")
}

// AllowList is an immutable set of canonical origins. It is safe for
// concurrent reads.
type AllowList struct {
	origins map[string]struct{}
}

// NewAllowList canonicalizes origins and drops empty entries.
func NewAllowList(origins ...string) AllowList {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		c := Canonical(o)
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return AllowList{origins: set}
}

func (l AllowList) Contains(origin string) bool {
	c := Canonical(origin)
	if c == "" {
		return false
	}
	_, ok := l.origins[c]
	return ok
}

func (l AllowList) Len() int { return len(l.origins) }

type Validator struct {
	allow AllowList
}

func NewValidator(allow AllowList) *Validator {
	return &Validator{allow: allow}
}

// Validate returns nil when origin may make a credentialed cross-origin
// request. An empty origin means a same-origin or non-browser request and
// is always allowed.
func (v *Validator) Validate(origin string) error {
	if strings.TrimSpace(origin) == "" {
		return nil
	}
	if v.allow.Contains(origin) {
		return nil
	}
	return fmt.Errorf("origin %q: %w", origin, ErrOriginRejected)
}

func IsRejected(err error) bool {
	return errors.Is(err, ErrOriginRejected)
}
