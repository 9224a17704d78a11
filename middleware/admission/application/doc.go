// Package application holds the admission use cases: the per-request
// Allow/Throttled/Blocked decision and the in-flight slot acquisition,
// which reports Busy when no slot frees up.
//
// It depends only on package domain and knows nothing about net/http.
// Ex.: Controller.Admit(key, now) returns a domain.Decision.
package application
