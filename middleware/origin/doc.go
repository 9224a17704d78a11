// Package origin validates the Origin header of cross-origin requests
// against an allow-list and emits the CORS response headers for the
// origins it accepts.
package origin
