package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"elite-store-api/middleware/admission"
	"elite-store-api/middleware/admission/domain"
	"elite-store-api/middleware/origin"
)

var ErrRouteNotFound = errors.New("route not found")

const (
	RouteNotFoundMessage  = "Route not found"
	NotImplementedMessage = "Not implemented"
)

// StatusCoder lets collaborator errors pick their own status.
type StatusCoder interface {
	StatusCode() int
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorRenderer is the catch-all failure stage shared by every route.
type ErrorRenderer struct {
	// Production hides internal error text from clients.
	Production bool
}

func (e ErrorRenderer) Render(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	var sc StatusCoder
	switch {
	case errors.Is(err, ErrRouteNotFound):
		status, message = http.StatusNotFound, RouteNotFoundMessage
	case origin.IsRejected(err):
		status, message = http.StatusForbidden, origin.RejectedMessage
	case domain.IsBlockedError(err):
		status, message = http.StatusTooManyRequests, admission.BlockedMessage
	case domain.IsThrottledError(err):
		status, message = http.StatusTooManyRequests, admission.ThrottledMessage
	case domain.IsBusyError(err):
		status, message = http.StatusServiceUnavailable, admission.BusyMessage
	case errors.As(err, &sc):
		status = sc.StatusCode()
	}

	if status >= 500 {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if e.Production {
			message = http.StatusText(http.StatusInternalServerError)
		}
	}

	respondJSON(w, status, response{Success: false, Message: message})
}

// Recover turns a panic in a route handler into a rendered 500.
func (e ErrorRenderer) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				e.Render(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
