package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types for the verification server
var (
	// Session store errors
	ErrStoreUnavailable = errors.New("session store unavailable")
	ErrSessionNotFound  = errors.New("session not found")
	ErrVersionConflict  = errors.New("session version conflict")

	// Configuration errors
	ErrConfiguration = errors.New("configuration error")

	// External service errors
	ErrUpstream   = errors.New("upstream service error")
	ErrTrustChain = errors.New("trust chain verification failed")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// MissingConfig reports a required setting that has not been provided.
func MissingConfig(names ...string) error {
	return fmt.Errorf("%w: missing %v", ErrConfiguration, names)
}

// StatusCode maps an error chain onto the HTTP status and machine readable code
// returned to API clients.
func StatusCode(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "no_active_session"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict, "session_conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, ErrTrustChain):
		return http.StatusBadGateway, "trust_chain_failure"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, ErrConfiguration):
		return http.StatusInternalServerError, "configuration_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
