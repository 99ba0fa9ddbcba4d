package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error kinds surfaced by the pipeline. Handlers and workers branch on
// these with errors.Is; everything else wraps them with context via %w.
var (
	// ErrValidation indicates bad caller input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a missing patient or record.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the caller is outside the record's access scope.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnsupportedMedia indicates a mime type outside the allow-list.
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrCapabilityUnavailable indicates a storage/extraction/embedding/completion
	// call failed. Retryable for background processing, surfaced immediately for
	// synchronous calls.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrRetryExhausted indicates the insight stage gave up after the bounded
	// attempt count. Terminal until a manual re-trigger.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrAlreadyProcessing indicates another worker holds the processing lease
	// for the record. The redelivered task is a no-op, not a failure.
	ErrAlreadyProcessing = errors.New("record already processing")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

func NotFound(resource string, id string) error {
	return fmt.Errorf("%s %s: %w", resource, id, ErrNotFound)
}

func Unavailable(capability string, cause error) error {
	return fmt.Errorf("%s: %v: %w", capability, cause, ErrCapabilityUnavailable)
}

// HTTPStatus maps an error kind to the status code the API surfaces.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
