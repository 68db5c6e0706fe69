package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoMatchFound        = errors.New("no match found")
	ErrNoValidResults      = errors.New("no valid results")
	ErrProviderQueryFailed = errors.New("provider query failed")
	ErrScanFailed          = errors.New("scan failed")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
	ErrTransient           = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recover turns a panic in the calling goroutine into an error tagged with
// marker. It must be deferred directly:
//
//	defer services.Recover(&err, services.ErrTransient, "scan", "identify")
func Recover(errp *error, marker error, component, operation string) {
	if r := recover(); r != nil {
		*errp = Wrap(marker, component, operation, fmt.Sprintf("panic: %v", r), nil)
	}
}

// IsItemFailure reports whether err describes a failure confined to a single
// path or entry. Such failures never abort a scan.
func IsItemFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNoMatchFound), errors.Is(err, ErrNoValidResults), errors.Is(err, ErrProviderQueryFailed):
		return true
	default:
		return false
	}
}

// Hint returns a short operator-facing hint for the error class.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrNoMatchFound):
		return "rename the file or match it manually with `gameshelf match`"
	case errors.Is(err, ErrNoValidResults):
		return "check the external ids passed to the match"
	case errors.Is(err, ErrProviderQueryFailed):
		return "check provider connectivity and rate limits"
	case errors.Is(err, ErrConfiguration):
		return "run `gameshelf config validate`"
	case errors.Is(err, ErrNotFound):
		return "verify the id with `gameshelf units list`"
	default:
		return ""
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
