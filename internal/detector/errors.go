// Package detector drives the per-target detection pipeline: payload
// selection, injection, submission, execution verification and result
// aggregation, plus the parallel fan-out scheduler.
package detector

import (
	"errors"
	"fmt"
)

// Sentinel errors for fatal job conditions.
var (
	// ErrInvalidURL indicates the target URL is not absolute HTTP(S).
	ErrInvalidURL = errors.New("invalid target URL")

	// ErrEmptyLocator indicates the input locator is missing.
	ErrEmptyLocator = errors.New("input locator must not be empty")

	// ErrUnknownBrowser indicates an unsupported engine id.
	ErrUnknownBrowser = errors.New("unknown browser engine")

	// ErrBrowserLaunch indicates the engine could not be started.
	ErrBrowserLaunch = errors.New("browser launch failed")

	// ErrNavigation indicates the target could not be reached.
	ErrNavigation = errors.New("navigation failed")

	// ErrMonitorInstall indicates the in-page agent could not be installed.
	ErrMonitorInstall = errors.New("monitor agent installation failed")
)

// DetectError carries the failing operation's context through the
// pipeline without losing the cause.
type DetectError struct {
	URL       string
	Selector  string
	Payload   string
	Operation string
	Cause     error
}

func (e *DetectError) Error() string {
	if e.Payload != "" {
		return fmt.Sprintf("%s failed for payload %q on %s: %v",
			e.Operation, truncate(e.Payload, 40), truncate(e.URL, 60), e.Cause)
	}
	if e.Selector != "" {
		return fmt.Sprintf("%s failed for selector %q on %s: %v",
			e.Operation, e.Selector, truncate(e.URL, 60), e.Cause)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Operation, truncate(e.URL, 60), e.Cause)
}

func (e *DetectError) Unwrap() error {
	return e.Cause
}

func newDetectError(operation, url, selector, payload string, cause error) *DetectError {
	return &DetectError{
		URL:       url,
		Selector:  selector,
		Payload:   payload,
		Operation: operation,
		Cause:     cause,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
