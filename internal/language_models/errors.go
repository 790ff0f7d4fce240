// -----------------------------------------------------------------------
// Adapter error classification: transient failures retry, permanent don't
// -----------------------------------------------------------------------

package language_models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// AdapterError wraps a provider failure with its retry classification. The
// interview engine retries transient errors with backoff and gives up
// immediately on permanent ones.
type AdapterError struct {
	Provider  string
	Model     string
	Transient bool
	Err       error
}

func (e *AdapterError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s adapter error (%s, model %s): %v", kind, e.Provider, e.Model, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// TransientError wraps err as retryable.
func TransientError(provider, model string, err error) error {
	return &AdapterError{Provider: provider, Model: model, Transient: true, Err: err}
}

// PermanentError wraps err as non-retryable.
func PermanentError(provider, model string, err error) error {
	return &AdapterError{Provider: provider, Model: model, Transient: false, Err: err}
}

// ClassifyError wraps an unclassified provider error, deciding transience
// from the error text and type. Providers surface HTTP status codes in
// their error strings, so matching on them covers every SDK the same way.
func ClassifyError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return err
	}
	return &AdapterError{Provider: provider, Model: model, Transient: looksTransient(err), Err: err}
}

// looksTransient reports whether an unclassified error should be retried:
// timeouts, connection failures, rate limits and server-side errors.
func looksTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"429", "500", "502", "503", "504", "408",
		"rate limit", "rate_limit", "RESOURCE_EXHAUSTED", "quota",
		"overloaded", "timeout", "connection refused", "connection reset",
		"EOF", "temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransient reports whether the interview should retry the call.
func IsTransient(err error) bool {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Transient
	}
	return false
}

// IsPermanent reports whether the call failed in a way retries cannot fix.
func IsPermanent(err error) bool {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return !adapterErr.Transient
	}
	return false
}
