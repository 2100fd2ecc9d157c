package detector

import (
	"context"
	"strings"
	"time"

	"github.com/Serdar715/xssprobe/internal/config"
)

// Retryable operation classes.
const (
	OpNavigation = "navigation"
	OpSubmission = "submission"
	OpInput      = "input"
)

// RetryPolicy is the single retry strategy reused at every browser I/O
// site: attempt count, base delay, optional exponential backoff, an
// operation allowlist and an error-class predicate.
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
	Exponential bool
	Operations  map[string]bool
	// Retryable vetoes retries by error class. Nil means the default
	// predicate (timeouts, navigation, network, element state).
	Retryable func(error) bool
}

// PolicyFrom builds a policy from the option registry.
func PolicyFrom(opts config.RetryOptions) *RetryPolicy {
	ops := make(map[string]bool, len(opts.Operations))
	for _, op := range opts.Operations {
		ops[op] = true
	}
	return &RetryPolicy{
		Enabled:     opts.Enabled,
		MaxAttempts: opts.MaxAttempts,
		Delay:       time.Duration(opts.Delay) * time.Millisecond,
		Exponential: opts.ExponentialBackoff,
		Operations:  ops,
	}
}

// retryableClasses match transient browser failures worth retrying.
var retryableClasses = []string{
	"timeout",
	"navigation",
	"network",
	"net::",
	"not visible",
	"not stable",
	"not found",
}

// DefaultRetryable is the stock error-class predicate.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, class := range retryableClasses {
		if strings.Contains(msg, class) {
			return true
		}
	}
	return false
}

func (p *RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return DefaultRetryable(err)
}

// Do runs fn, retrying per policy when the operation class is enabled
// and the error is retryable. The last error is returned on exhaustion.
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := 1
	if p != nil && p.Enabled && p.Operations[op] && p.MaxAttempts > 1 {
		attempts = p.MaxAttempts
	}

	var err error
	delay := time.Duration(0)
	if p != nil {
		delay = p.Delay
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if p.Exponential {
				delay *= 2
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !p.retryable(err) {
			return err
		}
	}
	return err
}
