package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ConfigurationError reports unusable client configuration, such as a
// missing application name or credential. It always propagates to the
// caller unmodified.
type ConfigurationError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigurationError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ProviderError reports a failure talking to the secrets provider: an
// unknown application or environment, a transport failure, or a timeout.
// The client treats it as a signal to attempt a stale-cache fallback and
// propagates it only when no stale entry exists.
type ProviderError struct {
	Provider     string
	Op           string
	Message      string
	Alternatives []string
	Err          error
}

func (e ProviderError) Error() string {
	var parts []string

	msg := fmt.Sprintf("%s provider error during %s", e.Provider, e.Op)
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	parts = append(parts, msg)

	if len(e.Alternatives) > 0 {
		alts := append([]string(nil), e.Alternatives...)
		sort.Strings(alts)
		parts = append(parts, "\n  Available: "+strings.Join(alts, ", "))
	}

	return strings.Join(parts, "")
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// ValidationError aborts a strict-mode fetch when required secrets are
// missing. Warnings never produce it; only hard validation errors do.
type ValidationError struct {
	Namespace string
	Issues    []string
}

func (e ValidationError) Error() string {
	msg := "secret validation failed"
	if e.Namespace != "" {
		msg += fmt.Sprintf(" for namespace '%s'", e.Namespace)
	}
	if len(e.Issues) > 0 {
		msg += ":\n    " + strings.Join(e.Issues, "\n    ")
	}
	return msg
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}

// IsProvider reports whether err is (or wraps) a ProviderError.
func IsProvider(err error) bool {
	var pe ProviderError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"deadline exceeded",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
