// Package validation checks resolved secret maps for missing required keys
// and common misconfiguration patterns before they reach an application.
package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Issue is a hard validation error. Required issues indicate a secret the
// namespace cannot run without.
type Issue struct {
	Key      string `json:"key"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

// Warning flags a suspicious value that does not block the fetch.
type Warning struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// Result contains the result of a validation pass. Warnings never affect
// Valid.
type Result struct {
	Valid    bool      `json:"valid"`
	Errors   []Issue   `json:"errors,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// requiredKeys lists the secrets each known application namespace must
// carry. Unknown namespaces have no required keys.
var requiredKeys = map[string][]string{
	"api":    {"DATABASE_URL", "JWT_SECRET", "REDIS_URL"},
	"web":    {"NEXT_PUBLIC_API_URL", "SESSION_SECRET"},
	"worker": {"DATABASE_URL", "QUEUE_URL"},
}

// nonProductionMarkers are substrings that suggest a development or test
// credential leaked into a production configuration.
var nonProductionMarkers = []string{"test_", "dev_", "_test", "sandbox"}

// ValidateSecrets checks a secret map against the namespace's required keys
// and common misconfiguration patterns. production enables the extra checks
// that only make sense for production deployments. The function is pure and
// performs no I/O.
func ValidateSecrets(secrets map[string]string, namespace string, production bool) Result {
	result := Result{}

	for _, key := range requiredKeys[strings.ToLower(namespace)] {
		if _, ok := secrets[key]; !ok {
			result.Errors = append(result.Errors, Issue{
				Key:      key,
				Message:  fmt.Sprintf("Required secret '%s' is missing", key),
				Required: true,
			})
		}
	}

	// Per-key checks run in sorted order so the result is deterministic.
	keys := make([]string, 0, len(secrets))
	for key := range secrets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := secrets[key]

		if value == "" {
			result.Warnings = append(result.Warnings, Warning{
				Key:     key,
				Message: fmt.Sprintf("Secret '%s' has an empty value", key),
			})
		}

		if key == "DATABASE_URL" && !strings.HasPrefix(value, "postgres") {
			result.Warnings = append(result.Warnings, Warning{
				Key:     key,
				Message: "DATABASE_URL does not look like a postgres connection string",
			})
		}

		if strings.Contains(key, "URL") && !looksLikeURL(value) {
			result.Warnings = append(result.Warnings, Warning{
				Key:     key,
				Message: fmt.Sprintf("Secret '%s' does not look like a URL (expected http(s):// or postgres)", key),
			})
		}

		if production {
			lower := strings.ToLower(value)
			if strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1") {
				result.Warnings = append(result.Warnings, Warning{
					Key:     key,
					Message: fmt.Sprintf("Secret '%s' points at localhost in a production environment", key),
				})
			}
			for _, marker := range nonProductionMarkers {
				if strings.Contains(lower, marker) {
					result.Warnings = append(result.Warnings, Warning{
						Key:     key,
						Message: fmt.Sprintf("Secret '%s' looks like a non-production credential (contains '%s')", key, marker),
					})
					break
				}
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func looksLikeURL(value string) bool {
	return strings.HasPrefix(value, "http://") ||
		strings.HasPrefix(value, "https://") ||
		strings.HasPrefix(value, "postgres")
}

// RequiredKeys returns the required-key list for a namespace. The returned
// slice is a copy.
func RequiredKeys(namespace string) []string {
	keys := requiredKeys[strings.ToLower(namespace)]
	return append([]string(nil), keys...)
}
