package validation

import (
	"regexp"
	"strings"

	eserrors "github.com/systmms/envsecrets/internal/errors"
)

// credentialPattern matches the token alphabet the hosted service issues.
// Whitespace and shell-quoting artifacts are the usual copy-paste mistakes.
var credentialPattern = regexp.MustCompile(`^[A-Za-z0-9._~+/=:_-]+$`)

const minCredentialLength = 8

// ValidateCredential performs a structural sanity check on a provider
// credential before the client uses it. It never inspects the credential
// semantically and never logs it.
func ValidateCredential(token string) error {
	if token == "" {
		return eserrors.ConfigurationError{
			Field:      "credential",
			Message:    "no credential configured",
			Suggestion: "Set ENVSECRETS_TOKEN, store a token in the OS keyring, or add one to envsecrets.yaml",
		}
	}

	if strings.TrimSpace(token) != token {
		return eserrors.ConfigurationError{
			Field:      "credential",
			Message:    "credential has leading or trailing whitespace",
			Suggestion: "Re-copy the token without surrounding spaces or newlines",
		}
	}

	if len(token) < minCredentialLength {
		return eserrors.ConfigurationError{
			Field:      "credential",
			Message:    "credential is too short to be a service token",
			Suggestion: "Check that the full token was copied",
		}
	}

	if !credentialPattern.MatchString(token) {
		return eserrors.ConfigurationError{
			Field:      "credential",
			Message:    "credential contains unexpected characters",
			Suggestion: "Check for stray quotes or shell escapes around the token",
		}
	}

	return nil
}
