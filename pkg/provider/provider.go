// Package provider defines the contract between the secrets client and the
// remote secrets-management service.
//
// A provider exposes exactly two operations: Initialize, which returns the
// applications the credential can see (each with its environments), and
// GetSecrets, which returns the secret payload for one application and
// environment. Everything else — transport, authentication, pagination —
// is the provider's own business.
//
// Implementations must be safe for concurrent use; the client may issue
// calls from multiple goroutines.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Environment is a named deployment context within an application.
type Environment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Application is a logical application registered with the secrets service.
type Application struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Environments []Environment `json:"environments"`
}

// Provider is the narrow contract the client consumes.
type Provider interface {
	// Name returns the provider's stable identifier ("http",
	// "aws.secretsmanager", ...) for logs and error messages.
	Name() string

	// Initialize returns the applications visible to the configured
	// credential. The client calls it lazily, at most once per instance.
	Initialize(ctx context.Context) ([]Application, error)

	// GetSecrets returns the secret payload for one application and
	// environment.
	GetSecrets(ctx context.Context, applicationID, environmentName string) (SecretPayload, error)
}

// SecretPair is one key/value element of a list-shaped payload. A nil
// Value normalizes to the empty string.
type SecretPair struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// SecretPayload is the wire shape of a get-secrets response. Services
// return either a list of {key, value} pairs or a flat key-value object;
// both decode into the same payload.
type SecretPayload struct {
	pairs []SecretPair
}

// PayloadFromMap builds a payload from a flat map. Mostly used by fakes
// and provider implementations that already hold decoded data.
func PayloadFromMap(m map[string]string) SecretPayload {
	pairs := make([]SecretPair, 0, len(m))
	for k, v := range m {
		v := v
		pairs = append(pairs, SecretPair{Key: k, Value: &v})
	}
	return SecretPayload{pairs: pairs}
}

// UnmarshalJSON accepts both payload shapes.
func (p *SecretPayload) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimLeft(string(data), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var pairs []SecretPair
		if err := json.Unmarshal(data, &pairs); err != nil {
			return fmt.Errorf("decoding secret list: %w", err)
		}
		p.pairs = pairs
		return nil
	}

	var flat map[string]*string
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decoding secret object: %w", err)
	}
	pairs := make([]SecretPair, 0, len(flat))
	for k, v := range flat {
		pairs = append(pairs, SecretPair{Key: k, Value: v})
	}
	p.pairs = pairs
	return nil
}

// Normalize flattens the payload into a secret map. Keys without a value
// (JSON null, absent) become the empty string; the empty string itself is
// a valid value. Later duplicates win.
func (p SecretPayload) Normalize() map[string]string {
	out := make(map[string]string, len(p.pairs))
	for _, pair := range p.pairs {
		if pair.Key == "" {
			continue
		}
		if pair.Value == nil {
			out[pair.Key] = ""
			continue
		}
		out[pair.Key] = *pair.Value
	}
	return out
}

// Len returns the number of decoded pairs.
func (p SecretPayload) Len() int {
	return len(p.pairs)
}

// FindApplication locates an application by case-insensitive name match.
func FindApplication(apps []Application, name string) (Application, bool) {
	for _, app := range apps {
		if strings.EqualFold(app.Name, name) {
			return app, true
		}
	}
	return Application{}, false
}

// FindEnvironment locates an environment by case-insensitive name match.
func FindEnvironment(app Application, name string) (Environment, bool) {
	for _, env := range app.Environments {
		if strings.EqualFold(env.Name, name) {
			return env, true
		}
	}
	return Environment{}, false
}

// NotFoundError indicates a missing application, environment, or secret on
// the provider side.
type NotFoundError struct {
	Provider string
	Kind     string
	Name     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s '%s' not found", e.Provider, e.Kind, e.Name)
}

// AuthError indicates the provider rejected the configured credential.
type AuthError struct {
	Provider string
	Message  string
}

func (e AuthError) Error() string {
	msg := fmt.Sprintf("%s: authentication failed", e.Provider)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}
