// Package config loads and validates envsecrets.yaml and resolves the
// client's application name and credential.
package config

import (
	"errors"
	"os"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
)

// CredentialEnvVar is consulted when no credential is configured in the
// file.
const CredentialEnvVar = "ENVSECRETS_TOKEN"

// keyringService is the OS keyring service name used as the last
// credential source.
const keyringService = "envsecrets"

// Default values applied to unset fields.
const (
	DefaultEnvironment = "auto"
	DefaultTTLSeconds  = 300
	DefaultMaxMemoryMB = 50
	DefaultTimeoutMs   = 10000
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the envsecrets.yaml structure.
type Definition struct {
	Version     int               `yaml:"version"`
	App         string            `yaml:"app,omitempty"`
	Environment string            `yaml:"environment,omitempty"`
	EnvMap      map[string]string `yaml:"envMap,omitempty"`
	Credential  string            `yaml:"credential,omitempty"`
	Provider    ProviderConfig    `yaml:"provider,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Strict      bool              `yaml:"strict,omitempty"`
	StripPrefix *bool             `yaml:"stripPrefix,omitempty"`
	TimeoutMs   int               `yaml:"timeoutMs,omitempty"`
	Metrics     bool              `yaml:"metrics,omitempty"`
}

// ProviderConfig selects and configures the secrets provider. Settings are
// provider-specific and passed through to the factory.
type ProviderConfig struct {
	Type     string                 `yaml:"type"`
	Settings map[string]interface{} `yaml:",inline"`
}

// CacheConfig configures the in-memory secret cache.
type CacheConfig struct {
	Enabled     *bool `yaml:"enabled,omitempty"`
	TTLSeconds  int   `yaml:"ttlSeconds,omitempty"`
	MaxMemoryMB int   `yaml:"maxMemoryMB,omitempty"`
}

// Load reads, schema-validates, and parses the envsecrets.yaml file. A
// missing file is not an error: every setting has a flag or environment
// equivalent, so the Definition is simply left empty.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			c.Definition = &Definition{}
			c.Definition.applyDefaults()
			return nil
		}
		return eserrors.ConfigurationError{
			Field:      "path",
			Value:      c.Path,
			Message:    "failed to read configuration file",
			Suggestion: "Check file permissions and path",
		}
	}

	if err := validateSchema(data); err != nil {
		return err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return eserrors.ConfigurationError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}

	if def.Version != 0 && def.Version != 1 {
		return eserrors.ConfigurationError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 1' at the top of your envsecrets.yaml file",
		}
	}

	def.applyDefaults()
	c.Definition = &def
	return nil
}

func (d *Definition) applyDefaults() {
	if d.Environment == "" {
		d.Environment = DefaultEnvironment
	}
	if d.Cache.TTLSeconds <= 0 {
		d.Cache.TTLSeconds = DefaultTTLSeconds
	}
	if d.Cache.MaxMemoryMB <= 0 {
		d.Cache.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if d.TimeoutMs <= 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	if d.Provider.Type == "" {
		d.Provider.Type = "http"
	}
}

// CacheEnabled reports whether caching is on. Defaults to true.
func (d *Definition) CacheEnabled() bool {
	if d.Cache.Enabled == nil {
		return true
	}
	return *d.Cache.Enabled
}

// StripPrefixEnabled reports whether key-prefix stripping is on. Defaults
// to true.
func (d *Definition) StripPrefixEnabled() bool {
	if d.StripPrefix == nil {
		return true
	}
	return *d.StripPrefix
}

// ResolveApplicationName resolves the application namespace: an explicit
// argument wins, then the config file's app field. With neither, the
// client cannot proceed.
func (c *Config) ResolveApplicationName(provided string) (string, error) {
	if provided != "" {
		return provided, nil
	}
	if c.Definition != nil && c.Definition.App != "" {
		return c.Definition.App, nil
	}
	return "", eserrors.ConfigurationError{
		Field:      "app",
		Message:    "no application name resolved",
		Suggestion: "Pass --app or set 'app' in envsecrets.yaml",
	}
}

// ResolveCredential resolves the provider credential: config file, then
// the ENVSECRETS_TOKEN environment variable, then the OS keyring entry for
// the application. The resolved value must never be logged directly.
func (c *Config) ResolveCredential(appName string) (string, error) {
	if c.Definition != nil && c.Definition.Credential != "" {
		return c.Definition.Credential, nil
	}

	if token := os.Getenv(CredentialEnvVar); token != "" {
		return token, nil
	}

	user := appName
	if user == "" {
		user = "default"
	}
	token, err := keyring.Get(keyringService, user)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		// A broken keyring backend is worth mentioning, but the outcome
		// is the same: no credential.
		if c.Logger != nil {
			c.Logger.Debug("keyring lookup failed: %v", err)
		}
	}

	return "", eserrors.ConfigurationError{
		Field:      "credential",
		Message:    "no credential configured",
		Suggestion: "Set " + CredentialEnvVar + ", run 'envsecrets login', or add a credential to envsecrets.yaml",
	}
}

// StoreCredential saves a credential in the OS keyring for later
// ResolveCredential calls.
func StoreCredential(appName, token string) error {
	user := appName
	if user == "" {
		user = "default"
	}
	return keyring.Set(keyringService, user, token)
}
