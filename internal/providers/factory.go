// Package providers contains the concrete secret-store integrations behind
// the pkg/provider contract and the factory that selects one from
// configuration.
package providers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/envsecrets/internal/config"
	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/internal/secure"
	"github.com/systmms/envsecrets/pkg/provider"
)

// Known provider types, in the order operators usually reach for them.
const (
	TypeHTTP               = "http"
	TypeAWSSecretsManager  = "aws.secretsmanager"
	TypeGCPSecretManager   = "gcp.secretmanager"
	TypeAzureKeyVault      = "azure.keyvault"
)

// New builds the provider selected by cfg.Type. credential is the resolved
// service credential; providers that authenticate through their own SDK
// chain (AWS, GCP, Azure) ignore it.
func New(cfg config.ProviderConfig, credential *secure.Credential, logger *logging.Logger) (provider.Provider, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeHTTP, "":
		return NewHTTPProvider(cfg.Settings, credential, logger)
	case TypeAWSSecretsManager:
		return NewAWSSecretsManagerProvider(cfg.Settings, logger)
	case TypeGCPSecretManager:
		return NewGCPSecretManagerProvider(cfg.Settings, logger)
	case TypeAzureKeyVault:
		return NewAzureKeyVaultProvider(cfg.Settings, logger)
	default:
		known := []string{TypeHTTP, TypeAWSSecretsManager, TypeGCPSecretManager, TypeAzureKeyVault}
		sort.Strings(known)
		return nil, eserrors.ConfigurationError{
			Field:      "provider.type",
			Value:      cfg.Type,
			Message:    "unknown provider type",
			Suggestion: "Use one of: " + strings.Join(known, ", "),
		}
	}
}

// Settings accessors shared by the provider constructors. YAML inline maps
// arrive as map[string]interface{}, so every read is type-checked.

func settingString(settings map[string]interface{}, key string) string {
	if v, ok := settings[key].(string); ok {
		return v
	}
	return ""
}

func settingBool(settings map[string]interface{}, key string) bool {
	if v, ok := settings[key].(bool); ok {
		return v
	}
	return false
}

func requireSetting(settings map[string]interface{}, providerType, key, suggestion string) (string, error) {
	v := settingString(settings, key)
	if v == "" {
		return "", eserrors.ConfigurationError{
			Field:      fmt.Sprintf("provider.%s", key),
			Message:    fmt.Sprintf("%s is required for the %s provider", key, providerType),
			Suggestion: suggestion,
		}
	}
	return v, nil
}
