package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/pkg/provider"
)

// azureSeparator joins application and environment in a Key Vault secret
// name. Vault names only allow alphanumerics and dashes.
const azureSeparator = "--"

// AzureSecretsAPI is the slice of the Key Vault client the provider uses.
// Narrow so tests can substitute a mock.
type AzureSecretsAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
}

// AzureKeyVaultProvider maps the application/environment model onto Azure
// Key Vault: one secret named "<app>--<env>" per pair, holding a JSON
// secret payload.
type AzureKeyVaultProvider struct {
	name   string
	client AzureSecretsAPI
	logger *logging.Logger
}

// AzureOption is a functional option for configuring the provider.
type AzureOption func(*AzureKeyVaultProvider)

// WithAzureSecretsClient sets a custom Key Vault client (for testing).
func WithAzureSecretsClient(client AzureSecretsAPI) AzureOption {
	return func(p *AzureKeyVaultProvider) {
		p.client = client
	}
}

// NewAzureKeyVaultProvider creates the Azure provider. Recognized
// settings: vault_url (required) and tenant_id / client_id / client_secret
// for service-principal auth; the default credential chain is used when
// they are absent.
func NewAzureKeyVaultProvider(settings map[string]interface{}, logger *logging.Logger, opts ...AzureOption) (*AzureKeyVaultProvider, error) {
	p := &AzureKeyVaultProvider{
		name:   TypeAzureKeyVault,
		logger: logger,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		vaultURL, err := requireSetting(settings, TypeAzureKeyVault, "vault_url",
			"Set provider.vault_url, e.g. https://my-vault.vault.azure.net/")
		if err != nil {
			return nil, err
		}

		cred, err := azureCredential(settings)
		if err != nil {
			return nil, err
		}

		client, err := azsecrets.NewClient(vaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		p.client = client
	}

	return p, nil
}

func azureCredential(settings map[string]interface{}) (azcore.TokenCredential, error) {
	tenantID := settingString(settings, "tenant_id")
	clientID := settingString(settings, "client_id")
	clientSecret := settingString(settings, "client_secret")

	if tenantID != "" && clientID != "" && clientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create service principal credential: %w", err)
		}
		return cred, nil
	}

	if tenantID != "" || clientID != "" || clientSecret != "" {
		return nil, eserrors.ConfigurationError{
			Field:      "provider",
			Message:    "partial service principal configuration",
			Suggestion: "Provide all of tenant_id, client_id, and client_secret, or none to use the default credential chain",
		}
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default Azure credential: %w", err)
	}
	return cred, nil
}

// Name returns the provider identifier.
func (p *AzureKeyVaultProvider) Name() string {
	return p.name
}

// Initialize pages through the vault's secret properties and derives the
// application tree from names shaped "<app>--<env>".
func (p *AzureKeyVaultProvider) Initialize(ctx context.Context) ([]provider.Application, error) {
	envsByApp := make(map[string][]provider.Environment)

	pager := p.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, p.mapError("list secrets", err)
		}
		for _, item := range page.Value {
			if item.ID == nil {
				continue
			}
			app, env, ok := splitAzureSecretName(item.ID.Name())
			if !ok {
				continue
			}
			envsByApp[app] = append(envsByApp[app], provider.Environment{
				ID:   app + azureSeparator + env,
				Name: env,
			})
		}
	}

	apps := make([]provider.Application, 0, len(envsByApp))
	for app, envs := range envsByApp {
		apps = append(apps, provider.Application{
			ID:           app,
			Name:         app,
			Environments: envs,
		})
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

// GetSecrets fetches the latest version of the pair's secret and decodes
// the payload.
func (p *AzureKeyVaultProvider) GetSecrets(ctx context.Context, applicationID, environmentName string) (provider.SecretPayload, error) {
	secretName := applicationID + azureSeparator + environmentName

	resp, err := p.client.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		return provider.SecretPayload{}, p.mapError("get secret "+secretName, err)
	}

	if resp.Value == nil {
		return provider.SecretPayload{}, fmt.Errorf("secret %s has no value", secretName)
	}

	var payload provider.SecretPayload
	if err := json.Unmarshal([]byte(*resp.Value), &payload); err != nil {
		return provider.SecretPayload{}, fmt.Errorf("secret %s is not a valid payload: %w", secretName, err)
	}
	return payload, nil
}

// mapError translates Key Vault HTTP failures into contract errors.
func (p *AzureKeyVaultProvider) mapError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return provider.NotFoundError{Provider: p.name, Kind: "secret", Name: op}
		case http.StatusUnauthorized, http.StatusForbidden:
			return provider.AuthError{Provider: p.name, Message: respErr.ErrorCode}
		}
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// splitAzureSecretName parses "<app>--<env>". Other vault secrets are
// skipped.
func splitAzureSecretName(name string) (app, env string, ok bool) {
	app, env, found := strings.Cut(name, azureSeparator)
	if !found || app == "" || env == "" {
		return "", "", false
	}
	return app, env, true
}

var _ provider.Provider = (*AzureKeyVaultProvider)(nil)
