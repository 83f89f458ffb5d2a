package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/pkg/provider"
)

// gcpSeparator joins application and environment in a GCP secret ID.
// Secret IDs only allow [A-Za-z0-9_-], so "/" is not available.
const gcpSeparator = "__"

// GCPSecretManagerProvider maps the application/environment model onto
// Google Secret Manager: one secret with ID "<app>__<env>" per pair,
// latest version holding a JSON secret payload.
type GCPSecretManagerProvider struct {
	name      string
	client    *secretmanager.Client
	projectID string
	logger    *logging.Logger
}

// NewGCPSecretManagerProvider creates the GCP provider. Recognized
// settings: project_id (required) and service_account_key_path (optional;
// application default credentials otherwise).
func NewGCPSecretManagerProvider(settings map[string]interface{}, logger *logging.Logger) (*GCPSecretManagerProvider, error) {
	projectID, err := requireSetting(settings, TypeGCPSecretManager, "project_id",
		"Set provider.project_id to the GCP project holding your secrets")
	if err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if keyPath := settingString(settings, "service_account_key_path"); keyPath != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(keyPath))
	}

	client, err := secretmanager.NewClient(context.Background(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &GCPSecretManagerProvider{
		name:      TypeGCPSecretManager,
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

// Name returns the provider identifier.
func (p *GCPSecretManagerProvider) Name() string {
	return p.name
}

// Initialize lists the project's secrets and derives the application tree
// from IDs shaped "<app>__<env>".
func (p *GCPSecretManagerProvider) Initialize(ctx context.Context) ([]provider.Application, error) {
	it := p.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent: "projects/" + p.projectID,
	})

	envsByApp := make(map[string][]provider.Environment)
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets: %w", err)
		}

		app, env, ok := splitGCPSecretID(secretIDFromName(secret.GetName()))
		if !ok {
			continue
		}
		envsByApp[app] = append(envsByApp[app], provider.Environment{
			ID:   app + gcpSeparator + env,
			Name: env,
		})
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

// GetSecrets accesses the latest version of the pair's secret and decodes
// the payload.
func (p *GCPSecretManagerProvider) GetSecrets(ctx context.Context, applicationID, environmentName string) (provider.SecretPayload, error) {
	secretID := applicationID + gcpSeparator + environmentName
	versionName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", p.projectID, secretID)

	resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: versionName,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return provider.SecretPayload{}, provider.NotFoundError{
				Provider: p.name,
				Kind:     "secret",
				Name:     secretID,
			}
		}
		if status.Code(err) == codes.PermissionDenied || status.Code(err) == codes.Unauthenticated {
			return provider.SecretPayload{}, provider.AuthError{Provider: p.name, Message: err.Error()}
		}
		return provider.SecretPayload{}, fmt.Errorf("failed to access secret version: %w", err)
	}

	var payload provider.SecretPayload
	if err := json.Unmarshal(resp.GetPayload().GetData(), &payload); err != nil {
		return provider.SecretPayload{}, fmt.Errorf("secret %s is not a valid payload: %w", secretID, err)
	}
	return payload, nil
}

// Close releases the underlying gRPC connection.
func (p *GCPSecretManagerProvider) Close() error {
	return p.client.Close()
}

// secretIDFromName extracts the short ID from a full resource name
// ("projects/<p>/secrets/<id>").
func secretIDFromName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// splitGCPSecretID parses "<app>__<env>". IDs without the separator are
// unrelated secrets in the same project and are skipped.
func splitGCPSecretID(id string) (app, env string, ok bool) {
	app, env, found := strings.Cut(id, gcpSeparator)
	if !found || app == "" || env == "" {
		return "", "", false
	}
	return app, env, true
}

var _ provider.Provider = (*GCPSecretManagerProvider)(nil)
