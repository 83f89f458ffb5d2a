package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/pkg/provider"
)

// SecretsManagerAPI is the slice of the AWS Secrets Manager client the
// provider uses. Narrow so tests can substitute a mock.
type SecretsManagerAPI interface {
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerProvider maps the application/environment model onto
// AWS Secrets Manager: one secret named "<prefix><app>/<env>" per pair,
// holding a JSON secret payload.
type AWSSecretsManagerProvider struct {
	name   string
	client SecretsManagerAPI
	prefix string
	logger *logging.Logger
}

// AWSOption is a functional option for configuring the provider.
type AWSOption func(*AWSSecretsManagerProvider)

// WithSecretsManagerClient sets a custom client (for testing).
func WithSecretsManagerClient(client SecretsManagerAPI) AWSOption {
	return func(p *AWSSecretsManagerProvider) {
		p.client = client
	}
}

// NewAWSSecretsManagerProvider creates the AWS provider. Recognized
// settings: region, prefix (secret-name namespace, default "envsecrets/"),
// endpoint (for localstack), access_key_id / secret_access_key (static
// credentials for testing; the default chain is used otherwise).
func NewAWSSecretsManagerProvider(settings map[string]interface{}, logger *logging.Logger, opts ...AWSOption) (*AWSSecretsManagerProvider, error) {
	region := settingString(settings, "region")
	if region == "" {
		region = "us-east-1"
	}

	prefix := settingString(settings, "prefix")
	if prefix == "" {
		prefix = "envsecrets/"
	}

	p := &AWSSecretsManagerProvider{
		name:   TypeAWSSecretsManager,
		prefix: prefix,
		logger: logger,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		configOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(region),
		}

		accessKeyID := settingString(settings, "access_key_id")
		secretAccessKey := settingString(settings, "secret_access_key")
		if accessKeyID != "" && secretAccessKey != "" {
			configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
			))
		}

		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		var clientOpts []func(*secretsmanager.Options)
		if endpoint := settingString(settings, "endpoint"); endpoint != "" {
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			})
		}
		p.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}

	return p, nil
}

// Name returns the provider identifier.
func (p *AWSSecretsManagerProvider) Name() string {
	return p.name
}

// Initialize lists secrets under the configured prefix and derives the
// application/environment tree from their names.
func (p *AWSSecretsManagerProvider) Initialize(ctx context.Context) ([]provider.Application, error) {
	envsByApp := make(map[string][]provider.Environment)

	var nextToken *string
	for {
		out, err := p.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
			NextToken: nextToken,
			Filters: []types.Filter{{
				Key:    types.FilterNameStringTypeName,
				Values: []string{p.prefix},
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets: %w", err)
		}

		for _, secret := range out.SecretList {
			app, env, ok := p.splitSecretName(aws.ToString(secret.Name))
			if !ok {
				continue
			}
			envsByApp[app] = append(envsByApp[app], provider.Environment{
				ID:   app + "/" + env,
				Name: env,
			})
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
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

// GetSecrets fetches and decodes the secret for one application and
// environment.
func (p *AWSSecretsManagerProvider) GetSecrets(ctx context.Context, applicationID, environmentName string) (provider.SecretPayload, error) {
	secretName := p.prefix + applicationID + "/" + environmentName

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return provider.SecretPayload{}, provider.NotFoundError{
				Provider: p.name,
				Kind:     "secret",
				Name:     secretName,
			}
		}
		return provider.SecretPayload{}, fmt.Errorf("failed to get secret value: %w", err)
	}

	if out.SecretString == nil {
		return provider.SecretPayload{}, fmt.Errorf("secret %s has no string value", secretName)
	}

	var payload provider.SecretPayload
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &payload); err != nil {
		return provider.SecretPayload{}, fmt.Errorf("secret %s is not a valid payload: %w", secretName, err)
	}
	return payload, nil
}

// splitSecretName parses "<prefix><app>/<env>" into its parts.
func (p *AWSSecretsManagerProvider) splitSecretName(name string) (app, env string, ok bool) {
	if !strings.HasPrefix(name, p.prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, p.prefix)
	app, env, found := strings.Cut(rest, "/")
	if !found || app == "" || env == "" {
		return "", "", false
	}
	return app, env, true
}
