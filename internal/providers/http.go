package providers

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/internal/secure"
	"github.com/systmms/envsecrets/pkg/provider"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPProvider talks to the hosted secrets service over its REST API.
// It is the default provider type.
type HTTPProvider struct {
	name       string
	httpClient *http.Client
	host       string
	credential *secure.Credential
	logger     *logging.Logger
}

// NewHTTPProvider creates the REST provider. Recognized settings:
// host (required), ca_cert (path to a PEM bundle), insecure_skip_verify,
// and timeout_ms.
func NewHTTPProvider(settings map[string]interface{}, credential *secure.Credential, logger *logging.Logger) (*HTTPProvider, error) {
	host, err := requireSetting(settings, TypeHTTP, "host",
		"Set provider.host to the secrets service URL, e.g. https://secrets.example.com")
	if err != nil {
		return nil, err
	}
	if _, err := url.Parse(host); err != nil {
		return nil, eserrors.ConfigurationError{
			Field:      "provider.host",
			Value:      host,
			Message:    "invalid host URL",
			Suggestion: "Use a full URL such as https://secrets.example.com",
		}
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}

	if caCert := settingString(settings, "ca_cert"); caCert != "" {
		pem, err := os.ReadFile(caCert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", caCert)
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	if settingBool(settings, "insecure_skip_verify") {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	timeout := defaultHTTPTimeout
	if ms, ok := settings["timeout_ms"].(int); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	return &HTTPProvider{
		name: TypeHTTP,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		host:       strings.TrimRight(host, "/"),
		credential: credential,
		logger:     logger,
	}, nil
}

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Initialize fetches the applications visible to the credential.
func (p *HTTPProvider) Initialize(ctx context.Context) ([]provider.Application, error) {
	var apps []provider.Application
	err := p.getJSON(ctx, p.host+"/api/v1/apps", &apps)
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// GetSecrets fetches the payload for one application and environment.
func (p *HTTPProvider) GetSecrets(ctx context.Context, applicationID, environmentName string) (provider.SecretPayload, error) {
	endpoint := fmt.Sprintf("%s/api/v1/apps/%s/secrets?environment=%s",
		p.host, url.PathEscape(applicationID), url.QueryEscape(environmentName))

	var payload provider.SecretPayload
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		return provider.SecretPayload{}, err
	}
	return payload, nil
}

// getJSON performs an authenticated GET and decodes the response into out.
// The bearer token only exists in plaintext for the duration of the call.
func (p *HTTPProvider) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	return p.credential.Use(func(token string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to decode
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return provider.AuthError{Provider: p.name, Message: readErrorBody(resp.Body)}
		case resp.StatusCode == http.StatusNotFound:
			return provider.NotFoundError{Provider: p.name, Kind: "resource", Name: endpoint}
		default:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

// readErrorBody captures a bounded amount of an error response for
// diagnostics.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
