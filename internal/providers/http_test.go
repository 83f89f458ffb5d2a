package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/internal/secure"
	"github.com/systmms/envsecrets/pkg/provider"
)

func newHTTPTestProvider(t *testing.T, handler http.Handler) *HTTPProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewHTTPProvider(
		map[string]interface{}{"host": server.URL},
		secure.NewCredential("svc_token_123"),
		logging.NewWithWriter(&strings.Builder{}, false),
	)
	require.NoError(t, err)
	return p
}

func TestHTTPProviderInitialize(t *testing.T) {
	t.Parallel()

	p := newHTTPTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/apps", r.URL.Path)
		assert.Equal(t, "Bearer svc_token_123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "app_1", "name": "demo", "environments": [
				{"id": "env_1", "name": "production"},
				{"id": "env_2", "name": "staging"}
			]}
		]`))
	}))

	apps, err := p.Initialize(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "demo", apps[0].Name)
	assert.Len(t, apps[0].Environments, 2)
}

func TestHTTPProviderGetSecretsListShape(t *testing.T) {
	t.Parallel()

	p := newHTTPTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/apps/app_1/secrets", r.URL.Path)
		assert.Equal(t, "production", r.URL.Query().Get("environment"))
		_, _ = w.Write([]byte(`[{"key": "API_KEY", "value": "abc"}]`))
	}))

	payload, err := p.GetSecrets(context.Background(), "app_1", "production")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "abc"}, payload.Normalize())
}

func TestHTTPProviderGetSecretsFlatShape(t *testing.T) {
	t.Parallel()

	p := newHTTPTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"API_KEY": "abc", "EMPTY": null}`))
	}))

	payload, err := p.GetSecrets(context.Background(), "app_1", "production")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "abc", "EMPTY": ""}, payload.Normalize())
}

func TestHTTPProviderAuthFailure(t *testing.T) {
	t.Parallel()

	p := newHTTPTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))

	_, err := p.Initialize(context.Background())
	require.Error(t, err)

	var authErr provider.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "token expired")
}

func TestHTTPProviderNotFound(t *testing.T) {
	t.Parallel()

	p := newHTTPTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := p.GetSecrets(context.Background(), "app_1", "production")
	require.Error(t, err)

	var nf provider.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestHTTPProviderServerError(t *testing.T) {
	t.Parallel()

	p := newHTTPTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := p.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPProviderRequiresHost(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPProvider(map[string]interface{}{}, secure.NewCredential("t"), logging.New(false, true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}

func TestHTTPProviderContextCancellation(t *testing.T) {
	t.Parallel()

	p := newHTTPTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Initialize(ctx)
	assert.Error(t, err)
}
