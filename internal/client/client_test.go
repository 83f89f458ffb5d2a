package client

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/envsecrets/internal/envresolver"
	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/pkg/provider"
	"github.com/systmms/envsecrets/tests/fakes"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func baseConfig() Config {
	return Config{
		AppNamespace:     "demo",
		Environment:      "production",
		StripPrefix:      true,
		CacheEnabled:     true,
		CacheTTLSeconds:  300,
		CacheMaxMemoryMB: 10,
		TimeoutMs:        5000,
	}
}

func newTestClient(t *testing.T, cfg Config, fake *fakes.ProviderFake, extra ...Option) (*Client, *testClock, *bytes.Buffer) {
	t.Helper()

	clock := newTestClock()
	var buf bytes.Buffer
	opts := append([]Option{
		WithLogger(logging.NewWithWriter(&buf, false)),
		WithAmbientContext(envresolver.MapContext{}),
		WithClock(clock.Now),
	}, extra...)

	c, err := New(cfg, fake, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, clock, &buf
}

func TestGetSecretsFetchesAndCaches(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	c, _, _ := newTestClient(t, baseConfig(), fake)

	secrets, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "abc"}, secrets)

	again, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, secrets, again)

	assert.Equal(t, 1, fake.InitCalls(), "provider should initialize once")
	assert.Equal(t, 1, fake.FetchCalls(), "second call within TTL should hit the cache")
}

func TestGetSecretsReturnsCallerOwnedCopy(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	c, _, _ := newTestClient(t, baseConfig(), fake)

	first, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	first["API_KEY"] = "tampered"

	second, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", second["API_KEY"])
}

func TestStaleFallbackAfterProviderFailure(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	c, clock, buf := newTestClient(t, baseConfig(), fake)

	_, err := c.GetSecrets(context.Background())
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	fake.SetFetchError(errors.New("connection refused"))

	secrets, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "abc"}, secrets)
	assert.Contains(t, buf.String(), "using cached secrets")
}

func TestProviderFailureWithoutCacheSurfacesError(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	fake.SetFetchError(errors.New("connection refused"))

	c, _, _ := newTestClient(t, baseConfig(), fake)
	_, err := c.GetSecrets(context.Background())
	require.Error(t, err)
	assert.True(t, eserrors.IsProvider(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRefreshReFetches(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	c, _, _ := newTestClient(t, baseConfig(), fake)

	_, err := c.GetSecrets(context.Background())
	require.NoError(t, err)

	fake.SetSecrets("app-1", "production", map[string]string{"API_KEY": "rotated"})
	secrets, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", secrets["API_KEY"])
	assert.Equal(t, 2, fake.FetchCalls())

	// The refreshed value is what later reads see.
	cached, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", cached["API_KEY"])
	assert.Equal(t, 2, fake.FetchCalls())
}

func TestRefreshFallsBackToPreviousValue(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	c, _, buf := newTestClient(t, baseConfig(), fake)

	_, err := c.GetSecrets(context.Background())
	require.NoError(t, err)

	fake.SetFetchError(errors.New("service unavailable"))
	secrets, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_KEY": "abc"}, secrets)
	assert.Contains(t, buf.String(), "keeping previously cached secrets")
}

func TestStrictValidationAbortsWithoutCaching(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	fake.Apps = []provider.Application{
		{
			ID:           "app-api",
			Name:         "api",
			Environments: []provider.Environment{{ID: "env-1", Name: "production"}},
		},
	}
	fake.SetSecrets("app-api", "production", map[string]string{"API_KEY": "abc"})

	cfg := baseConfig()
	cfg.AppNamespace = "api"
	cfg.Strict = true

	c, _, _ := newTestClient(t, cfg, fake)
	_, err := c.GetSecrets(context.Background())
	require.Error(t, err)
	assert.True(t, eserrors.IsValidation(err))
	assert.Contains(t, err.Error(), "DATABASE_URL")

	assert.Equal(t, 0, c.CacheStats().Entries, "failed validation must not populate the cache")
}

func TestStripPrefixes(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	fake.SetSecrets("app-1", "production", map[string]string{
		"DEMO__API_KEY": "abc",
		"SHARED__TOKEN": "t",
		"PLAIN":         "p",
	})

	c, _, _ := newTestClient(t, baseConfig(), fake)
	secrets, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"API_KEY": "abc",
		"TOKEN":   "t",
		"PLAIN":   "p",
	}, secrets)
}

func TestStripPrefixDisabled(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	fake.SetSecrets("app-1", "production", map[string]string{"DEMO__API_KEY": "abc"})

	cfg := baseConfig()
	cfg.StripPrefix = false

	c, _, _ := newTestClient(t, cfg, fake)
	secrets, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DEMO__API_KEY": "abc"}, secrets)
}

func TestUnknownApplicationListsAlternatives(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.AppNamespace = "ghost"

	c, _, _ := newTestClient(t, cfg, fakes.NewProviderFake())
	_, err := c.GetSecrets(context.Background())
	require.Error(t, err)
	assert.True(t, eserrors.IsProvider(err))
	assert.Contains(t, err.Error(), "'ghost' not found")
	assert.Contains(t, err.Error(), "demo")
}

func TestUnknownEnvironmentListsAlternatives(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Environment = "qa"

	c, _, _ := newTestClient(t, cfg, fakes.NewProviderFake())
	_, err := c.GetSecrets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'qa' not found")
	assert.Contains(t, err.Error(), "production")
}

func TestGetSecretMissingKeyIsNotAnError(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestClient(t, baseConfig(), fakes.NewProviderFake())

	value, ok, err := c.GetSecret(context.Background(), "API_KEY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)

	_, ok, err = c.GetSecret(context.Background(), "NO_SUCH_KEY")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentFirstCallInitializesOnce(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	fake.InitDelay = 50 * time.Millisecond

	c, _, _ := newTestClient(t, baseConfig(), fake)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetSecrets(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.InitCalls(), "concurrent callers must share one initialization")
}

func TestFailedInitializationIsRetried(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	fake.InitErr = errors.New("temporary outage")

	c, _, _ := newTestClient(t, baseConfig(), fake)
	_, err := c.GetSecrets(context.Background())
	require.Error(t, err)
	assert.True(t, eserrors.IsProvider(err))

	fake.InitErr = nil
	secrets, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", secrets["API_KEY"])
	assert.Equal(t, 2, fake.InitCalls())
}

func TestAmbientEnvironmentResolution(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	fake.SetSecrets("app-1", "staging", map[string]string{"API_KEY": "staging-key"})

	cfg := baseConfig()
	cfg.Environment = envresolver.Auto

	c, _, _ := newTestClient(t, cfg, fake,
		WithAmbientContext(envresolver.MapContext{"ENVSECRETS_ENV__DEMO": "staging"}))

	assert.Equal(t, "staging", c.ResolveEnvironment())

	secrets, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "staging-key", secrets["API_KEY"])
}

func TestEnvMapOptionResolution(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	cfg := baseConfig()
	cfg.Environment = envresolver.Auto
	cfg.EnvMap = map[string]string{"demo": "staging", "other": "production"}

	c, _, _ := newTestClient(t, cfg, fake)
	assert.Equal(t, "staging", c.ResolveEnvironment())
}

func TestCacheDisabledAlwaysFetches(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	cfg := baseConfig()
	cfg.CacheEnabled = false

	c, _, _ := newTestClient(t, cfg, fake)

	_, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	_, err = c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.FetchCalls())
	assert.Equal(t, "disabled", c.CacheStats().HealthStatus)
}

func TestClearCacheForcesRefetch(t *testing.T) {
	t.Parallel()

	fake := fakes.NewProviderFake()
	c, _, _ := newTestClient(t, baseConfig(), fake)

	_, err := c.GetSecrets(context.Background())
	require.NoError(t, err)

	c.ClearCache()

	_, err = c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.FetchCalls())
}

func TestValidateCache(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestClient(t, baseConfig(), fakes.NewProviderFake())
	assert.False(t, c.ValidateCache(), "nothing cached yet")

	_, err := c.GetSecrets(context.Background())
	require.NoError(t, err)
	assert.True(t, c.ValidateCache())
}

func TestNewRequiresApplicationName(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, fakes.NewProviderFake())
	require.Error(t, err)
	assert.True(t, eserrors.IsConfiguration(err))
}
