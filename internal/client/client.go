// Package client orchestrates secret resolution: resolve the deployment
// environment, consult the cache, fetch from the provider on a miss,
// normalize and validate the payload, cache it, and fall back to a stale
// cached copy when the provider is unavailable.
package client

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/systmms/envsecrets/internal/cache"
	"github.com/systmms/envsecrets/internal/envresolver"
	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/internal/metrics"
	"github.com/systmms/envsecrets/internal/validation"
	"github.com/systmms/envsecrets/pkg/provider"
)

// sharedPrefix marks secrets shared across applications; it is stripped
// alongside the application's own prefix.
const sharedPrefix = "SHARED__"

// Config is the client's runtime configuration.
type Config struct {
	// AppNamespace is the application identity secrets belong to.
	AppNamespace string

	// Environment is an explicit override; "auto" (the default) resolves
	// through the environment resolver.
	Environment string

	// EnvMap maps application names to environments, mirroring the
	// ENVSECRETS_ENV_MAP ambient signal.
	EnvMap map[string]string

	// Strict aborts a fetch when required secrets are missing.
	Strict bool

	// StripPrefix removes "<APP>__" and "SHARED__" key prefixes.
	StripPrefix bool

	CacheEnabled     bool
	CacheTTLSeconds  int
	CacheMaxMemoryMB int

	// TimeoutMs bounds each provider call.
	TimeoutMs int

	Debug   bool
	Metrics bool
}

// Option customizes client construction.
type Option func(*Client)

// WithLogger replaces the default logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithAmbientContext replaces the ambient signal source used for
// environment resolution. Tests pass an envresolver.MapContext.
func WithAmbientContext(ctx envresolver.Context) Option {
	return func(c *Client) {
		c.ambient = ctx
	}
}

// WithClock overrides the cache clock. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.clock = now
	}
}

// Client is the secrets-resolution orchestrator. Safe for concurrent use.
type Client struct {
	cfg      Config
	provider provider.Provider
	cache    *cache.SecretCache
	resolver *envresolver.Resolver
	logger   *logging.Logger
	metrics  *metrics.Recorder
	ambient  envresolver.Context
	clock    func() time.Time

	// Provider initialization is lazy and shared: concurrent first
	// callers ride one in-flight Initialize instead of each triggering
	// their own.
	initGroup   singleflight.Group
	mu          sync.RWMutex
	apps        []provider.Application
	initialized bool
}

// New creates a client for prov. The provider is not contacted until the
// first operation that needs it.
func New(cfg Config, prov provider.Provider, opts ...Option) (*Client, error) {
	if cfg.AppNamespace == "" {
		return nil, eserrors.ConfigurationError{
			Field:      "app",
			Message:    "no application name resolved",
			Suggestion: "Pass --app or set 'app' in envsecrets.yaml",
		}
	}
	if prov == nil {
		return nil, eserrors.ConfigurationError{
			Field:   "provider",
			Message: "no provider supplied",
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = envresolver.Auto
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 10000
	}

	c := &Client{
		cfg:      cfg,
		provider: prov,
		ambient:  envresolver.OSContext{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.New(cfg.Debug, false)
	}
	c.metrics = metrics.NewRecorder(cfg.Metrics)
	c.resolver = envresolver.New(c.ambient)

	if cfg.CacheEnabled {
		c.cache = cache.New(cache.Config{
			TTL:         time.Duration(cfg.CacheTTLSeconds) * time.Second,
			MaxMemoryMB: cfg.CacheMaxMemoryMB,
			Logger:      c.logger,
			Metrics:     c.metrics,
			Now:         c.clock,
		})
		c.cache.RegisterShutdownHooks()
		c.cache.StartSweeper(0)
	}

	return c, nil
}

// ResolveEnvironment returns the deployment environment for this client's
// configuration and the ambient context.
func (c *Client) ResolveEnvironment() string {
	return c.resolver.Resolve(envresolver.Options{
		AppName:    c.cfg.AppNamespace,
		GlobalEnv:  c.cfg.Environment,
		EnvMap:     joinEnvMap(c.cfg.EnvMap),
		AutoDetect: true,
	})
}

// GetSecrets resolves the environment and returns its secret map. Cache
// hits return immediately; misses run the fetch → normalize → validate →
// store pipeline. When the provider fails and a stale cached copy exists,
// the stale copy is returned with a warning instead of the error.
// The returned map is the caller's own copy.
func (c *Client) GetSecrets(ctx context.Context) (map[string]string, error) {
	start := c.clock()
	env := c.ResolveEnvironment()

	if c.cache != nil {
		if data, ok := c.cache.Get(env); ok {
			c.logger.Debug("cache hit for environment '%s'", env)
			c.metrics.ObserveFetch(c.cfg.AppNamespace, env, true, c.clock().Sub(start))
			return data, nil
		}
	}

	secrets, err := c.fetchAndStore(ctx, env)
	if err != nil {
		if stale, ok := c.staleFallback(env, err); ok {
			return stale, nil
		}
		return nil, err
	}

	c.metrics.ObserveFetch(c.cfg.AppNamespace, env, false, c.clock().Sub(start))
	return secrets, nil
}

// GetSecret projects a single key from the resolved secret map. A missing
// key is (_, false, nil), never an error.
func (c *Client) GetSecret(ctx context.Context, key string) (string, bool, error) {
	secrets, err := c.GetSecrets(ctx)
	if err != nil {
		return "", false, err
	}
	value, ok := secrets[key]
	return value, ok, nil
}

// Refresh drops the cached entry for the resolved environment and runs the
// full fetch path. The previous entry still serves as the stale fallback
// if the provider fails mid-refresh.
func (c *Client) Refresh(ctx context.Context) (map[string]string, error) {
	env := c.ResolveEnvironment()

	var previous map[string]string
	var had bool
	if c.cache != nil {
		previous, had = c.cache.GetStale(env)
		c.cache.Delete(env)
	}

	secrets, err := c.fetchAndStore(ctx, env)
	if err != nil {
		if shouldFallBack(err) && had {
			c.logger.Warn("refresh failed for environment '%s', keeping previously cached secrets: %v", env, err)
			return previous, nil
		}
		return nil, err
	}
	return secrets, nil
}

// Inject copies every resolved secret into the process environment. Last
// write wins on collision with existing variables.
func (c *Client) Inject(ctx context.Context) error {
	secrets, err := c.GetSecrets(ctx)
	if err != nil {
		return err
	}
	for key, value := range secrets {
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	c.logger.Debug("injected %d secrets into the process environment", len(secrets))
	return nil
}

// ClearCache securely erases all cached secrets.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// CacheStats returns a snapshot of cache usage. The zero Stats is
// returned when caching is disabled.
func (c *Client) CacheStats() cache.Stats {
	if c.cache == nil {
		return cache.Stats{HealthStatus: "disabled"}
	}
	return c.cache.Stats()
}

// ValidateCache recomputes the cached entry's checksum for the resolved
// environment. Advisory; a false return means the entry was corrupted
// out-of-band.
func (c *Client) ValidateCache() bool {
	if c.cache == nil {
		return false
	}
	return c.cache.Validate(c.ResolveEnvironment())
}

// Close stops the cache's background sweeper and securely erases cached
// secrets. Safe to call more than once.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Stop()
		c.cache.Clear()
	}
}

// fetchAndStore runs the miss path: initialize (once), locate the
// application and environment, fetch with timeout, normalize, validate in
// strict mode, and store.
func (c *Client) fetchAndStore(ctx context.Context, env string) (map[string]string, error) {
	apps, err := c.ensureInitialized(ctx)
	if err != nil {
		return nil, eserrors.ProviderError{
			Provider: c.provider.Name(),
			Op:       "initialize",
			Err:      err,
		}
	}

	app, ok := provider.FindApplication(apps, c.cfg.AppNamespace)
	if !ok {
		return nil, eserrors.ProviderError{
			Provider:     c.provider.Name(),
			Op:           "lookup application",
			Message:      fmt.Sprintf("application '%s' not found", c.cfg.AppNamespace),
			Alternatives: applicationNames(apps),
		}
	}

	envMeta, ok := provider.FindEnvironment(app, env)
	if !ok {
		return nil, eserrors.ProviderError{
			Provider:     c.provider.Name(),
			Op:           "lookup environment",
			Message:      fmt.Sprintf("environment '%s' not found for application '%s'", env, app.Name),
			Alternatives: environmentNames(app),
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	payload, err := c.provider.GetSecrets(fetchCtx, app.ID, envMeta.Name)
	if err != nil {
		return nil, eserrors.ProviderError{
			Provider: c.provider.Name(),
			Op:       "fetch secrets",
			Err:      err,
		}
	}

	secrets := payload.Normalize()
	if c.cfg.StripPrefix {
		secrets = stripPrefixes(secrets, c.cfg.AppNamespace)
	}

	if c.cfg.Strict {
		result := validation.ValidateSecrets(secrets, c.cfg.AppNamespace, env == envresolver.Production)
		for _, warning := range result.Warnings {
			c.logger.Warn("%s", warning.Message)
		}
		if !result.Valid {
			issues := make([]string, 0, len(result.Errors))
			for _, issue := range result.Errors {
				issues = append(issues, issue.Message)
			}
			return nil, eserrors.ValidationError{
				Namespace: c.cfg.AppNamespace,
				Issues:    issues,
			}
		}
	}

	if c.cache != nil {
		c.cache.Set(env, secrets)
	}
	return secrets, nil
}

// staleFallback serves an expired cached copy when the provider is down.
// Configuration and validation failures are the caller's bug, not the
// provider's, and never fall back.
func (c *Client) staleFallback(env string, cause error) (map[string]string, bool) {
	if !shouldFallBack(cause) || c.cache == nil {
		return nil, false
	}
	stale, ok := c.cache.GetStale(env)
	if !ok {
		return nil, false
	}
	c.logger.Warn("provider unavailable for environment '%s', using cached secrets: %v", env, cause)
	return stale, true
}

func shouldFallBack(err error) bool {
	return eserrors.IsProvider(err)
}

// ensureInitialized performs the lazy, shared provider initialization and
// returns the application list.
func (c *Client) ensureInitialized(ctx context.Context) ([]provider.Application, error) {
	c.mu.RLock()
	if c.initialized {
		apps := c.apps
		c.mu.RUnlock()
		return apps, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.initGroup.Do("initialize", func() (interface{}, error) {
		c.mu.RLock()
		if c.initialized {
			apps := c.apps
			c.mu.RUnlock()
			return apps, nil
		}
		c.mu.RUnlock()

		initCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMs)*time.Millisecond)
		defer cancel()

		apps, err := c.provider.Initialize(initCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.apps = apps
		c.initialized = true
		c.mu.Unlock()

		c.logger.Debug("provider initialized with %d applications", len(apps))
		return apps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Application), nil
}

// stripPrefixes removes the application's own "<APP>__" prefix and the
// shared "SHARED__" prefix from each key. Unprefixed keys pass through.
func stripPrefixes(secrets map[string]string, namespace string) map[string]string {
	appPrefix := namespace + "__"
	out := make(map[string]string, len(secrets))
	for key, value := range secrets {
		out[stripKeyPrefix(key, appPrefix)] = value
	}
	return out
}

func stripKeyPrefix(key, appPrefix string) string {
	for _, prefix := range []string{appPrefix, sharedPrefix} {
		if len(key) > len(prefix) && strings.EqualFold(key[:len(prefix)], prefix) {
			return key[len(prefix):]
		}
	}
	return key
}

func applicationNames(apps []provider.Application) []string {
	names := make([]string, 0, len(apps))
	for _, app := range apps {
		names = append(names, app.Name)
	}
	return names
}

func environmentNames(app provider.Application) []string {
	names := make([]string, 0, len(app.Environments))
	for _, env := range app.Environments {
		names = append(names, env.Name)
	}
	return names
}

// joinEnvMap flattens a map into the resolver's "app=env,..." option
// form, sorted for determinism.
func joinEnvMap(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, ",")
}
