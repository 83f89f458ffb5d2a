package commands

import (
	"sort"
	"strings"

	"github.com/systmms/envsecrets/internal/client"
	"github.com/systmms/envsecrets/internal/config"
	"github.com/systmms/envsecrets/internal/permissions"
	"github.com/systmms/envsecrets/internal/providers"
	"github.com/systmms/envsecrets/internal/secure"
	"github.com/systmms/envsecrets/internal/validation"
)

// Options carries parsed global flags into the commands.
type Options struct {
	Config *config.Config

	App     string
	Env     string
	Debug   bool
	Strict  bool
	Metrics bool
}

// loadConfig loads the configuration file and surfaces permission warnings.
func (o *Options) loadConfig() error {
	if err := o.Config.Load(); err != nil {
		return err
	}

	warnings, err := permissions.CheckConfigFile(o.Config.Path)
	if err != nil {
		o.Config.Logger.Debug("permission check failed: %v", err)
		return nil
	}
	for _, warning := range warnings {
		o.Config.Logger.Warn("%s", warning)
	}
	return nil
}

// environment returns the effective environment override: flag first, then
// the config file.
func (o *Options) environment() string {
	if o.Env != "" {
		return o.Env
	}
	return o.Config.Definition.Environment
}

// buildClient assembles the full pipeline: config, credential, provider,
// client. The caller owns the returned client and must Close it.
func (o *Options) buildClient() (*client.Client, error) {
	if err := o.loadConfig(); err != nil {
		return nil, err
	}
	def := o.Config.Definition

	appName, err := o.Config.ResolveApplicationName(o.App)
	if err != nil {
		return nil, err
	}

	token, err := o.Config.ResolveCredential(appName)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateCredential(token); err != nil {
		return nil, err
	}
	credential := secure.NewCredential(token)

	prov, err := providers.New(def.Provider, credential, o.Config.Logger)
	if err != nil {
		credential.Destroy()
		return nil, err
	}

	return client.New(client.Config{
		AppNamespace:     appName,
		Environment:      o.environment(),
		EnvMap:           def.EnvMap,
		Strict:           o.Strict || def.Strict,
		StripPrefix:      def.StripPrefixEnabled(),
		CacheEnabled:     def.CacheEnabled(),
		CacheTTLSeconds:  def.Cache.TTLSeconds,
		CacheMaxMemoryMB: def.Cache.MaxMemoryMB,
		TimeoutMs:        def.TimeoutMs,
		Debug:            o.Debug,
		Metrics:          o.Metrics || def.Metrics,
	}, prov, client.WithLogger(o.Config.Logger))
}

// joinEnvMap flattens a map into the resolver's "app=env,..." option form.
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

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
