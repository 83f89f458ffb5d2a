// Package envresolver determines the deployment environment an application
// should pull secrets for.
//
// Resolution is a pure function of the supplied options and the ambient
// signals visible through a Context, so the precedence chain can be tested
// without touching real process state. The chain, highest priority first:
//
//  1. per-app override signal (ENVSECRETS_ENV__<APP>)
//  2. explicit environment map (option, then ENVSECRETS_ENV_MAP signal)
//  3. global override signal (ENVSECRETS_ENV, unless "auto")
//  4. GlobalEnv option (unless "auto")
//  5. platform auto-detection, when enabled
//  6. "development"
package envresolver

import (
	"os"
	"strings"
)

// Auto is the sentinel environment value meaning "detect for me".
const Auto = "auto"

// Canonical environment names.
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

// Ambient signal names.
const (
	// SignalPrefix is the global override variable; per-app overrides
	// append "__<APP>" and the map signal appends "_MAP".
	SignalPrefix = "ENVSECRETS_ENV"

	mapSignal = SignalPrefix + "_MAP"

	vercelSignal        = "VERCEL_ENV"
	githubActionsSignal = "GITHUB_ACTIONS"
	githubRefSignal     = "GITHUB_REF"
	kubernetesSignal    = "KUBERNETES_SERVICE_HOST"
	runtimeModeSignal   = "APP_ENV"
)

// Context provides read-only access to ambient named signals. The standard
// implementation reads process environment variables; tests substitute a
// fixed map.
type Context interface {
	LookupEnv(key string) (string, bool)
}

// OSContext reads signals from the real process environment.
type OSContext struct{}

// LookupEnv implements Context.
func (OSContext) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapContext is a Context backed by a fixed map. Useful in tests.
type MapContext map[string]string

// LookupEnv implements Context.
func (m MapContext) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Options control a single resolution.
type Options struct {
	// AppName enables per-app override signals and environment-map lookup.
	AppName string

	// GlobalEnv is an explicit environment override; Auto means "ignore".
	GlobalEnv string

	// EnvMap is an "app=env,app2=env2" mapping that takes precedence over
	// the ambient map signal.
	EnvMap string

	// AutoDetect enables platform detection when no override applies.
	AutoDetect bool
}

// DefaultOptions returns Options with auto-detection enabled.
func DefaultOptions() Options {
	return Options{AutoDetect: true}
}

// Resolver resolves deployment environments against an ambient context.
type Resolver struct {
	ctx Context
}

// New creates a resolver reading signals from ctx. Pass OSContext{} for
// production use.
func New(ctx Context) *Resolver {
	return &Resolver{ctx: ctx}
}

// Resolve returns the environment name for opts. It is total: every input
// resolves to some environment, falling back to Development.
func (r *Resolver) Resolve(opts Options) string {
	// 1. App-specific override signal.
	if opts.AppName != "" {
		if v, ok := r.ctx.LookupEnv(appSignal(opts.AppName)); ok && v != "" {
			return v
		}
	}

	// 2. Explicit environment map: option string wins over ambient signal.
	if opts.AppName != "" {
		mapSource := opts.EnvMap
		if mapSource == "" {
			if v, ok := r.ctx.LookupEnv(mapSignal); ok {
				mapSource = v
			}
		}
		if mapSource != "" {
			if env, ok := ParseEnvMap(mapSource)[opts.AppName]; ok {
				return env
			}
		}
	}

	// 3. Global override signal.
	if v, ok := r.ctx.LookupEnv(SignalPrefix); ok && v != "" && v != Auto {
		return v
	}

	// 4. GlobalEnv option.
	if opts.GlobalEnv != "" && opts.GlobalEnv != Auto {
		return opts.GlobalEnv
	}

	// 5. Platform auto-detection.
	if opts.AutoDetect {
		return r.autoDetect()
	}

	// 6. Default.
	return Development
}

// autoDetect inspects hosting-platform, CI, container, and runtime-mode
// signals in a fixed order and returns on the first match.
func (r *Resolver) autoDetect() string {
	if v, ok := r.ctx.LookupEnv(vercelSignal); ok && v != "" {
		switch v {
		case "production":
			return Production
		case "preview":
			return Staging
		default:
			return Development
		}
	}

	if _, ok := r.ctx.LookupEnv(githubActionsSignal); ok {
		ref, _ := r.ctx.LookupEnv(githubRefSignal)
		switch ref {
		case "refs/heads/main":
			return Production
		case "refs/heads/develop":
			return Staging
		default:
			// Pull-request and feature refs build against development.
			return Development
		}
	}

	if _, ok := r.ctx.LookupEnv(kubernetesSignal); ok {
		if v, ok := r.ctx.LookupEnv(SignalPrefix); ok && v != "" && v != Auto {
			return v
		}
		return Development
	}

	if v, ok := r.ctx.LookupEnv(runtimeModeSignal); ok {
		switch v {
		case "production":
			return Production
		case "test":
			return Staging
		}
	}

	return Development
}

// appSignal builds the per-app override variable name: the app name is
// uppercased and anything outside [A-Za-z0-9] becomes an underscore, so
// "my-web.app" maps to ENVSECRETS_ENV__MY_WEB_APP.
func appSignal(appName string) string {
	var b strings.Builder
	b.WriteString(SignalPrefix)
	b.WriteString("__")
	for _, r := range strings.ToUpper(appName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ParseEnvMap parses an "app=env,app2=env2" string. Segments without '=' or
// with an empty key or value are discarded; keys and values are trimmed.
func ParseEnvMap(s string) map[string]string {
	result := make(map[string]string)
	for _, segment := range strings.Split(s, ",") {
		key, value, found := strings.Cut(segment, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
