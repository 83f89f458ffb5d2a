// Package fakes provides in-memory doubles for unit tests.
package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/envsecrets/pkg/provider"
)

// ProviderFake is an in-memory provider with call counting and error
// injection. Safe for concurrent use.
type ProviderFake struct {
	mu sync.Mutex

	Apps    []provider.Application
	Secrets map[string]map[string]string

	InitErr  error
	FetchErr error

	// InitDelay stalls Initialize to widen races in concurrency tests.
	InitDelay time.Duration

	initCalls  int
	fetchCalls int
}

// NewProviderFake returns a fake with a single "demo" application that has
// production and staging environments, each holding API_KEY=abc.
func NewProviderFake() *ProviderFake {
	return &ProviderFake{
		Apps: []provider.Application{
			{
				ID:   "app-1",
				Name: "demo",
				Environments: []provider.Environment{
					{ID: "env-1", Name: "production"},
					{ID: "env-2", Name: "staging"},
				},
			},
		},
		Secrets: map[string]map[string]string{
			"app-1/production": {"API_KEY": "abc"},
			"app-1/staging":    {"API_KEY": "abc"},
		},
	}
}

// Name implements provider.Provider.
func (f *ProviderFake) Name() string { return "fake" }

// Initialize implements provider.Provider.
func (f *ProviderFake) Initialize(_ context.Context) ([]provider.Application, error) {
	f.mu.Lock()
	f.initCalls++
	delay := f.InitDelay
	err := f.InitErr
	apps := f.Apps
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// GetSecrets implements provider.Provider.
func (f *ProviderFake) GetSecrets(_ context.Context, applicationID, environmentName string) (provider.SecretPayload, error) {
	f.mu.Lock()
	f.fetchCalls++
	err := f.FetchErr
	secrets, ok := f.Secrets[applicationID+"/"+environmentName]
	f.mu.Unlock()

	if err != nil {
		return provider.SecretPayload{}, err
	}
	if !ok {
		return provider.SecretPayload{}, fmt.Errorf("no secrets registered for %s/%s", applicationID, environmentName)
	}
	return provider.PayloadFromMap(secrets), nil
}

// SetSecrets replaces the secret map for an application/environment pair.
func (f *ProviderFake) SetSecrets(applicationID, environmentName string, secrets map[string]string) {
	f.mu.Lock()
	if f.Secrets == nil {
		f.Secrets = make(map[string]map[string]string)
	}
	f.Secrets[applicationID+"/"+environmentName] = secrets
	f.mu.Unlock()
}

// SetFetchError makes subsequent GetSecrets calls fail with err.
func (f *ProviderFake) SetFetchError(err error) {
	f.mu.Lock()
	f.FetchErr = err
	f.mu.Unlock()
}

// InitCalls reports how many times Initialize ran.
func (f *ProviderFake) InitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

// FetchCalls reports how many times GetSecrets ran.
func (f *ProviderFake) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}
