package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretPayloadListShape(t *testing.T) {
	t.Parallel()

	var payload SecretPayload
	err := json.Unmarshal([]byte(`[
		{"key": "API_KEY", "value": "abc"},
		{"key": "EMPTY", "value": ""},
		{"key": "MISSING", "value": null},
		{"key": "NO_VALUE"}
	]`), &payload)
	require.NoError(t, err)

	secrets := payload.Normalize()
	assert.Equal(t, map[string]string{
		"API_KEY": "abc",
		"EMPTY":   "",
		"MISSING": "",
		"NO_VALUE": "",
	}, secrets)
}

func TestSecretPayloadFlatShape(t *testing.T) {
	t.Parallel()

	var payload SecretPayload
	err := json.Unmarshal([]byte(`{"API_KEY": "abc", "NULLED": null, "EMPTY": ""}`), &payload)
	require.NoError(t, err)

	secrets := payload.Normalize()
	assert.Equal(t, map[string]string{
		"API_KEY": "abc",
		"NULLED":  "",
		"EMPTY":   "",
	}, secrets)
}

func TestSecretPayloadLeadingWhitespace(t *testing.T) {
	t.Parallel()

	var payload SecretPayload
	err := json.Unmarshal([]byte("\n\t [{\"key\":\"K\",\"value\":\"v\"}]"), &payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"K": "v"}, payload.Normalize())
}

func TestSecretPayloadRejectsGarbage(t *testing.T) {
	t.Parallel()

	var payload SecretPayload
	assert.Error(t, json.Unmarshal([]byte(`"just a string"`), &payload))
	assert.Error(t, json.Unmarshal([]byte(`[{"key": 42}]`), &payload))
}

func TestPayloadFromMap(t *testing.T) {
	t.Parallel()

	payload := PayloadFromMap(map[string]string{"A": "1", "B": ""})
	assert.Equal(t, 2, payload.Len())
	assert.Equal(t, map[string]string{"A": "1", "B": ""}, payload.Normalize())
}

func TestFindApplicationCaseInsensitive(t *testing.T) {
	t.Parallel()

	apps := []Application{
		{ID: "app_1", Name: "Demo"},
		{ID: "app_2", Name: "api"},
	}

	app, ok := FindApplication(apps, "DEMO")
	require.True(t, ok)
	assert.Equal(t, "app_1", app.ID)

	_, ok = FindApplication(apps, "docs")
	assert.False(t, ok)
}

func TestFindEnvironmentCaseInsensitive(t *testing.T) {
	t.Parallel()

	app := Application{
		Environments: []Environment{
			{ID: "env_1", Name: "Production"},
			{ID: "env_2", Name: "staging"},
		},
	}

	env, ok := FindEnvironment(app, "production")
	require.True(t, ok)
	assert.Equal(t, "env_1", env.ID)

	_, ok = FindEnvironment(app, "qa")
	assert.False(t, ok)
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	nf := NotFoundError{Provider: "http", Kind: "application", Name: "demo"}
	assert.Equal(t, "http: application 'demo' not found", nf.Error())

	ae := AuthError{Provider: "http", Message: "token expired"}
	assert.Contains(t, ae.Error(), "authentication failed")
	assert.Contains(t, ae.Error(), "token expired")
}
