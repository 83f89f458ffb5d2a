package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The GCP client is a concrete gRPC type without an interface seam, so
// unit coverage here focuses on the name-mapping logic; the transport is
// exercised by integration environments with real credentials.

func TestSecretIDFromName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "demo__production", secretIDFromName("projects/p-123/secrets/demo__production"))
	assert.Equal(t, "bare", secretIDFromName("bare"))
}

func TestSplitGCPSecretID(t *testing.T) {
	t.Parallel()

	app, env, ok := splitGCPSecretID("demo__production")
	require.True(t, ok)
	assert.Equal(t, "demo", app)
	assert.Equal(t, "production", env)

	_, _, ok = splitGCPSecretID("no-separator")
	assert.False(t, ok)

	_, _, ok = splitGCPSecretID("__production")
	assert.False(t, ok)

	// Underscored app names keep everything after the first separator.
	app, env, ok = splitGCPSecretID("demo__feature__x")
	require.True(t, ok)
	assert.Equal(t, "demo", app)
	assert.Equal(t, "feature__x", env)
}

func TestGCPProviderRequiresProjectID(t *testing.T) {
	t.Parallel()

	_, err := NewGCPSecretManagerProvider(map[string]interface{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")
}
