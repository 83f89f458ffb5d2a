package execenv

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
)

func createTestExecutor(buf *bytes.Buffer) *Executor {
	return NewWithWriter(logging.New(false, true), buf)
}

func TestBuildEnvironment(t *testing.T) {
	t.Parallel()

	t.Run("adds_secrets_to_environment", func(t *testing.T) {
		t.Parallel()
		env := buildEnvironment(
			[]string{"PATH=/usr/bin", "HOME=/home/user"},
			map[string]string{"API_KEY": "secret123"},
			false,
		)
		assert.Contains(t, env, "API_KEY=secret123")
		assert.Contains(t, env, "PATH=/usr/bin")
	})

	t.Run("secret_wins_by_default", func(t *testing.T) {
		t.Parallel()
		env := buildEnvironment(
			[]string{"API_KEY=from-parent"},
			map[string]string{"API_KEY": "from-secrets"},
			false,
		)
		assert.Contains(t, env, "API_KEY=from-secrets")
		assert.NotContains(t, env, "API_KEY=from-parent")
	})

	t.Run("allow_override_keeps_parent_value", func(t *testing.T) {
		t.Parallel()
		env := buildEnvironment(
			[]string{"API_KEY=from-parent"},
			map[string]string{"API_KEY": "from-secrets", "NEW_KEY": "added"},
			true,
		)
		assert.Contains(t, env, "API_KEY=from-parent")
		assert.Contains(t, env, "NEW_KEY=added")
	})

	t.Run("output_is_sorted", func(t *testing.T) {
		t.Parallel()
		env := buildEnvironment(nil, map[string]string{"B": "2", "A": "1", "C": "3"}, false)
		assert.Equal(t, []string{"A=1", "B=2", "C=3"}, env)
	})

	t.Run("values_may_contain_equals", func(t *testing.T) {
		t.Parallel()
		env := buildEnvironment([]string{"OPTS=a=b,c=d"}, nil, false)
		assert.Contains(t, env, "OPTS=a=b,c=d")
	})
}

func TestRunRequiresCommand(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	executor := createTestExecutor(&buf)

	_, err := executor.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, eserrors.IsConfiguration(err))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	executor := createTestExecutor(&buf)

	_, err := executor.Run(context.Background(), Options{
		Command: []string{"definitely-not-a-real-binary-xyz"},
	})
	require.Error(t, err)
	assert.True(t, eserrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "not found in PATH")
}

func TestRunPropagatesExitCode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	executor := createTestExecutor(&buf)

	code, err := executor.Run(context.Background(), Options{
		Command: []string{"sh", "-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	executor := createTestExecutor(&buf)

	code, err := executor.Run(context.Background(), Options{
		Command: []string{"true"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestPrintSecretsMasksValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	executor := createTestExecutor(&buf)

	executor.printSecrets(map[string]string{
		"API_KEY": "mysupersecretpassword",
		"EMPTY":   "",
	})

	out := buf.String()
	assert.Contains(t, out, "API_KEY=")
	assert.NotContains(t, out, "mysupersecretpassword")
	assert.Contains(t, out, "Injecting 2 environment variables")
}

func TestPrintSecretsEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	executor := createTestExecutor(&buf)

	executor.printSecrets(nil)
	assert.Contains(t, buf.String(), "No secrets resolved")
}
