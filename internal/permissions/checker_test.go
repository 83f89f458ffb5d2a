package permissions

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFileWithMode(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "envsecrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: demo\n"), mode))
	// Umask may have stripped bits; force the mode.
	require.NoError(t, os.Chmod(path, mode))
	return path
}

func TestCheckConfigFile(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission checks do not apply on Windows")
	}

	tests := []struct {
		name         string
		mode         os.FileMode
		wantWarnings int
	}{
		{"owner only", 0o600, 0},
		{"group readable", 0o640, 1},
		{"world readable", 0o604, 1},
		{"group and world readable", 0o644, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFileWithMode(t, tt.mode)
			warnings, err := CheckConfigFile(path)
			require.NoError(t, err)
			assert.Len(t, warnings, tt.wantWarnings)
		})
	}
}

func TestCheckConfigFileMissing(t *testing.T) {
	t.Parallel()

	warnings, err := CheckConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
}
