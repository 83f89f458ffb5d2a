// Package permissions checks filesystem permissions on files that may
// embed credentials.
package permissions

import (
	"fmt"
	"os"
	"runtime"
)

// CheckConfigFile returns warnings for a configuration file readable by
// group or world. The file may embed a provider credential, so it should
// be private to its owner. A missing file yields no warnings.
func CheckConfigFile(path string) ([]string, error) {
	if runtime.GOOS == "windows" {
		// POSIX permission bits are meaningless on Windows ACLs.
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	mode := info.Mode().Perm()
	var warnings []string

	if mode&0o040 != 0 {
		warnings = append(warnings,
			fmt.Sprintf("%s is group-readable (mode %o); run 'chmod 600 %s' if it contains a credential", path, mode, path))
	}
	if mode&0o004 != 0 {
		warnings = append(warnings,
			fmt.Sprintf("%s is world-readable (mode %o); run 'chmod 600 %s' if it contains a credential", path, mode, path))
	}

	return warnings, nil
}
