package pac

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrExecutableNotFound is returned when pac is neither in the tool
// directory nor on PATH.
var ErrExecutableNotFound = errors.New("pac executable not found")

// ExecutableName returns the platform file name of the pac binary.
func ExecutableName() string {
	if runtime.GOOS == "windows" {
		return "pac.exe"
	}
	return "pac"
}

// Locate resolves the pac binary. toolDir, when set, is searched first
// (both directly and under tools/, the layout of the pac NuGet package);
// otherwise PATH is consulted.
func Locate(toolDir string) (string, error) {
	name := ExecutableName()

	if toolDir != "" {
		for _, candidate := range []string{
			filepath.Join(toolDir, name),
			filepath.Join(toolDir, "tools", name),
		} {
			if isExecutableFile(candidate) {
				return candidate, nil
			}
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		if toolDir != "" {
			return "", fmt.Errorf("%w in %s or PATH", ErrExecutableNotFound, toolDir)
		}
		return "", fmt.Errorf("%w on PATH", ErrExecutableNotFound)
	}
	return path, nil
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
