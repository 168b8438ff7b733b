// Package paths resolves where pacbridge keeps its files.
//
// Three kinds of files are kept apart when the XDG Base Directory variables
// are set:
//
//   - Config (XDG_CONFIG_HOME): pacbridge.yaml
//   - Data (XDG_DATA_HOME): tools/, a private pac install when used
//   - State (XDG_STATE_HOME): logs/
//
// Resolution order:
//  1. PACBRIDGE_HOME set → everything under that directory
//  2. ~/.pacbridge/ exists → flat layout under it
//  3. Any XDG variable set → XDG layout
//  4. Otherwise → ~/.pacbridge/
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

// HomeEnv overrides every other location when set.
const HomeEnv = "PACBRIDGE_HOME"

const appName = "pacbridge"

var (
	mu       sync.Mutex
	resolved *resolvedPaths
)

type resolvedPaths struct {
	configDir string
	dataDir   string
	stateDir  string
	flat      bool
}

func flatLayout(dir string) *resolvedPaths {
	return &resolvedPaths{configDir: dir, dataDir: dir, stateDir: dir, flat: true}
}

// resolve computes the layout once and caches it.
func resolve() (*resolvedPaths, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	if dir := os.Getenv(HomeEnv); dir != "" {
		resolved = flatLayout(dir)
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dotDir := filepath.Join(home, "."+appName)

	if info, err := os.Stat(dotDir); err == nil && info.IsDir() {
		resolved = flatLayout(dotDir)
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgData := os.Getenv("XDG_DATA_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")

	if xdgConfig == "" && xdgData == "" && xdgState == "" {
		resolved = flatLayout(dotDir)
		return resolved, nil
	}

	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	if xdgData == "" {
		xdgData = filepath.Join(home, ".local", "share")
	}
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}
	resolved = &resolvedPaths{
		configDir: filepath.Join(xdgConfig, appName),
		dataDir:   filepath.Join(xdgData, appName),
		stateDir:  filepath.Join(xdgState, appName),
	}
	return resolved, nil
}

// ConfigDir returns the directory holding pacbridge.yaml.
func ConfigDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.configDir, nil
}

// DataDir returns the directory for persistent data.
func DataDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.dataDir, nil
}

// StateDir returns the directory for logs and other transient state.
func StateDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.stateDir, nil
}

// ConfigFilePath returns the full path to pacbridge.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".yaml"), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// ToolsDir returns the default install directory for a private pac copy.
func ToolsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tools"), nil
}

// IsFlatLayout reports whether all files share one directory.
func IsFlatLayout() bool {
	r, err := resolve()
	if err != nil {
		return true
	}
	return r.flat
}

// Reset clears the cached resolution. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
