package paths

import (
	"os"
	"path/filepath"
	"testing"
)

// setupTestHome points HOME at a temp dir, clears overrides and resets the cache.
func setupTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv(HomeEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	Reset()
	t.Cleanup(Reset)
	return tmpDir
}

func assertDirs(t *testing.T, config, data, state string) {
	t.Helper()

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if got != config {
		t.Errorf("ConfigDir = %q, want %q", got, config)
	}

	got, err = DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if got != data {
		t.Errorf("DataDir = %q, want %q", got, data)
	}

	got, err = StateDir()
	if err != nil {
		t.Fatalf("StateDir: %v", err)
	}
	if got != state {
		t.Errorf("StateDir = %q, want %q", got, state)
	}
}

func TestDefaultLayout(t *testing.T) {
	home := setupTestHome(t)
	want := filepath.Join(home, ".pacbridge")

	assertDirs(t, want, want, want)
	if !IsFlatLayout() {
		t.Error("IsFlatLayout should be true without XDG vars")
	}
}

func TestHomeEnvOverride(t *testing.T) {
	setupTestHome(t)
	custom := t.TempDir()
	t.Setenv(HomeEnv, custom)
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

	assertDirs(t, custom, custom, custom)
}

func TestDotDirTakesPrecedenceOverXDG(t *testing.T) {
	home := setupTestHome(t)
	dotDir := filepath.Join(home, ".pacbridge")
	if err := os.MkdirAll(dotDir, 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg-config"))

	assertDirs(t, dotDir, dotDir, dotDir)
}

func TestXDGAllVarsSet(t *testing.T) {
	home := setupTestHome(t)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "c"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "d"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "s"))

	assertDirs(t,
		filepath.Join(home, "c", "pacbridge"),
		filepath.Join(home, "d", "pacbridge"),
		filepath.Join(home, "s", "pacbridge"),
	)
	if IsFlatLayout() {
		t.Error("IsFlatLayout should be false with XDG vars")
	}
}

func TestXDGPartialVars(t *testing.T) {
	home := setupTestHome(t)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "s"))

	assertDirs(t,
		filepath.Join(home, ".config", "pacbridge"),
		filepath.Join(home, ".local", "share", "pacbridge"),
		filepath.Join(home, "s", "pacbridge"),
	)
}

func TestDerivedPaths(t *testing.T) {
	home := setupTestHome(t)
	base := filepath.Join(home, ".pacbridge")

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"ConfigFilePath", ConfigFilePath, filepath.Join(base, "pacbridge.yaml")},
		{"LogsDir", LogsDir, filepath.Join(base, "logs")},
		{"ToolsDir", ToolsDir, filepath.Join(base, "tools")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestResetClearsCache(t *testing.T) {
	home := setupTestHome(t)

	first, _ := ConfigDir()
	if first != filepath.Join(home, ".pacbridge") {
		t.Fatalf("ConfigDir = %q", first)
	}

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "c"))
	cached, _ := ConfigDir()
	if cached != first {
		t.Errorf("ConfigDir changed without Reset: %q", cached)
	}

	Reset()
	fresh, _ := ConfigDir()
	if fresh != filepath.Join(home, "c", "pacbridge") {
		t.Errorf("ConfigDir after Reset = %q", fresh)
	}
}

func TestDotFileNotDir(t *testing.T) {
	home := setupTestHome(t)
	if err := os.WriteFile(filepath.Join(home, ".pacbridge"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "c"))

	got, _ := ConfigDir()
	if got != filepath.Join(home, "c", "pacbridge") {
		t.Errorf("ConfigDir = %q, want XDG layout when ~/.pacbridge is a file", got)
	}
}
