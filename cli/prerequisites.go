// Package cli checks that the external tools pacbridge drives are installed.
package cli

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/microsoft/powerplatform-vscode-sub000/exec"
)

// versionTimeout bounds each version command; pac can be slow to start.
const versionTimeout = 20 * time.Second

// Prerequisite represents a required CLI tool
type Prerequisite struct {
	Name        string   // Command name (e.g., "pac", "dotnet")
	Path        string   // Explicit location; empty means search PATH
	Required    bool     // Whether the tool is required to run the app
	Description string   // Human-readable description
	InstallURL  string   // URL for installation instructions
	VersionArgs []string // Arguments that print the version

	// VersionPattern extracts the version from the version command output. The first
	// submatch wins; without one the first output line is used.
	VersionPattern *regexp.Regexp
}

// pacVersion matches the banner pac prints for "help".
var pacVersion = regexp.MustCompile(`(?m)^\s*Version:\s*(\S+)`)

// DefaultPrerequisites lists the tools pacbridge needs. pacPath may point
// at a pac binary outside PATH.
func DefaultPrerequisites(pacPath string) []Prerequisite {
	return []Prerequisite{
		{
			Name:           "pac",
			Path:           pacPath,
			Required:       true,
			Description:    "Power Platform CLI",
			InstallURL:     "https://aka.ms/PowerPlatformCLI",
			VersionArgs:    []string{"help"},
			VersionPattern: pacVersion,
		},
		{
			Name:        "dotnet",
			Required:    false, // Only needed to install pac as a .NET tool
			Description: ".NET SDK (optional, for installing pac)",
			InstallURL:  "https://dotnet.microsoft.com/download",
			VersionArgs: []string{"--version"},
		},
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Version      string // Version string if available
	Error        error
}

// Checker checks prerequisites through a CommandExecutor.
type Checker struct {
	exec exec.CommandExecutor
}

// NewChecker returns a Checker using executor.
func NewChecker(executor exec.CommandExecutor) *Checker {
	return &Checker{exec: executor}
}

// Check verifies that a CLI tool is available and reads its version.
func (c *Checker) Check(ctx context.Context, prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path := prereq.Path
	if path == "" {
		found, err := c.exec.LookPath(prereq.Name)
		if err != nil {
			result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
			return result
		}
		path = found
	}

	result.Found = true
	result.Path = path
	result.Version = c.version(ctx, path, prereq)
	return result
}

// CheckAll verifies all prerequisites and returns results
func (c *Checker) CheckAll(ctx context.Context, prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = c.Check(ctx, prereq)
	}
	return results
}

// ValidateRequired returns an error naming every required tool that is
// missing from results.
func ValidateRequired(results []CheckResult) error {
	var missing []string
	for _, r := range results {
		if r.Prerequisite.Required && !r.Found {
			missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
				r.Prerequisite.Name, r.Prerequisite.Description, r.Prerequisite.InstallURL))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// version runs the version command and extracts a short version string.
func (c *Checker) version(ctx context.Context, path string, prereq Prerequisite) string {
	if len(prereq.VersionArgs) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	output, err := c.exec.Output(ctx, "", path, prereq.VersionArgs...)
	if err != nil {
		return ""
	}
	return extractVersion(string(output), prereq.VersionPattern)
}

func extractVersion(output string, pattern *regexp.Regexp) string {
	var version string
	if pattern != nil {
		m := pattern.FindStringSubmatch(output)
		if len(m) < 2 {
			return ""
		}
		version = m[1]
	} else {
		first, _, _ := strings.Cut(output, "\n")
		version = strings.TrimSpace(first)
	}

	// Limit length to avoid overly long version strings
	if len(version) > 100 {
		version = version[:100] + "..."
	}
	return version
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Prerequisite.Name)
		switch {
		case r.Found && r.Version != "":
			fmt.Fprintf(&sb, " (%s)", r.Version)
		case !r.Found && r.Prerequisite.Required:
			sb.WriteString(" [REQUIRED]")
		case !r.Found:
			sb.WriteString(" [optional]")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
