// Package process finds and cleans up pac processes that outlived the
// pacbridge instance that started them.
package process

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/microsoft/powerplatform-vscode-sub000/exec"
	"github.com/microsoft/powerplatform-vscode-sub000/logger"
)

// nonInteractiveFlag marks pac processes started by a channel.
const nonInteractiveFlag = "--non-interactive"

// PacProcess is a running pac process in non-interactive mode.
type PacProcess struct {
	PID     int
	PPID    int // 0 when the platform does not report it
	Command string
}

// Orphaned reports whether the process was re-parented to init, which
// happens when pacbridge dies without closing its channel.
func (p PacProcess) Orphaned() bool {
	return p.PPID == 1
}

// Finder lists and kills pac processes through a CommandExecutor.
type Finder struct {
	exec exec.CommandExecutor
	goos string
}

// NewFinder returns a Finder for the current platform.
func NewFinder(executor exec.CommandExecutor) *Finder {
	return &Finder{exec: executor, goos: runtime.GOOS}
}

// Find returns every pac process running with --non-interactive.
func (f *Finder) Find(ctx context.Context) ([]PacProcess, error) {
	var (
		procs []PacProcess
		err   error
	)
	if f.goos == "windows" {
		procs, err = f.findWindows(ctx)
	} else {
		procs, err = f.findUnix(ctx)
	}
	if err != nil {
		return nil, err
	}
	logger.WithComponent("process").Debug("found pac processes", "count", len(procs))
	return procs, nil
}

func (f *Finder) findUnix(ctx context.Context) ([]PacProcess, error) {
	output, err := f.exec.Output(ctx, "", "ps", "-eo", "pid=,ppid=,args=")
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return parsePS(string(output)), nil
}

// parsePS reads "pid ppid args" lines and keeps non-interactive pac.
func parsePS(output string) []PacProcess {
	var procs []PacProcess
	for line := range strings.Lines(output) {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		if !isPacCommand(fields[2:]) {
			continue
		}
		procs = append(procs, PacProcess{
			PID:     pid,
			PPID:    ppid,
			Command: strings.Join(fields[2:], " "),
		})
	}
	return procs
}

// isPacCommand matches "pac --non-interactive" whether pac runs directly
// or through "dotnet pac.dll".
func isPacCommand(args []string) bool {
	hasPac, hasFlag := false, false
	for _, arg := range args {
		base := strings.ToLower(filepath.Base(arg))
		switch base {
		case "pac", "pac.exe", "pac.dll", "pac.launcher.exe":
			hasPac = true
		}
		if arg == nonInteractiveFlag {
			hasFlag = true
		}
	}
	return hasPac && hasFlag
}

func (f *Finder) findWindows(ctx context.Context) ([]PacProcess, error) {
	output, err := f.exec.Output(ctx, "", "tasklist", "/FI", "IMAGENAME eq pac*", "/V", "/FO", "CSV", "/NH")
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return parseTasklist(string(output)), nil
}

// parseTasklist reads tasklist CSV. tasklist reports neither the command
// line nor the parent, so every pac image is returned and none is
// considered orphaned.
func parseTasklist(output string) []PacProcess {
	r := csv.NewReader(strings.NewReader(output))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil
	}

	var procs []PacProcess
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			continue
		}
		procs = append(procs, PacProcess{PID: pid, Command: rec[0]})
	}
	return procs
}

// FindOrphaned returns the pac processes whose parent has exited, skipping
// any pid in keep.
func (f *Finder) FindOrphaned(ctx context.Context, keep map[int]bool) ([]PacProcess, error) {
	all, err := f.Find(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("process")
	var orphans []PacProcess
	for _, p := range all {
		if p.Orphaned() && !keep[p.PID] {
			orphans = append(orphans, p)
			log.Info("found orphaned pac process", "pid", p.PID)
		}
	}
	return orphans, nil
}

// Kill forcibly stops pid.
func (f *Finder) Kill(ctx context.Context, pid int) error {
	if f.goos == "windows" {
		_, err := f.exec.Output(ctx, "", "taskkill", "/F", "/PID", strconv.Itoa(pid))
		return err
	}
	_, err := f.exec.Output(ctx, "", "kill", "-9", strconv.Itoa(pid))
	return err
}

// CleanupOrphaned kills every orphaned pac process not in keep and returns
// the pids it killed.
func (f *Finder) CleanupOrphaned(ctx context.Context, keep map[int]bool) ([]int, error) {
	orphans, err := f.FindOrphaned(ctx, keep)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("process")
	var killed []int
	for _, p := range orphans {
		log.Info("killing orphaned pac process", "pid", p.PID)
		if err := f.Kill(ctx, p.PID); err != nil {
			log.Error("failed to kill process", "pid", p.PID, "error", err)
			continue
		}
		killed = append(killed, p.PID)
	}
	return killed, nil
}
