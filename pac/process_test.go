package pac

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// pmTestLogger creates a discard logger for process manager tests
func pmTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func helperProcessConfig(t *testing.T, mode string) ProcessConfig {
	t.Helper()
	return Config{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestHelperPac$", "--", NonInteractiveFlag},
		Env:        []string{"GO_WANT_HELPER_PAC=1", "PAC_HELPER_MODE=" + mode},
	}.processConfig()
}

type exitResult struct {
	err     error
	stderr  string
	stopped bool
}

// recorder collects callback output for assertions.
type recorder struct {
	mu     sync.Mutex
	out    strings.Builder
	exited chan exitResult
}

func newRecorder() *recorder {
	return &recorder{exited: make(chan exitResult, 1)}
}

func (r *recorder) callbacks() ProcessCallbacks {
	return ProcessCallbacks{
		OnChunk: func(chunk []byte) {
			r.mu.Lock()
			r.out.Write(chunk)
			r.mu.Unlock()
		},
		OnExit: func(err error, stderrContent string, stopped bool) {
			r.exited <- exitResult{err: err, stderr: stderrContent, stopped: stopped}
		},
	}
}

func (r *recorder) output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.String()
}

func (r *recorder) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(r.output(), substr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q, got %q", substr, r.output())
}

func TestProcessManager_NotStarted(t *testing.T) {
	pm := newProcessManager(ProcessConfig{Executable: "pac"}, ProcessCallbacks{}, time.Second, pmTestLogger())

	if pm.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	if pm.Pid() != 0 {
		t.Errorf("Pid() = %d before Start", pm.Pid())
	}
	if err := pm.WriteLine([]byte("x\n")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("WriteLine() error = %v, want ErrNotRunning", err)
	}

	// Stop on a never-started manager must not block.
	done := make(chan struct{})
	go func() {
		pm.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Stop() blocked on a never-started process")
	}
}

func TestProcessManager_StartFailure(t *testing.T) {
	pm := newProcessManager(ProcessConfig{Executable: "/nonexistent/pac"}, ProcessCallbacks{}, time.Second, pmTestLogger())

	if err := pm.Start(); err == nil {
		t.Fatal("Start() should fail for a missing binary")
	}
	if pm.IsRunning() {
		t.Error("IsRunning() = true after failed Start")
	}
}

func TestProcessManager_WriteAndStop(t *testing.T) {
	rec := newRecorder()
	pm := newProcessManager(helperProcessConfig(t, "echo"), rec.callbacks(), 2*time.Second, pmTestLogger())

	if err := pm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !pm.IsRunning() || pm.Pid() == 0 {
		t.Fatal("process should be running with a pid")
	}
	if err := pm.Start(); err != nil {
		t.Errorf("second Start() while running error = %v", err)
	}

	rec.waitFor(t, `{"Status":"Success"}`)

	data, _ := NewCommand("hello").encodeLine()
	if err := pm.WriteLine(data); err != nil {
		t.Fatalf("WriteLine() error = %v", err)
	}
	rec.waitFor(t, `"Results":["hello"]`)

	pm.Stop()

	select {
	case res := <-rec.exited:
		if !res.stopped {
			t.Error("OnExit stopped = false after Stop")
		}
		if res.err != nil {
			t.Errorf("OnExit err = %v, want clean exit on stdin EOF", res.err)
		}
	default:
		t.Fatal("OnExit not called before Stop returned")
	}

	if pm.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := pm.WriteLine(data); !errors.Is(err, ErrNotRunning) {
		t.Errorf("WriteLine() after Stop error = %v, want ErrNotRunning", err)
	}
	if err := pm.Start(); err == nil {
		t.Error("Start() after Stop should fail; managers are single use")
	}

	pm.Stop()
}

func TestProcessManager_UnexpectedExit(t *testing.T) {
	rec := newRecorder()
	pm := newProcessManager(helperProcessConfig(t, "echo"), rec.callbacks(), 2*time.Second, pmTestLogger())

	if err := pm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pm.Stop()

	data, _ := NewCommand("crash").encodeLine()
	if err := pm.WriteLine(data); err != nil {
		t.Fatalf("WriteLine() error = %v", err)
	}

	select {
	case res := <-rec.exited:
		if res.stopped {
			t.Error("OnExit stopped = true for a crash")
		}
		if res.err == nil {
			t.Error("OnExit err = nil, want non-zero exit status")
		}
		if res.stderr != "fatal: boom" {
			t.Errorf("OnExit stderr = %q, want %q", res.stderr, "fatal: boom")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit not called after crash")
	}
}

func TestProcessManager_StopKillsUnresponsiveChild(t *testing.T) {
	rec := newRecorder()
	pm := newProcessManager(helperProcessConfig(t, "echo"), rec.callbacks(), 100*time.Millisecond, pmTestLogger())

	if err := pm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.waitFor(t, `{"Status":"Success"}`)

	// Keep the child busy so it does not notice stdin closing.
	data, _ := NewCommand("slow", "30s").encodeLine()
	if err := pm.WriteLine(data); err != nil {
		t.Fatalf("WriteLine() error = %v", err)
	}

	start := time.Now()
	pm.Stop()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop() took %v, want it to kill after the grace period", elapsed)
	}

	res := <-rec.exited
	if !res.stopped {
		t.Error("OnExit stopped = false after Stop")
	}
}

func TestProcessManager_StopInterruptsBlockedWrite(t *testing.T) {
	rec := newRecorder()
	pm := newProcessManager(helperProcessConfig(t, "deaf"), rec.callbacks(), 200*time.Millisecond, pmTestLogger())
	if err := pm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.waitFor(t, `"Success"`)

	big := append([]byte(strings.Repeat("x", 4<<20)), '\n')
	written := pm.QueueLine(big)
	queued := pm.QueueLine([]byte("{}\n"))

	select {
	case err := <-written:
		t.Fatalf("write to a child that never reads finished early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	status := make(chan struct{})
	go func() {
		pm.IsRunning()
		pm.Pid()
		close(status)
	}()
	select {
	case <-status:
	case <-time.After(time.Second):
		t.Fatal("IsRunning/Pid blocked behind a stdin write")
	}

	stopped := make(chan struct{})
	go func() {
		pm.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() blocked behind a stdin write")
	}

	if err := <-written; err == nil {
		t.Error("interrupted write reported success")
	}
	if err := <-queued; err == nil {
		t.Error("queued write after an interrupted one reported success")
	}
	if err := pm.WriteLine([]byte("{}\n")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("WriteLine() after Stop error = %v, want ErrNotRunning", err)
	}
}
