package pac

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// readBufferSize is the size of a single stdout read. Replies larger than
// this arrive as several chunks and are reassembled by LineFramer.
const readBufferSize = 32 * 1024

// ErrNotRunning is returned when writing to a process that is not running.
var ErrNotRunning = errors.New("pac process not running")

// ProcessConfig holds what is needed to launch the pac child.
type ProcessConfig struct {
	Executable string
	Args       []string
	WorkingDir string
	Env        []string // appended to the parent environment
}

// ProcessCallbacks are invoked from the process manager's goroutines.
//
// Callback Invocation Order:
// 1. OnChunk: called repeatedly, in order, as stdout produces data
// 2. OnExit: called once after stdout and stderr are drained and the
// process has been reaped
type ProcessCallbacks struct {
	// OnChunk receives each raw stdout read. The slice is not reused after
	// the call returns.
	OnChunk func(chunk []byte)

	// OnExit receives the wait error (nil for a clean exit) and the
	// captured stderr. stopped is true when the exit was requested via Stop.
	OnExit func(err error, stderrContent string, stopped bool)
}

// processManager owns one pac child process from start to reap. It is not
// restartable; Channel.Reset creates a fresh one.
type processManager struct {
	config    ProcessConfig
	callbacks ProcessCallbacks
	log       *slog.Logger
	stopGrace time.Duration

	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	stdout        io.ReadCloser
	stderr        io.ReadCloser
	stderrContent string
	running       bool
	stopped       bool

	// Writes are queued and performed by writeLoop so that a child which
	// stops reading stdin cannot hold pm.mu. writeMu guards writeQ and
	// writeClosed only; it is never held across a Write.
	writeMu     sync.Mutex
	writeQ      []writeRequest
	writeClosed bool
	writeWake   chan struct{} // capacity 1
	writerQuit  chan struct{} // closed by monitorExit

	stdoutDone chan struct{}
	stderrDone chan struct{}
	// waitDone is closed by monitorExit once cmd.Wait returns. Stop selects
	// on it instead of calling cmd.Wait a second time.
	waitDone chan struct{}

	wg sync.WaitGroup
}

// writeRequest is one queued stdin line. done receives the write result.
type writeRequest struct {
	data []byte
	done chan error // capacity 1
}

func newProcessManager(config ProcessConfig, callbacks ProcessCallbacks, stopGrace time.Duration, log *slog.Logger) *processManager {
	return &processManager{
		config:    config,
		callbacks: callbacks,
		log:       log,
		stopGrace: stopGrace,
	}
}

// Start launches the child and the goroutines that service its pipes.
func (pm *processManager) Start() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.running {
		return nil
	}
	if pm.cmd != nil {
		return fmt.Errorf("pac process already used")
	}

	startTime := time.Now()
	pm.log.Debug("starting process", "command", pm.config.Executable+" "+strings.Join(pm.config.Args, " "), "dir", pm.config.WorkingDir)

	cmd := exec.Command(pm.config.Executable, pm.config.Args...)
	cmd.Dir = pm.config.WorkingDir
	cmd.Env = append(os.Environ(), pm.config.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		pm.log.Error("failed to start process", "error", err)
		return fmt.Errorf("failed to start pac: %w", err)
	}

	pm.cmd = cmd
	pm.stdin = stdin
	pm.stdout = stdout
	pm.stderr = stderr
	pm.running = true
	pm.stdoutDone = make(chan struct{})
	pm.stderrDone = make(chan struct{})
	pm.waitDone = make(chan struct{})
	pm.writeWake = make(chan struct{}, 1)
	pm.writerQuit = make(chan struct{})

	pm.log.Info("process started", "elapsed", time.Since(startTime), "pid", cmd.Process.Pid)

	pm.wg.Add(4)
	go func() {
		defer pm.wg.Done()
		pm.writeLoop(stdin)
	}()
	go func() {
		defer pm.wg.Done()
		pm.readOutput()
	}()
	go func() {
		defer pm.wg.Done()
		pm.drainStderr()
	}()
	go func() {
		defer pm.wg.Done()
		pm.monitorExit()
	}()

	return nil
}

// QueueLine queues data for stdin and returns without blocking. Lines are
// written in the order they were queued. The returned channel receives the
// write result, or ErrNotRunning when the process is gone or stopping.
func (pm *processManager) QueueLine(data []byte) <-chan error {
	done := make(chan error, 1)

	pm.mu.Lock()
	accepting := pm.running && !pm.stopped
	pm.mu.Unlock()
	if !accepting {
		done <- ErrNotRunning
		return done
	}

	pm.writeMu.Lock()
	if pm.writeClosed {
		pm.writeMu.Unlock()
		done <- ErrNotRunning
		return done
	}
	pm.writeQ = append(pm.writeQ, writeRequest{data: data, done: done})
	pm.writeMu.Unlock()

	select {
	case pm.writeWake <- struct{}{}:
	default:
	}
	return done
}

// WriteLine writes one request line to stdin and waits for the write.
func (pm *processManager) WriteLine(data []byte) error {
	return <-pm.QueueLine(data)
}

// writeLoop is the only goroutine that writes to stdin. A write blocked on
// a child that is not reading is released when Stop closes stdin or the
// child is killed.
func (pm *processManager) writeLoop(stdin io.Writer) {
	for {
		select {
		case <-pm.writeWake:
		case <-pm.writerQuit:
			pm.failQueuedWrites()
			return
		}

		for {
			pm.writeMu.Lock()
			if len(pm.writeQ) == 0 {
				pm.writeMu.Unlock()
				break
			}
			req := pm.writeQ[0]
			pm.writeQ[0] = writeRequest{}
			pm.writeQ = pm.writeQ[1:]
			pm.writeMu.Unlock()

			_, err := stdin.Write(req.data)
			if err != nil {
				err = fmt.Errorf("failed to write to pac: %w", err)
			}
			req.done <- err
		}
	}
}

func (pm *processManager) failQueuedWrites() {
	pm.writeMu.Lock()
	pending := pm.writeQ
	pm.writeQ = nil
	pm.writeClosed = true
	pm.writeMu.Unlock()

	for _, req := range pending {
		req.done <- ErrNotRunning
	}
}

// Stop closes stdin, waits up to stopGrace for the child to exit, then
// kills it. It returns after every goroutine has finished. Safe to call
// multiple times.
//
// A write in progress is interrupted: closing stdin fails it, and queued
// lines that were not written yet fail with ErrNotRunning.
func (pm *processManager) Stop() {
	pm.mu.Lock()
	if pm.cmd == nil {
		pm.mu.Unlock()
		return
	}
	pm.stopped = true
	if pm.stdin != nil {
		pm.stdin.Close()
		pm.stdin = nil
	}
	cmd := pm.cmd
	waitDone := pm.waitDone
	pm.mu.Unlock()

	select {
	case <-waitDone:
		pm.log.Debug("process exited gracefully")
	case <-time.After(pm.stopGrace):
		pm.log.Debug("force killing process", "grace", pm.stopGrace)
		cmd.Process.Kill()
		<-waitDone
	}

	pm.wg.Wait()
}

// IsRunning reports whether the child has been started and not yet reaped.
func (pm *processManager) IsRunning() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.running
}

// Pid returns the child's process id, or 0 if it never started.
func (pm *processManager) Pid() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.cmd == nil || pm.cmd.Process == nil {
		return 0
	}
	return pm.cmd.Process.Pid
}

// readOutput forwards raw stdout chunks until EOF.
func (pm *processManager) readOutput() {
	defer close(pm.stdoutDone)
	pm.log.Debug("output reader started")

	buf := make([]byte, readBufferSize)
	for {
		n, err := pm.stdout.Read(buf)
		if n > 0 && pm.callbacks.OnChunk != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			pm.callbacks.OnChunk(chunk)
		}
		if err != nil {
			if err == io.EOF {
				pm.log.Debug("EOF on stdout - process exited")
			} else {
				pm.log.Debug("error reading stdout", "error", err)
			}
			return
		}
	}
}

// drainStderr captures stderr so it can be reported when the child exits.
func (pm *processManager) drainStderr() {
	defer close(pm.stderrDone)

	data, err := io.ReadAll(pm.stderr)
	if err != nil {
		pm.log.Debug("error reading stderr", "error", err)
	}
	if len(data) > 0 {
		content := strings.TrimSpace(string(data))
		pm.mu.Lock()
		pm.stderrContent = content
		pm.mu.Unlock()
		pm.log.Debug("captured stderr", "content", content)
	}
}

// monitorExit is the sole caller of cmd.Wait. It waits for both pipes to
// drain first, since Wait closes them.
func (pm *processManager) monitorExit() {
	<-pm.stdoutDone
	<-pm.stderrDone

	err := pm.cmd.Wait()
	pm.log.Debug("process exited", "error", err)

	pm.mu.Lock()
	pm.running = false
	if pm.stdin != nil {
		pm.stdin.Close()
		pm.stdin = nil
	}
	stderrContent := pm.stderrContent
	stopped := pm.stopped
	pm.mu.Unlock()

	close(pm.writerQuit)
	close(pm.waitDone)

	if pm.callbacks.OnExit != nil {
		pm.callbacks.OnExit(err, stderrContent, stopped)
	}
}
