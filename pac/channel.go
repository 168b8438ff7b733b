package pac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/microsoft/powerplatform-vscode-sub000/handoff"
	"github.com/microsoft/powerplatform-vscode-sub000/logger"
)

// AutomationAgentEnv tells pac which host is driving it.
const AutomationAgentEnv = "PP_TOOLS_AUTOMATION_AGENT"

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultCommandTimeout   = 5 * time.Minute
	DefaultStopGrace        = 2 * time.Second
)

var (
	// ErrChannelClosed is returned by commands issued after Exit or Close,
	// and to callers still waiting when the channel shuts down.
	ErrChannelClosed = errors.New("pac channel closed")

	// ErrHandshakeFailed wraps the reason pac's startup reply was missing,
	// malformed, or not Success.
	ErrHandshakeFailed = errors.New("pac handshake failed")

	// ErrProcessExited matches any *ExitError via errors.Is.
	ErrProcessExited = errors.New("pac process exited")
)

// ExitError reports that the pac process went away while the channel was
// in use.
type ExitError struct {
	Err    error  // wait error; nil for exit status 0
	Stderr string // captured stderr, trimmed
}

func (e *ExitError) Error() string {
	msg := "pac process exited"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (stderr: " + e.Stderr + ")"
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

func (e *ExitError) Is(target error) bool { return target == ErrProcessExited }

// Config describes how to launch pac and how long to wait on it.
type Config struct {
	Executable      string   // path to the pac binary
	Args            []string // defaults to [NonInteractiveFlag]
	WorkingDir      string   // tool install directory
	AutomationAgent string   // exported as PP_TOOLS_AUTOMATION_AGENT when set
	Env             []string // extra KEY=VALUE pairs

	HandshakeTimeout time.Duration // defaults to DefaultHandshakeTimeout
	CommandTimeout   time.Duration // defaults to DefaultCommandTimeout; negative disables
	StopGrace        time.Duration // defaults to DefaultStopGrace
}

func (c Config) withDefaults() Config {
	if len(c.Args) == 0 {
		c.Args = []string{NonInteractiveFlag}
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	return c
}

func (c Config) processConfig() ProcessConfig {
	env := append([]string(nil), c.Env...)
	if c.AutomationAgent != "" {
		env = append(env, AutomationAgentEnv+"="+c.AutomationAgent)
	}
	return ProcessConfig{
		Executable: c.Executable,
		Args:       c.Args,
		WorkingDir: c.WorkingDir,
		Env:        env,
	}
}

// Option configures a Channel.
type Option func(*Channel)

// WithMetrics records channel activity on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// conn is one pac process together with the queue its replies feed.
type conn struct {
	proc    *processManager
	queue   *handoff.Queue[string]
	framer  LineFramer
	exiting atomic.Bool
}

// Channel multiplexes many callers over one persistent pac process.
//
// Each ExecuteCommand queues its request line and claims the next reply
// slot under c.mu, so replies pair with requests in write order even when
// callers run concurrently. The write itself happens outside the lock. The
// channel relies on pac answering every command exactly once, in order.
type Channel struct {
	id      string
	config  Config
	log     *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	cur    *conn
	closed bool
	// resetting is non-nil while Reset swaps processes and is closed when
	// it finishes. c.mu is not held during the swap.
	resetting chan struct{}
}

// Open starts pac and waits for its startup handshake. On any failure the
// process is stopped before Open returns.
func Open(ctx context.Context, config Config, log *slog.Logger, opts ...Option) (*Channel, error) {
	if config.Executable == "" {
		return nil, errors.New("pac executable not configured")
	}
	if log == nil {
		log = logger.WithComponent("pac")
	}

	c := &Channel{
		id:     uuid.NewString(),
		config: config.withDefaults(),
	}
	c.log = log.With("channelID", c.id)
	for _, opt := range opts {
		opt(c)
	}

	cn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.cur = cn
	return c, nil
}

// connect launches a process and consumes its handshake.
func (c *Channel) connect(ctx context.Context) (*conn, error) {
	cn := &conn{}
	cn.queue = handoff.New(handoff.WithDiscardHook(func(line string) {
		c.log.Warn("dropping pac reply with no waiting caller", "reply", truncate(line, 200))
		c.metrics.replyDiscarded()
	}))
	cn.proc = newProcessManager(c.config.processConfig(), ProcessCallbacks{
		OnChunk: func(chunk []byte) {
			for _, line := range cn.framer.Feed(chunk) {
				cn.queue.Enqueue(line)
			}
		},
		OnExit: func(err error, stderrContent string, stopped bool) {
			c.handleExit(cn, err, stderrContent, stopped)
		},
	}, c.config.StopGrace, c.log)

	// The banner must take the first slot, ahead of any command.
	handshake := cn.queue.Reserve()

	if err := cn.proc.Start(); err != nil {
		cn.queue.Close(err)
		c.metrics.handshake(err)
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
	defer cancel()

	err := checkHandshake(handshake.Wait(hctx))
	c.metrics.handshake(err)
	if err != nil {
		c.log.Error("pac handshake failed", "error", err)
		cn.exiting.Store(true)
		cn.proc.Stop()
		cn.queue.Close(ErrChannelClosed)
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	c.log.Info("pac ready", "pid", cn.proc.Pid())
	return cn, nil
}

func checkHandshake(line string, err error) error {
	if err != nil {
		return err
	}
	out, err := ParseOutput[json.RawMessage](line)
	if err != nil {
		return err
	}
	return out.Err()
}

// handleExit fails every waiting caller once the process is gone.
func (c *Channel) handleExit(cn *conn, err error, stderrContent string, stopped bool) {
	if partial := cn.framer.Partial(); partial != "" {
		c.log.Warn("pac exited with an incomplete reply buffered", "partial", truncate(partial, 200))
	}

	if stopped || cn.exiting.Load() {
		c.log.Debug("pac process exited after shutdown", "error", err)
		cn.queue.Close(ErrChannelClosed)
		return
	}

	c.log.Error("pac process exited unexpectedly", "error", err, "stderr", stderrContent)
	c.metrics.processExited()
	cn.queue.Close(&ExitError{Err: err, Stderr: stderrContent})
}

// ExecuteCommand sends cmd to pac and returns its raw reply line.
//
// The whole call, including the stdin write and any wait for a Reset in
// progress, is bounded by ctx and Config.CommandTimeout. A caller that
// stops waiting keeps its reply slot; the late reply is discarded so it
// cannot be mistaken for the answer to a later command.
func (c *Channel) ExecuteCommand(ctx context.Context, cmd Command) (string, error) {
	data, err := cmd.encodeLine()
	if err != nil {
		return "", fmt.Errorf("failed to encode command: %w", err)
	}

	verb := cmd.Verb()
	start := time.Now()

	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	cn, err := c.lockCurrent(ctx)
	if err != nil {
		c.metrics.observe(verb, time.Since(start), err)
		return "", fmt.Errorf("pac %s: %w", verb, err)
	}
	written := cn.proc.QueueLine(data)
	ticket := cn.queue.Reserve()
	c.mu.Unlock()

	c.metrics.commandStarted()

	select {
	case err := <-written:
		if err != nil {
			err = c.abandon(cn, err)
			c.metrics.commandFinished(verb, time.Since(start), err)
			c.log.Warn("pac command not sent", "command", cmd.String(), "error", err)
			return "", fmt.Errorf("pac %s: %w", verb, err)
		}
	case <-ctx.Done():
		// The line stays queued and its slot claimed; Wait below returns
		// ctx.Err() and abandons the slot. A write that fails later still
		// has to take the process down.
		go func() {
			if err := <-written; err != nil {
				c.abandon(cn, err)
			}
		}()
	}

	line, err := ticket.Wait(ctx)
	c.metrics.commandFinished(verb, time.Since(start), err)
	if err != nil {
		c.log.Warn("pac command failed", "command", cmd.String(), "error", err)
		return "", fmt.Errorf("pac %s: %w", verb, err)
	}

	c.log.Debug("pac reply", "command", cmd.String(), "elapsed", time.Since(start))
	return line, nil
}

// lockCurrent waits out any Reset in progress and returns the live
// connection with c.mu held. On error c.mu is not held.
func (c *Channel) lockCurrent(ctx context.Context) (*conn, error) {
	c.mu.Lock()
	for c.resetting != nil && !c.closed {
		wait := c.resetting
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
	}

	cn := c.cur
	if c.closed || cn == nil || cn.exiting.Load() {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	return cn, nil
}

// abandon handles a request line that never reached pac. Its reply slot is
// already claimed, so the process can no longer pair replies and is
// killed; the exit reason, when known, replaces the write error.
func (c *Channel) abandon(cn *conn, err error) error {
	if qerr := cn.queue.Err(); qerr != nil {
		return qerr
	}
	if cn.exiting.CompareAndSwap(false, true) {
		c.log.Error("stdin write failed, stopping pac", "error", err)
		go cn.proc.Stop()
	}
	return err
}

// Exit asks pac to terminate without waiting for it. Later commands fail
// with ErrChannelClosed until Reset.
func (c *Channel) Exit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cn := c.cur
	if c.closed || cn == nil {
		return ErrChannelClosed
	}
	sendExit(cn)
	return nil
}

// sendExit queues the exit command once. It does not wait for the write,
// which may never complete if pac stopped reading stdin.
func sendExit(cn *conn) {
	if !cn.exiting.CompareAndSwap(false, true) {
		return
	}
	data, err := exitCommand.encodeLine()
	if err != nil {
		return
	}
	cn.proc.QueueLine(data)
}

// shutdown sends exit, then stops the process and releases any waiters.
func (c *Channel) shutdown(cn *conn) {
	sendExit(cn)
	cn.proc.Stop()
	cn.queue.Close(ErrChannelClosed)
}

// Close shuts pac down and waits for it to be reaped, at most StopGrace
// plus the time to kill it. Pending callers fail with ErrChannelClosed and
// a stdin write in progress is interrupted. Safe to call multiple times.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cn := c.cur
	c.cur = nil
	c.mu.Unlock()

	if cn != nil {
		c.shutdown(cn)
	}
	c.log.Info("pac channel closed")
	return nil
}

// Reset replaces the pac process with a fresh one, e.g. after the CLI was
// updated on disk. Commands issued meanwhile wait for the new process,
// bounded by their own context. If the new process fails to start the
// channel stays empty and commands fail with ErrChannelClosed until a
// later Reset succeeds.
func (c *Channel) Reset(ctx context.Context) error {
	c.mu.Lock()
	for c.resetting != nil && !c.closed {
		wait := c.resetting
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	done := make(chan struct{})
	c.resetting = done
	old := c.cur
	c.cur = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.resetting = nil
		c.mu.Unlock()
		close(done)
	}()

	if old != nil {
		c.shutdown(old)
	}

	cn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.shutdown(cn)
		return ErrChannelClosed
	}
	c.cur = cn
	c.mu.Unlock()

	c.log.Info("pac channel reset")
	return nil
}

// ID returns the channel's instance id, attached to all of its log lines.
func (c *Channel) ID() string {
	return c.id
}

// Ready reports whether a live pac process is accepting commands.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.cur != nil && !c.cur.exiting.Load() && c.cur.proc.IsRunning()
}

// Pid returns the current pac process id, or 0 when there is none.
func (c *Channel) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return 0
	}
	return c.cur.proc.Pid()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
