package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/shell"

	"github.com/microsoft/powerplatform-vscode-sub000/logger"
	"github.com/microsoft/powerplatform-vscode-sub000/pac"
)

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

const shellHelp = `Type pac arguments as you would after "pac", e.g.

  auth list
  org select --environment https://contoso.crm.dynamics.com/
  solution list

Built-ins:
  overview      auth profiles and active environment
  status        channel id, pid and readiness
  reset         restart the pac process
  cache clear   drop cached replies
  help          this text
  exit, quit    leave the shell
`

// channelControl is the part of *pac.Channel the shell manages directly.
type channelControl interface {
	Reset(ctx context.Context) error
	Ready() bool
	Pid() int
	ID() string
}

// shellSession executes one line at a time against a wrapper.
type shellSession struct {
	w   *pac.Wrapper
	ch  channelControl
	out io.Writer
	log *slog.Logger
}

// exec runs one input line. It returns errQuit when the user leaves.
func (s *shellSession) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	tokens, err := shell.Fields(line, os.Getenv)
	if err != nil {
		return fmt.Errorf("cannot parse input: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	switch strings.Join(tokens, " ") {
	case "exit", "quit":
		return errQuit
	case "help":
		fmt.Fprint(s.out, shellHelp)
		return nil
	case "cache clear":
		s.w.InvalidateCache()
		fmt.Fprintln(s.out, "cache cleared")
		return nil
	case "overview":
		ov, err := s.w.Overview(ctx)
		if err != nil {
			return err
		}
		return printJSON(s.out, ov)
	case "status":
		if s.ch == nil {
			fmt.Fprintln(s.out, "no pac channel")
			return nil
		}
		fmt.Fprintf(s.out, "channel %s pid %d ready %t\n", s.ch.ID(), s.ch.Pid(), s.ch.Ready())
		return nil
	case "reset":
		if s.ch == nil {
			return errors.New("no pac channel to reset")
		}
		if err := s.ch.Reset(ctx); err != nil {
			return err
		}
		s.w.InvalidateCache()
		fmt.Fprintf(s.out, "pac restarted (pid %d)\n", s.ch.Pid())
		return nil
	}

	s.log.Debug("shell command", "verb", pac.NewCommand(tokens...).Verb())
	out, err := s.w.Raw(ctx, tokens...)
	if err != nil {
		return err
	}
	return printJSON(s.out, out)
}

// completer offers the pac verbs the wrapper knows about.
func completer() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("auth",
			readline.PcItem("list"), readline.PcItem("who"), readline.PcItem("create"),
			readline.PcItem("select"), readline.PcItem("delete"), readline.PcItem("name"),
			readline.PcItem("clear"),
		),
		readline.PcItem("org",
			readline.PcItem("list"), readline.PcItem("who"), readline.PcItem("select"),
		),
		readline.PcItem("solution", readline.PcItem("list")),
		readline.PcItem("pages", readline.PcItem("list")),
		readline.PcItem("pcf", readline.PcItem("init")),
		readline.PcItem("overview"),
		readline.PcItem("status"),
		readline.PcItem("reset"),
		readline.PcItem("cache", readline.PcItem("clear")),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// newMetricsHandler exposes reg plus Go runtime and process collectors.
func newMetricsHandler(reg *prometheus.Registry) http.Handler {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func newShellCmd(a *app) *cobra.Command {
	var metricsAddr string

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive prompt over a single long-lived pac process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			return a.runShell(cmd.Context(), metricsAddr)
		},
	}
	shellCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	return shellCmd
}

func (a *app) runShell(ctx context.Context, metricsAddr string) error {
	log := logger.WithComponent("shell")

	reg := prometheus.NewRegistry()
	metrics := pac.NewMetrics(reg)

	exec, closeFn, err := a.openExecutor(ctx, pac.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer closeFn()

	w := pac.NewWrapper(exec, pac.WithCacheTTL(a.cfg.Cache.TTL.Duration))
	defer w.Close()

	ch, _ := exec.(*pac.Channel)
	session := &shellSession{w: w, out: a.out, log: log}
	if ch != nil {
		session.ch = ch
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           newMetricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		fmt.Fprintf(a.errOut, "metrics on http://%s/metrics\n", metricsAddr)
	}

	if ch != nil && a.cfg.Pac.WatchExecutable {
		channelCfg, err := a.cfg.ChannelConfig()
		if err == nil {
			watcher := pac.NewExecutableWatcher(channelCfg.Executable, ch, log)
			watcher.OnReset = func(error) { w.InvalidateCache() }
			go func() {
				if err := watcher.Run(ctx); err != nil {
					log.Warn("executable watcher stopped", "error", err)
				}
			}()
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pac> ",
		HistoryFile:     historyFile(),
		HistoryLimit:    1000,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          a.out,
		Stderr:          a.errOut,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := session.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintln(a.errOut, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// historyFile keeps shell history next to the logs.
func historyFile() string {
	path, err := logger.DefaultLogPath()
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(path, ".log") + ".history"
}
