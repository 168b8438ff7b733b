package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/microsoft/powerplatform-vscode-sub000/config"
	"github.com/microsoft/powerplatform-vscode-sub000/logger"
	"github.com/microsoft/powerplatform-vscode-sub000/pac"
)

// errPacFailed makes the process exit non-zero after printing a Failed
// envelope.
var errPacFailed = errors.New("pac reported failure")

// app carries the state shared by every subcommand.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	pacPath    string
	debug      bool

	cfg *config.Config

	// openExecutor is swapped in tests to avoid spawning pac.
	openExecutor func(ctx context.Context, opts ...pac.Option) (pac.Executor, func(), error)
}

func newApp(out, errOut io.Writer) *app {
	a := &app{out: out, errOut: errOut}
	a.openExecutor = a.openChannel
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pacbridge",
		Short: "Run Power Platform CLI commands over a persistent pac process",
		Long: `pacbridge keeps one pac process running in non-interactive mode and
sends it commands as JSON lines, so repeated commands skip pac's start-up cost.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default <config dir>/pacbridge.yaml)")
	flags.StringVar(&a.pacPath, "pac", "", "path to the pac executable")
	flags.BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newAuthCmd(a),
		newOrgCmd(a),
		newSolutionCmd(a),
		newPagesCmd(a),
		newPcfCmd(a),
		newExecCmd(a),
		newOverviewCmd(a),
		newCheckCmd(a),
		newCleanupCmd(a),
		newShellCmd(a),
		newConfigCmd(a),
		newLogsCmd(a),
	)

	// Report errors ourselves so a Failed envelope is not printed twice.
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\nRun '%s --help' for usage", err, cmd.CommandPath())
	})
	return root
}

// setup loads config and starts logging. Flags override the file.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.pacPath != "" {
		cfg.Pac.Executable = a.pacPath
	}
	if a.debug {
		cfg.Debug = true
	}
	a.cfg = cfg

	logger.SetDebug(cfg.Debug)
	if cfg.LogFile != "" {
		if err := logger.Init(cfg.LogFile); err != nil {
			return err
		}
	}
	logger.WithComponent("cli").Debug("config loaded", "path", cfg.FilePath())
	return nil
}

// openChannel starts pac per the loaded config.
func (a *app) openChannel(ctx context.Context, opts ...pac.Option) (pac.Executor, func(), error) {
	channelCfg, err := a.cfg.ChannelConfig()
	if err != nil {
		return nil, nil, err
	}
	ch, err := pac.Open(ctx, channelCfg, nil, opts...)
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { ch.Close() }, nil
}

// runWrapper opens pac for one operation, prints its result as JSON and
// shuts pac down again.
func (a *app) runWrapper(cmd *cobra.Command, fn func(ctx context.Context, w *pac.Wrapper) (any, error)) error {
	ctx := cmd.Context()

	exec, closeFn, err := a.openExecutor(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	w := pac.NewWrapper(exec)
	defer w.Close()

	result, err := fn(ctx, w)
	if err != nil {
		return err
	}
	if err := printJSON(a.out, result); err != nil {
		return err
	}
	if s, ok := result.(interface{ Succeeded() bool }); ok && !s.Succeeded() {
		return errPacFailed
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
