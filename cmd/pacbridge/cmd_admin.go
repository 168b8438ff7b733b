package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/microsoft/powerplatform-vscode-sub000/cli"
	"github.com/microsoft/powerplatform-vscode-sub000/config"
	"github.com/microsoft/powerplatform-vscode-sub000/exec"
	"github.com/microsoft/powerplatform-vscode-sub000/logger"
	"github.com/microsoft/powerplatform-vscode-sub000/process"
)

// newChecker is swapped in tests.
var newChecker = func() *cli.Checker {
	return cli.NewChecker(exec.NewRealExecutor())
}

// newFinder is swapped in tests.
var newFinder = func() *process.Finder {
	return process.NewFinder(exec.NewRealExecutor())
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that pac and its optional tooling are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// An unresolvable pac is reported by the check itself.
			pacPath, _ := a.cfg.ResolveExecutable()

			results := newChecker().CheckAll(cmd.Context(), cli.DefaultPrerequisites(pacPath))
			fmt.Fprint(a.out, cli.FormatCheckResults(results))
			return cli.ValidateRequired(results)
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the pacbridge config file",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "# %s\n", a.cfg.FilePath())
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.FilePath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := config.Default()
			cfg.SetFilePath(path)
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(showCmd, initCmd)
	return configCmd
}

func newLogsCmd(a *app) *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Manage pacbridge log files",
	}

	logsCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the log file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.LogFile
			if path == "" {
				var err error
				if path, err = logger.DefaultLogPath(); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, path)
			return nil
		},
	}, &cobra.Command{
		Use:   "clear",
		Short: "Delete pacbridge log files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Close()
			n, err := logger.ClearLogs()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %d log file(s)\n", n)
			return nil
		},
	})
	return logsCmd
}

func newCleanupCmd(a *app) *cobra.Command {
	var dryRun bool

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Kill pac processes left behind by a pacbridge that exited uncleanly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			finder := newFinder()
			if dryRun {
				orphans, err := finder.FindOrphaned(cmd.Context(), nil)
				if err != nil {
					return err
				}
				for _, p := range orphans {
					fmt.Fprintf(a.out, "%d\t%s\n", p.PID, p.Command)
				}
				fmt.Fprintf(a.out, "%d orphaned pac process(es)\n", len(orphans))
				return nil
			}

			killed, err := finder.CleanupOrphaned(cmd.Context(), nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "killed %d orphaned pac process(es)\n", len(killed))
			return nil
		},
	}
	cleanupCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphans without killing them")
	return cleanupCmd
}
