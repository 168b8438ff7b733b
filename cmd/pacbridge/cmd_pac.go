package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/microsoft/powerplatform-vscode-sub000/pac"
)

func newAuthCmd(a *app) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage pac authentication profiles",
	}

	var (
		url   string
		cloud string
		index int
		name  string
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List authentication profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.AuthList(ctx)
			})
		},
	}

	whoCmd := &cobra.Command{
		Use:   "who",
		Short: "Show the active authentication profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.AuthWho(ctx)
			})
		},
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a profile for an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.AuthCreate(ctx, url, cloud)
			})
		},
	}
	createCmd.Flags().StringVar(&url, "url", "", "environment URL")
	createCmd.Flags().StringVar(&cloud, "cloud", "", "cloud instance (e.g. Public, UsGov)")
	createCmd.MarkFlagRequired("url")

	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Make a profile active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.AuthSelectByIndex(ctx, index)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.AuthDeleteByIndex(ctx, index)
			})
		},
	}

	nameCmd := &cobra.Command{
		Use:   "name",
		Short: "Rename a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.AuthNameByIndex(ctx, index, name)
			})
		},
	}
	nameCmd.Flags().StringVar(&name, "name", "", "new profile name")
	nameCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{selectCmd, deleteCmd, nameCmd} {
		c.Flags().IntVar(&index, "index", 0, "profile index as shown by auth list")
		c.MarkFlagRequired("index")
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.AuthClear(ctx)
			})
		},
	}

	authCmd.AddCommand(listCmd, whoCmd, createCmd, selectCmd, deleteCmd, nameCmd, clearCmd)
	return authCmd
}

func newOrgCmd(a *app) *cobra.Command {
	orgCmd := &cobra.Command{
		Use:   "org",
		Short: "Work with Dataverse environments",
	}

	var url string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List environments reachable with the active profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.OrgList(ctx)
			})
		},
	}

	whoCmd := &cobra.Command{
		Use:   "who",
		Short: "Show the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.OrgWho(ctx)
			})
		},
	}

	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Make an environment active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.OrgSelect(ctx, url)
			})
		},
	}
	selectCmd.Flags().StringVar(&url, "url", "", "environment URL")
	selectCmd.MarkFlagRequired("url")

	orgCmd.AddCommand(listCmd, whoCmd, selectCmd)
	return orgCmd
}

func newSolutionCmd(a *app) *cobra.Command {
	solutionCmd := &cobra.Command{
		Use:   "solution",
		Short: "Work with solutions",
	}
	solutionCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List solutions in the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.SolutionList(ctx)
			})
		},
	})
	return solutionCmd
}

func newPagesCmd(a *app) *cobra.Command {
	pagesCmd := &cobra.Command{
		Use:   "pages",
		Short: "Work with Power Pages sites",
	}
	pagesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List Power Pages sites in the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.PagesList(ctx)
			})
		},
	})
	return pagesCmd
}

func newPcfCmd(a *app) *cobra.Command {
	pcfCmd := &cobra.Command{
		Use:   "pcf",
		Short: "Work with PCF components",
	}

	var outputDir string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a PCF component project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.PcfInit(ctx, outputDir)
			})
		},
	}
	initCmd.Flags().StringVar(&outputDir, "output-dir", ".", "directory for the new project")

	pcfCmd.AddCommand(initCmd)
	return pcfCmd
}

func newExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- <pac arguments...>",
		Short: "Run any pac command and print its raw envelope",
		Example: `  pacbridge exec -- admin list
  pacbridge exec -- solution export --name Core --path ./Core.zip`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.Raw(ctx, args...)
			})
		},
	}
}

func newOverviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show auth profiles and the active environment together",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWrapper(cmd, func(ctx context.Context, w *pac.Wrapper) (any, error) {
				return w.Overview(ctx)
			})
		},
	}
}
