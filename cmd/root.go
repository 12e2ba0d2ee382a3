// Package cmd builds the memberbridge command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/memberbridge/memberbridge/cmd/extract"
	"github.com/memberbridge/memberbridge/cmd/load"
	"github.com/memberbridge/memberbridge/cmd/migrate"
	"github.com/memberbridge/memberbridge/cmd/relocate"
	"github.com/memberbridge/memberbridge/internal/app"
)

// RootCommand creates and returns the root command. appCtx is filled in
// before any subcommand runs.
func RootCommand(appCtx *app.Context) *cobra.Command {
	var (
		configPath string
		debug      bool
		ids        []int64
	)

	rootCmd := &cobra.Command{
		Use:           "memberbridge",
		Short:         "Migrate association members from the legacy site to the managed store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().Int64SliceVar(&ids, "ids", nil, "Restrict the run to these legacy member ids (comma separated)")

	rootCmd.AddCommand(
		extract.Command(appCtx),
		relocate.Command(appCtx),
		load.Command(appCtx),
		migrate.Command(appCtx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := appCtx.Init(configPath, debug); err != nil {
			return err
		}
		if cmd.Flags().Changed("ids") {
			appCtx.Settings.Pipeline.IDs = ids
		}
		return nil
	}

	return rootCmd
}
