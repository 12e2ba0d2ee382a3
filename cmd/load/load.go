// Package load provides the load stage command.
package load

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/memberbridge/memberbridge/internal/app"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/migration"
)

// Command creates and returns the load command.
func Command(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Write relocated members to the destination store",
		Long: `Load reads <staging_dir>/relocated.json and inserts every member together with its
asset provenance rows. Members already present are counted as duplicates and
their provenance rows are repaired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), appCtx)
		},
	}
}

func run(ctx context.Context, a *app.Context) error {
	items, err := migration.ReadStaging(a.Settings.Pipeline.StagingDir, migration.RelocatedFile)
	if err != nil {
		return migration.Fatal(migration.StageLoad, err)
	}
	loader, err := a.Loader(ctx)
	if err != nil {
		return err
	}
	metrics, err := migration.NewMetrics()
	if err != nil {
		return err
	}

	pipeline := a.Pipeline(migration.Deps{Loader: loader, Metrics: metrics})
	report := migration.NewReport(migration.StageLoad)
	ctx = logger.WithTraceID(ctx, report.RunID)
	return a.Complete(report, metrics, pipeline.Load(ctx, items, report))
}
