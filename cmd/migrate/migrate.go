// Package migrate provides the single-pass migrate command.
package migrate

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/memberbridge/memberbridge/internal/app"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/migration"
)

// Command creates and returns the migrate command.
func Command(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run extract, relocate and load in one pass",
		Long: `Migrate takes each member through every stage before moving on to the next one,
without staging files. All connections are opened up front so an unreachable
store aborts the run before any member is processed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), appCtx)
		},
	}
}

func run(ctx context.Context, a *app.Context) error {
	source, err := a.Source(ctx)
	if err != nil {
		return err
	}
	reloc, err := a.Relocator(ctx)
	if err != nil {
		return err
	}
	loader, err := a.Loader(ctx)
	if err != nil {
		return err
	}
	metrics, err := migration.NewMetrics()
	if err != nil {
		return err
	}

	normalizer, resolver := a.Extractors(source)
	pipeline := a.Pipeline(migration.Deps{
		Source:     source,
		Normalizer: normalizer,
		Resolver:   resolver,
		Relocator:  reloc,
		Loader:     loader,
		Metrics:    metrics,
	})

	report := migration.NewReport(migration.StageMigrate)
	ctx = logger.WithTraceID(ctx, report.RunID)
	_, runErr := pipeline.Migrate(ctx, report)
	return a.Complete(report, metrics, runErr)
}
