// Package relocate provides the relocate stage command.
package relocate

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/memberbridge/memberbridge/internal/app"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/migration"
)

// Command creates and returns the relocate command.
func Command(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "relocate",
		Short: "Copy profile images and résumés to the object store",
		Long: `Relocate reads <staging_dir>/extracted.json, copies every resolvable asset from the
legacy origin to the configured object store and writes
<staging_dir>/relocated.json for the load stage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), appCtx)
		},
	}
}

func run(ctx context.Context, a *app.Context) error {
	items, err := migration.ReadStaging(a.Settings.Pipeline.StagingDir, migration.ExtractedFile)
	if err != nil {
		return migration.Fatal(migration.StageRelocate, err)
	}
	reloc, err := a.Relocator(ctx)
	if err != nil {
		return err
	}
	metrics, err := migration.NewMetrics()
	if err != nil {
		return err
	}

	pipeline := a.Pipeline(migration.Deps{Relocator: reloc, Metrics: metrics})
	report := migration.NewReport(migration.StageRelocate)
	ctx = logger.WithTraceID(ctx, report.RunID)
	runErr := pipeline.Relocate(ctx, items, report)

	path, err := migration.WriteStaging(a.Settings.Pipeline.StagingDir, migration.RelocatedFile, report.RunID, migration.StageRelocate, items)
	if err != nil {
		runErr = errors.Join(runErr, err)
	} else {
		a.Log.Info("staging file written", logger.String("path", path), logger.Int("members", len(items)))
	}
	return a.Complete(report, metrics, runErr)
}
