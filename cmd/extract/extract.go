// Package extract provides the extract stage command.
package extract

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/memberbridge/memberbridge/internal/app"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/migration"
)

// Command creates and returns the extract command.
func Command(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Read, normalize and resolve legacy members into the staging directory",
		Long: `Extract reads every eligible member from the legacy store, normalizes its metadata,
resolves its profile image and résumé references and writes the result to
<staging_dir>/extracted.json for the relocate stage.`,
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
	metrics, err := migration.NewMetrics()
	if err != nil {
		return err
	}

	normalizer, resolver := a.Extractors(source)
	pipeline := a.Pipeline(migration.Deps{
		Source:     source,
		Normalizer: normalizer,
		Resolver:   resolver,
		Metrics:    metrics,
	})

	report := migration.NewReport(migration.StageExtract)
	ctx = logger.WithTraceID(ctx, report.RunID)
	items, runErr := pipeline.Extract(ctx, report)
	if !migration.IsFatal(runErr) {
		path, err := migration.WriteStaging(a.Settings.Pipeline.StagingDir, migration.ExtractedFile, report.RunID, migration.StageExtract, items)
		if err != nil {
			runErr = errors.Join(runErr, err)
		} else {
			a.Log.Info("staging file written", logger.String("path", path), logger.Int("members", len(items)))
		}
	}
	return a.Complete(report, metrics, runErr)
}
