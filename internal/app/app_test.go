package app

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/migration"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	return &conf.Settings{
		Origin: conf.OriginSettings{
			Root:    t.TempDir(),
			BaseURL: "https://asociacion.example.org",
			Timeout: time.Second,
		},
		Destination: conf.DestinationSettings{
			Driver:      conf.DriverSQLite,
			Path:        filepath.Join(dir, "members.db"),
			AutoMigrate: true,
		},
		Storage: conf.StorageSettings{
			Type:  conf.StorageLocal,
			Local: conf.LocalStorageSettings{Path: filepath.Join(dir, "objects")},
		},
		Pipeline: conf.PipelineSettings{RetryAttempts: 1, StagingDir: filepath.Join(dir, "staging")},
		Report:   conf.ReportSettings{Dir: filepath.Join(dir, "reports"), Format: "json"},
		Metrics:  conf.MetricsSettings{Textfile: filepath.Join(dir, "metrics", "memberbridge.prom")},
	}
}

func testContext(t *testing.T) *Context {
	t.Helper()
	c := NewContext(testSettings(t), logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestContext_OpensRelocatorAndLoader(t *testing.T) {
	t.Parallel()
	c := testContext(t)

	reloc, err := c.Relocator(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, reloc)

	loader, err := c.Loader(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, loader)

	assert.Len(t, c.closers, 4)
	require.NoError(t, c.Close())
	assert.Empty(t, c.closers)
}

func TestContext_RunReleasesConnectionsOnPanic(t *testing.T) {
	t.Parallel()
	c := testContext(t)

	_, err := c.Loader(t.Context())
	require.NoError(t, err)
	require.Len(t, c.closers, 1)

	err = c.Run(func() error { panic("member state corrupted") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member state corrupted")
	assert.Empty(t, c.closers)
}

func TestContext_RunReturnsCommandError(t *testing.T) {
	t.Parallel()
	c := testContext(t)

	_, err := c.Relocator(t.Context())
	require.NoError(t, err)

	runErr := fmt.Errorf("load failed")
	err = c.Run(func() error { return runErr })
	require.ErrorIs(t, err, runErr)
	assert.Empty(t, c.closers)
}

func TestContext_UnsupportedDestinationIsFatal(t *testing.T) {
	t.Parallel()
	c := testContext(t)
	c.Settings.Destination.Driver = "oracle"

	_, err := c.Loader(t.Context())
	require.Error(t, err)
	assert.True(t, migration.IsFatal(err))
}

func TestContext_UnsupportedStorageIsFatal(t *testing.T) {
	t.Parallel()
	c := testContext(t)
	c.Settings.Storage.Type = "gcs"

	_, err := c.Relocator(t.Context())
	require.Error(t, err)
	assert.True(t, migration.IsFatal(err))
}

func TestComplete_WritesReportAndMetrics(t *testing.T) {
	t.Parallel()
	c := testContext(t)
	metrics, err := migration.NewMetrics()
	require.NoError(t, err)

	report := migration.NewReport(migration.StageLoad)
	runErr := fmt.Errorf("interrupted")
	err = c.Complete(report, metrics, runErr)
	require.ErrorIs(t, err, runErr)

	assert.True(t, report.Sealed())
	assert.FileExists(t, filepath.Join(c.Settings.Report.Dir, "load-report.json"))
	assert.FileExists(t, c.Settings.Metrics.Textfile)
}

func TestComplete_FatalSkipsReport(t *testing.T) {
	t.Parallel()
	c := testContext(t)

	report := migration.NewReport(migration.StageExtract)
	err := c.Complete(report, nil, migration.Fatal(migration.StageExtract, fmt.Errorf("legacy down")))
	require.Error(t, err)
	assert.False(t, report.Sealed())
	assert.NoDirExists(t, c.Settings.Report.Dir)
}
