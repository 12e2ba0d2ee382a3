// Package app wires settings into the pipeline components shared by the
// stage commands.
package app

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/datastore"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/httpclient"
	"github.com/memberbridge/memberbridge/internal/legacy"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/migration"
	"github.com/memberbridge/memberbridge/internal/normalize"
	"github.com/memberbridge/memberbridge/internal/objectstore"
	"github.com/memberbridge/memberbridge/internal/relocator"
	"github.com/memberbridge/memberbridge/internal/resolver"
)

// Context holds the settings and logger of one CLI invocation together with
// every connection opened for it.
type Context struct {
	Settings *conf.Settings
	Log      logger.Logger

	central *logger.CentralLogger
	closers []io.Closer
}

// Init loads settings from configPath (see conf.Load) and builds the central
// logger. debug forces debug level on every output.
func (c *Context) Init(configPath string, debug bool) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		settings.Debug = true
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_logger").
			Build()
	}
	c.Settings = settings
	c.central = central
	c.Log = central.Module("main")
	c.Log.Debug("settings loaded",
		logger.String("legacy", settings.Legacy.SanitizedDSN()),
		logger.String("destination", settings.Destination.SanitizedDSN()),
		logger.String("storage", settings.Storage.Type))
	return nil
}

// NewContext wraps already loaded settings and a logger.
func NewContext(settings *conf.Settings, log logger.Logger) *Context {
	return &Context{Settings: settings, Log: log}
}

func (c *Context) module(name string) logger.Logger {
	if c.central != nil {
		return c.central.Module(name)
	}
	return c.Log.Module(name)
}

func (c *Context) track(cl io.Closer) {
	c.closers = append(c.closers, cl)
}

// Close releases connections in reverse order of opening and flushes the logger.
func (c *Context) Close() error {
	var errs []error
	for _, cl := range slices.Backward(c.closers) {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.central != nil {
		if err := c.central.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run calls fn and releases every connection afterwards, also when fn panics.
// A panic is returned as an error.
func (c *Context) Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if closeErr := c.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close: %w", closeErr))
		}
	}()
	return fn()
}

// Source opens the legacy store. Failure is fatal for the run.
func (c *Context) Source(ctx context.Context) (*legacy.Connector, error) {
	conn, err := legacy.Open(ctx, c.Settings, c.module("legacy"))
	if err != nil {
		return nil, migration.Fatal(migration.StageExtract, err)
	}
	c.track(conn)
	return conn, nil
}

// Relocator opens the object store, checks it is writable and builds the
// relocator. Failure is fatal for the run.
func (c *Context) Relocator(ctx context.Context) (*relocator.Relocator, error) {
	log := c.module("relocator")

	store, err := objectstore.Open(&c.Settings.Storage, c.module("objectstore"))
	if err != nil {
		return nil, migration.Fatal(migration.StageRelocate, err)
	}
	c.track(store)

	if err := store.Validate(ctx); err != nil {
		return nil, migration.Fatal(migration.StageRelocate, err)
	}

	cfg := relocator.ConfigFromSettings(c.Settings)
	client := httpclient.New(&httpclient.Config{
		DefaultTimeout: c.Settings.Origin.Timeout,
		UserAgent:      c.Settings.Origin.UserAgent,
		RedirectHosts:  cfg.Hosts(),
	})
	c.track(closerFunc(func() error { client.Close(); return nil }))

	r, err := relocator.New(cfg, store, client, log)
	if err != nil {
		return nil, migration.Fatal(migration.StageRelocate, err)
	}
	c.track(r)
	return r, nil
}

// Loader opens the destination store. An unreachable destination is fatal.
func (c *Context) Loader(ctx context.Context) (*datastore.Loader, error) {
	log := c.module("datastore")
	store, err := datastore.Open(ctx, &c.Settings.Destination, log)
	if err != nil {
		return nil, migration.Fatal(migration.StageLoad, err)
	}
	c.track(store)
	return datastore.NewLoader(store, c.Settings.Pipeline.RetryAttempts, c.Settings.Pipeline.RetryDelay, log), nil
}

// Extractors returns the normalizer and the resolver backed by source.
func (c *Context) Extractors(source *legacy.Connector) (*normalize.Normalizer, *resolver.Resolver) {
	return normalize.New(c.module("normalize")), resolver.New(source, c.module("resolver"))
}

// Pipeline builds a pipeline over deps with options from settings.
func (c *Context) Pipeline(deps migration.Deps) *migration.Pipeline {
	return migration.New(deps, migration.Options{
		MemberDelay: c.Settings.Pipeline.MemberDelay,
		IDs:         c.Settings.Pipeline.IDs,
	}, c.module("migration"))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Complete seals and writes the report and the metrics textfile, then returns
// runErr. A fatal runErr skips both.
func (c *Context) Complete(report *migration.Report, metrics *migration.Metrics, runErr error) error {
	if migration.IsFatal(runErr) {
		c.Log.Error("run aborted", logger.Error(runErr))
		return runErr
	}

	report.Finish()
	path, err := report.Write(c.Settings.Report.Dir, c.Settings.Report.Format)
	if err != nil {
		return errors.Join(runErr, err)
	}
	c.Log.Info("run report written",
		logger.String("path", path),
		logger.String("run_id", report.RunID),
		logger.Int("attempted", report.Attempted),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("duplicate", report.Duplicate),
		logger.Int("failed", report.Failed),
		logger.Int("skipped", report.Skipped),
		logger.Bool("interrupted", report.Interrupted))

	if c.Settings.Metrics.Textfile != "" && metrics != nil {
		if err := metrics.WriteTextfile(c.Settings.Metrics.Textfile); err != nil {
			c.Log.Warn("failed to write metrics textfile",
				logger.String("path", c.Settings.Metrics.Textfile),
				logger.Error(err))
		}
	}
	return runErr
}
