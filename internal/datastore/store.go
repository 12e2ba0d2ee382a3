// Package datastore writes migrated members and their file provenance rows to
// the managed destination database.
package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
)

const slowQueryThreshold = time.Second

// Store owns the single destination session of a run.
type Store struct {
	DB  *gorm.DB
	log logger.Logger

	closeOnce sync.Once
	closeErr  error
}

func dialector(settings *conf.DestinationSettings) (gorm.Dialector, error) {
	dsn := settings.DestinationDSN()
	switch settings.Driver {
	case conf.DriverPostgres, "":
		return postgres.Open(dsn), nil
	case conf.DriverMySQL:
		return mysql.Open(dsn), nil
	case conf.DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported destination driver %q", settings.Driver)
	}
}

// Open connects to the destination and verifies it is reachable. Failure here
// is fatal for the run.
func Open(ctx context.Context, settings *conf.DestinationSettings, log logger.Logger) (*Store, error) {
	d, err := dialector(settings)
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(log, slowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, dbError(err, "open", "dsn", settings.SanitizedDSN())
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open", "dsn", settings.SanitizedDSN())
	}
	// One session per run.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, dbError(fmt.Errorf("destination database unreachable: %w", err), "ping", "dsn", settings.SanitizedDSN())
	}

	store := New(db, log)
	if settings.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	log.Info("connected to destination database",
		logger.String("driver", settings.Driver),
		logger.String("dsn", settings.SanitizedDSN()))
	return store, nil
}

// New wraps an open connection; the store takes ownership of db.
func New(db *gorm.DB, log logger.Logger) *Store {
	return &Store{DB: db, log: log}
}

// Migrate creates or updates the members and member_files tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).AutoMigrate(&Member{}, &MemberFile{}); err != nil {
		return dbError(err, "auto_migrate")
	}
	s.log.Debug("destination schema up to date")
	return nil
}

// Close closes the underlying connection once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		sqlDB, err := s.DB.DB()
		if err != nil {
			s.closeErr = err
			return
		}
		s.closeErr = sqlDB.Close()
	})
	return s.closeErr
}

// dbError builds a destination error with operation context and key/value pairs.
func dbError(err error, operation string, kv ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDestination).
		Context("operation", operation)

	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			builder = builder.Context(key, kv[i+1])
		}
	}
	return builder.Build()
}
