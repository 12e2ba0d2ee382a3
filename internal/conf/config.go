// Package conf holds the memberbridge settings: legacy source, file origin,
// destination stores, pipeline tuning, report output and logging.
package conf

import (
	"time"

	"github.com/memberbridge/memberbridge/internal/logger"
)

// LegacySettings describes the legacy WordPress-style database.
type LegacySettings struct {
	DSN      string // full go-sql-driver DSN, overrides the individual fields
	Host     string
	Port     int
	Username string
	Password string
	Database string

	TablePrefix          string        // table name prefix, e.g. "wp_"
	MemberPostType       string        // post_type discriminator of member items
	Statuses             []string      // post statuses eligible for migration
	ExcludedMetaPrefixes []string      // metadata keys with these prefixes are internal
	Hosts                []string      // hostnames that count as the legacy origin
	AttachmentCacheTTL   time.Duration // lifetime of cached attachment lookups
	QueryTimeout         time.Duration
}

// OriginSettings describes where legacy asset bytes are read from.
type OriginSettings struct {
	Root          string        // local directory mirroring the legacy uploads tree
	BaseURL       string        // legacy site base URL, used for relative paths when Root is empty
	UploadsPrefix string        // URL path prefix of the uploads tree
	MaxAssetBytes int64         // larger assets are rejected
	Timeout       time.Duration // per-request timeout for HTTP fetches
	UserAgent     string
}

// DestinationSettings describes the managed relational store.
type DestinationSettings struct {
	Driver      string // postgres, mysql or sqlite
	DSN         string // full DSN, overrides the individual fields
	Host        string
	Port        int
	Username    string
	Password    string
	Database    string
	SSLMode     string
	Path        string // sqlite database path
	AutoMigrate bool   // create members and member_files tables when missing
}

// LocalStorageSettings configures the local filesystem object store.
type LocalStorageSettings struct {
	Path string
}

// S3StorageSettings configures an S3-compatible object store.
type S3StorageSettings struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// SFTPStorageSettings configures the SFTP object store.
type SFTPStorageSettings struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KeyFile        string
	KnownHostsFile string
	BasePath       string
	Timeout        time.Duration
}

// FTPStorageSettings configures the FTP object store.
type FTPStorageSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	BasePath string
	Timeout  time.Duration
}

// StorageSettings selects and configures the destination object store.
type StorageSettings struct {
	Type          string // local, s3, sftp or ftp
	PublicBaseURL string // prefix for public URLs of stored objects
	CacheControl  string // Cache-Control value attached to uploads
	Local         LocalStorageSettings
	S3            S3StorageSettings
	SFTP          SFTPStorageSettings
	FTP           FTPStorageSettings
}

// PipelineSettings tunes the orchestrator.
type PipelineSettings struct {
	MemberDelay   time.Duration // fixed pause between members
	RetryAttempts uint          // attempts for transient fetch, upload and provenance failures
	RetryDelay    time.Duration
	StagingDir    string  // directory for extracted.json and relocated.json
	IDs           []int64 // restrict the run to these legacy ids
}

// ReportSettings controls where the run report is written.
type ReportSettings struct {
	Dir    string
	Format string // json or yaml
}

// MetricsSettings controls the Prometheus textfile output.
type MetricsSettings struct {
	Textfile string // empty disables metrics output
}

// Settings contains all configuration options for a migration run.
type Settings struct {
	Debug bool

	Legacy      LegacySettings
	Origin      OriginSettings
	Destination DestinationSettings
	Storage     StorageSettings
	Pipeline    PipelineSettings
	Report      ReportSettings
	Metrics     MetricsSettings
	Logging     logger.LoggingConfig
}
