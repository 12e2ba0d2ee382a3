package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported destination drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Supported object store types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageSFTP  = "sftp"
	StorageFTP   = "ftp"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) []string{
		validateLegacySettings,
		validateOriginSettings,
		validateDestinationSettings,
		validateStorageSettings,
		validatePipelineSettings,
		validateReportSettings,
	} {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLegacySettings(s *Settings) []string {
	var errs []string
	l := &s.Legacy
	if l.DSN == "" {
		if l.Host == "" {
			errs = append(errs, "legacy.host is required when legacy.dsn is not set")
		}
		if l.Database == "" {
			errs = append(errs, "legacy.database is required when legacy.dsn is not set")
		}
		if l.Port < 1 || l.Port > 65535 {
			errs = append(errs, "legacy.port must be between 1 and 65535")
		}
	}
	if l.MemberPostType == "" {
		errs = append(errs, "legacy.memberposttype must not be empty")
	}
	if len(l.Statuses) == 0 {
		errs = append(errs, "legacy.statuses must list at least one status")
	}
	return errs
}

func validateOriginSettings(s *Settings) []string {
	var errs []string
	o := &s.Origin
	if o.BaseURL != "" {
		if u, err := url.Parse(o.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "origin.baseurl must be an absolute URL")
		}
	}
	if o.MaxAssetBytes <= 0 {
		errs = append(errs, "origin.maxassetbytes must be positive")
	}
	if o.Timeout <= 0 {
		errs = append(errs, "origin.timeout must be positive")
	}
	if !strings.HasPrefix(o.UploadsPrefix, "/") {
		errs = append(errs, "origin.uploadsprefix must start with /")
	}
	return errs
}

func validateDestinationSettings(s *Settings) []string {
	d := &s.Destination
	d.Driver = strings.ToLower(d.Driver)

	switch d.Driver {
	case DriverSQLite:
		if d.DSN == "" && d.Path == "" {
			return []string{"destination.path is required for the sqlite driver"}
		}
	case DriverPostgres, DriverMySQL:
		if d.DSN == "" && (d.Host == "" || d.Database == "") {
			return []string{"destination.dsn or destination.host and destination.database are required"}
		}
	default:
		return []string{fmt.Sprintf("destination.driver %q is not supported", d.Driver)}
	}
	return nil
}

func validateStorageSettings(s *Settings) []string {
	var errs []string
	st := &s.Storage
	st.Type = strings.ToLower(st.Type)

	switch st.Type {
	case StorageLocal:
		if st.Local.Path == "" {
			errs = append(errs, "storage.local.path is required")
		}
	case StorageS3:
		if st.S3.Endpoint == "" {
			errs = append(errs, "storage.s3.endpoint is required")
		}
		if st.S3.Bucket == "" {
			errs = append(errs, "storage.s3.bucket is required")
		}
	case StorageSFTP:
		if st.SFTP.Host == "" || st.SFTP.Username == "" {
			errs = append(errs, "storage.sftp.host and storage.sftp.username are required")
		}
		if st.SFTP.Password == "" && st.SFTP.KeyFile == "" {
			errs = append(errs, "storage.sftp.password or storage.sftp.keyfile is required")
		}
	case StorageFTP:
		if st.FTP.Host == "" {
			errs = append(errs, "storage.ftp.host is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.type %q is not supported", st.Type))
	}

	if st.PublicBaseURL != "" {
		if u, err := url.Parse(st.PublicBaseURL); err != nil || u.Scheme == "" {
			errs = append(errs, "storage.publicbaseurl must be an absolute URL")
		}
	}
	return errs
}

func validatePipelineSettings(s *Settings) []string {
	var errs []string
	p := &s.Pipeline
	if p.MemberDelay < 0 {
		errs = append(errs, "pipeline.memberdelay must not be negative")
	}
	if p.RetryAttempts < 1 {
		errs = append(errs, "pipeline.retryattempts must be at least 1")
	}
	if p.StagingDir == "" {
		errs = append(errs, "pipeline.stagingdir is required")
	}
	for _, id := range p.IDs {
		if id <= 0 {
			errs = append(errs, fmt.Sprintf("pipeline.ids contains invalid id %d", id))
		}
	}
	return errs
}

func validateReportSettings(s *Settings) []string {
	var errs []string
	if s.Report.Dir == "" {
		errs = append(errs, "report.dir is required")
	}
	switch strings.ToLower(s.Report.Format) {
	case "json", "yaml", "yml":
	default:
		errs = append(errs, fmt.Sprintf("report.format %q is not supported", s.Report.Format))
	}
	return errs
}
