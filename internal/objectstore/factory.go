package objectstore

import (
	"fmt"
	"strings"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
)

// Open builds the backend selected by storage.type.
func Open(settings *conf.StorageSettings, log logger.Logger) (Store, error) {
	switch strings.ToLower(settings.Type) {
	case conf.StorageLocal, "":
		return NewLocalStore(settings.Local.Path, settings.PublicBaseURL, log)
	case conf.StorageS3:
		return NewS3Store(S3Config{
			Endpoint:        settings.S3.Endpoint,
			Region:          settings.S3.Region,
			Bucket:          settings.S3.Bucket,
			AccessKeyID:     settings.S3.AccessKeyID,
			SecretAccessKey: settings.S3.SecretAccessKey,
			UseSSL:          settings.S3.UseSSL,
			PublicBaseURL:   settings.PublicBaseURL,
		}, log)
	case conf.StorageSFTP:
		return NewSFTPStore(SFTPConfig{
			Host:           settings.SFTP.Host,
			Port:           settings.SFTP.Port,
			Username:       settings.SFTP.Username,
			Password:       settings.SFTP.Password,
			KeyFile:        settings.SFTP.KeyFile,
			KnownHostsFile: settings.SFTP.KnownHostsFile,
			BasePath:       settings.SFTP.BasePath,
			Timeout:        settings.SFTP.Timeout,
			PublicBaseURL:  settings.PublicBaseURL,
		}, log)
	case conf.StorageFTP:
		return NewFTPStore(FTPConfig{
			Host:          settings.FTP.Host,
			Port:          settings.FTP.Port,
			Username:      settings.FTP.Username,
			Password:      settings.FTP.Password,
			BasePath:      settings.FTP.BasePath,
			Timeout:       settings.FTP.Timeout,
			PublicBaseURL: settings.PublicBaseURL,
		}, log)
	default:
		return nil, errors.New(fmt.Errorf("unsupported storage type %q", settings.Type)).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
