package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
)

// LocalStore keeps objects under a directory. All access goes through an
// os.Root so keys cannot escape it.
type LocalStore struct {
	dir           string
	root          *os.Root
	publicBaseURL string
	log           logger.Logger
}

// NewLocalStore opens (creating if needed) dir as the store root.
func NewLocalStore(dir, publicBaseURL string, log logger.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New(fmt.Errorf("local store path is required")).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, uploadError(err, "local", dir)
	}
	if err := os.MkdirAll(abs, PermDir); err != nil {
		return nil, uploadError(fmt.Errorf("failed to create store directory: %w", err), "local", abs)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, uploadError(err, "local", abs)
	}
	if publicBaseURL == "" {
		publicBaseURL = "file://" + filepath.ToSlash(abs)
	}
	return &LocalStore{dir: abs, root: root, publicBaseURL: publicBaseURL, log: log}, nil
}

// Name returns the backend name.
func (s *LocalStore) Name() string { return "local" }

// Upload writes data through a temporary file and renames it into place.
func (s *LocalStore) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !opts.Overwrite {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return ErrObjectExists
		}
	}

	if err := s.root.MkdirAll(path.Dir(key), PermDir); err != nil {
		return uploadError(fmt.Errorf("failed to create directory: %w", err), s.Name(), key)
	}

	tmp := path.Join(path.Dir(key), fmt.Sprintf("upload-%d.tmp", time.Now().UnixNano()))
	f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, PermFile)
	if err != nil {
		return uploadError(err, s.Name(), key)
	}
	_, writeErr := f.Write(data)
	if writeErr == nil {
		writeErr = f.Sync()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = s.root.Remove(tmp)
		return uploadError(fmt.Errorf("failed to write object: %w", writeErr), s.Name(), key)
	}

	if err := s.root.Rename(tmp, key); err != nil {
		_ = s.root.Remove(tmp)
		return uploadError(fmt.Errorf("failed to move object into place: %w", err), s.Name(), key)
	}

	s.log.Debug("object stored",
		logger.String("key", key),
		logger.Int("bytes", len(data)),
		logger.String("content_type", opts.ContentType))
	return nil
}

// Exists reports whether key is a regular file in the store.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	info, err := s.root.Stat(key)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, uploadError(err, s.Name(), key)
	}
}

// PublicURL joins the public base URL and key.
func (s *LocalStore) PublicURL(key string) string {
	return joinPublicURL(s.publicBaseURL, key)
}

// Validate writes and removes a scratch file.
func (s *LocalStore) Validate(_ context.Context) error {
	scratch := fmt.Sprintf("write-test-%d.tmp", time.Now().UnixNano())
	f, err := s.root.OpenFile(scratch, os.O_WRONLY|os.O_CREATE|os.O_EXCL, PermFile)
	if err != nil {
		return uploadError(fmt.Errorf("store directory is not writable: %w", err), s.Name(), s.dir)
	}
	_ = f.Close()
	return s.root.Remove(scratch)
}

// Close releases the root handle.
func (s *LocalStore) Close() error {
	return s.root.Close()
}
