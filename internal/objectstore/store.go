// Package objectstore writes relocated member assets to the destination object
// store. Backends: local filesystem, S3-compatible buckets, SFTP and FTP.
package objectstore

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memberbridge/memberbridge/internal/errors"
)

const (
	PermDir  = 0o750
	PermFile = 0o640

	MaxKeyLength       = 1024
	MaxComponentLength = 255

	DefaultTimeout = 30 * time.Second
	DefaultFTPPort = 21
	DefaultSSHPort = 22
)

// ErrObjectExists is returned by Upload when the key is taken and Overwrite is false.
var ErrObjectExists = errors.NewStd("object already exists")

// UploadOptions mirrors the destination upload call.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Overwrite    bool
}

// Store is a destination object store. Keys are slash separated and relative.
type Store interface {
	Name() string
	Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
	// Validate checks that the store is reachable and writable.
	Validate(ctx context.Context) error
	Close() error
}

// invalidKeyChars are rejected in any key component.
const invalidKeyChars = "<>:\"\\|?*$`;&{}"

// ValidateKey rejects empty, absolute, traversing or hidden keys.
func ValidateKey(key string) error {
	if key == "" {
		return errors.ValidationError("object key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return errors.ValidationError("object key exceeds maximum length")
	}
	if !filepath.IsLocal(key) || strings.HasPrefix(key, "/") {
		return errors.ValidationError("object key must be relative without traversal: " + key)
	}
	for component := range strings.SplitSeq(key, "/") {
		switch {
		case component == "":
			return errors.ValidationError("object key contains an empty component: " + key)
		case strings.HasPrefix(component, "."):
			return errors.ValidationError("hidden key components are not allowed: " + component)
		case strings.ContainsAny(component, invalidKeyChars):
			return errors.ValidationError("object key contains invalid characters: " + key)
		case len(component) > MaxComponentLength:
			return errors.ValidationError("object key component exceeds maximum length")
		}
	}
	return nil
}

// transientErrorPatterns mark errors worth retrying.
var transientErrorPatterns = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"timeout",
	"temporary",
	"broken pipe",
	"no route to host",
	"EOF",
	"ssh: handshake failed",
	"resource temporarily unavailable",
	"SlowDown",
	"ServiceUnavailable",
	"InternalError",
}

// IsTransientError reports whether an upload or existence check may succeed on retry.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectExists) || errors.IsCategory(err, errors.CategoryValidation) {
		return false
	}
	if os.IsTimeout(err) {
		return true
	}
	msg := err.Error()
	for _, pattern := range transientErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// joinPublicURL appends an escaped key to base.
func joinPublicURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

func uploadError(err error, backend, key string) error {
	return errors.New(err).
		Component("objectstore").
		Category(errors.CategoryAssetUpload).
		Context("backend", backend).
		Context("key", key).
		Build()
}
