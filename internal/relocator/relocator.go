// Package relocator copies legacy member assets into the destination object
// store under content-addressed keys.
package relocator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/httpclient"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
	"github.com/memberbridge/memberbridge/internal/objectstore"
)

const (
	hashPrefixLen = 16

	defaultProfileImageType = "image/jpeg"
	defaultResumeType       = "application/pdf"
)

var (
	// ErrExternalReference marks third-party URLs, which are never relocated.
	ErrExternalReference = errors.NewStd("reference points to a third-party host")
	// ErrUnreachable means no origin (local root or base URL) can serve the reference.
	ErrUnreachable = errors.NewStd("no origin configured for reference")
	// ErrEmptyAsset is returned for zero-byte assets.
	ErrEmptyAsset = errors.NewStd("asset is empty")
)

// Fetcher downloads a URL with a byte limit. *httpclient.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, string, error)
}

// Config tunes relocation.
type Config struct {
	OriginRoot    string
	BaseURL       string
	LegacyHosts   []string
	UploadsPrefix string
	MaxAssetBytes int64
	CacheControl  string
	RetryAttempts uint
	RetryDelay    time.Duration
}

// ConfigFromSettings maps origin, legacy, storage and pipeline settings onto a Config.
// Hosts returns the normalized legacy host names: the base URL host followed
// by LegacyHosts.
func (c Config) Hosts() []string {
	var hosts []string
	if u, err := url.Parse(c.BaseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, normalizeHost(u.Hostname()))
	}
	for _, h := range c.LegacyHosts {
		if h = normalizeHost(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		OriginRoot:    s.Origin.Root,
		BaseURL:       s.Origin.BaseURL,
		LegacyHosts:   s.Legacy.Hosts,
		UploadsPrefix: s.Origin.UploadsPrefix,
		MaxAssetBytes: s.Origin.MaxAssetBytes,
		CacheControl:  s.Storage.CacheControl,
		RetryAttempts: s.Pipeline.RetryAttempts,
		RetryDelay:    s.Pipeline.RetryDelay,
	}
}

// Relocator reads asset bytes from the legacy origin and uploads them.
type Relocator struct {
	cfg         Config
	store       objectstore.Store
	fetcher     Fetcher
	root        *os.Root
	baseURL     *url.URL
	legacyHosts []string
	log         logger.Logger
}

// New creates a Relocator. The origin root, when configured, is opened once
// and held until Close.
func New(cfg Config, store objectstore.Store, fetcher Fetcher, log logger.Logger) (*Relocator, error) {
	if cfg.UploadsPrefix == "" {
		cfg.UploadsPrefix = "/wp-content/uploads/"
	}
	if cfg.MaxAssetBytes <= 0 {
		cfg.MaxAssetBytes = conf.DefaultMaxAssetBytes
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}

	r := &Relocator{cfg: cfg, store: store, fetcher: fetcher, log: log}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Host == "" {
			return nil, errors.New(fmt.Errorf("invalid origin base URL %q", cfg.BaseURL)).
				Component("relocator").
				Category(errors.CategoryConfiguration).
				Build()
		}
		r.baseURL = u
	}
	r.legacyHosts = cfg.Hosts()

	if cfg.OriginRoot != "" {
		root, err := os.OpenRoot(cfg.OriginRoot)
		if err != nil {
			return nil, errors.New(err).
				Component("relocator").
				Category(errors.CategoryConfiguration).
				Context("origin_root", cfg.OriginRoot).
				Build()
		}
		r.root = root
	}
	return r, nil
}

// Close releases the origin root.
func (r *Relocator) Close() error {
	if r.root == nil {
		return nil
	}
	return r.root.Close()
}

// Relocate uploads one asset and returns its destination. Every error is
// per-asset: the caller drops the slot and carries on with the member.
func (r *Relocator) Relocate(ctx context.Context, ref *member.AssetReference, externalID int64, assetType member.AssetType) (*member.UploadedAsset, error) {
	if ref == nil {
		return nil, nil
	}
	log := r.log.With(
		logger.Int64("external_id", externalID),
		logger.String("asset_type", string(assetType)),
		logger.String("source", ref.SourceURL))

	src := r.Classify(ref.SourceURL)
	switch src.Kind {
	case KindExternal:
		log.Info("skipping third-party asset reference")
		return nil, ErrExternalReference
	case KindInvalid:
		return nil, r.assetError(fmt.Errorf("unusable asset reference %q", ref.SourceURL), externalID, assetType)
	}

	data, fetchedType, err := r.read(ctx, src, log)
	if errors.Is(err, httpclient.ErrRedirectNotAllowed) {
		log.Info("legacy URL redirects to a third-party host, skipping", logger.Error(err))
		return nil, ErrExternalReference
	}
	if err != nil {
		log.Warn("asset fetch failed", logger.String("kind", src.Kind.String()), logger.Error(err))
		return nil, r.assetError(err, externalID, assetType)
	}
	if len(data) == 0 {
		log.Warn("asset is empty")
		return nil, r.assetError(ErrEmptyAsset, externalID, assetType)
	}

	filename := ref.Filename
	if filename == "" {
		filename = path.Base(src.LocalPath)
	}
	contentType := ContentType(assetType, filename, ref.MIMEType, fetchedType)
	key := StorageKey(assetType, externalID, data, filename, contentType)

	asset := &member.UploadedAsset{
		Type:             assetType,
		StoragePath:      key,
		PublicURL:        r.store.PublicURL(key),
		Size:             int64(len(data)),
		OriginalFilename: filename,
		ContentType:      contentType,
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		log.Debug("existence check failed, uploading anyway", logger.Error(err))
	}
	if exists {
		asset.Reused = true
		log.Debug("asset already stored", logger.String("key", key))
		return asset, nil
	}

	err = retry.Do(
		func() error {
			return r.store.Upload(ctx, key, data, objectstore.UploadOptions{
				ContentType:  contentType,
				CacheControl: r.cfg.CacheControl,
				Overwrite:    true,
			})
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.RetryAttempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(objectstore.IsTransientError),
		retry.OnRetry(func(attempt uint, err error) {
			log.Debug("retrying upload", logger.Int("attempt", int(attempt)+1), logger.Error(err))
		}),
	)
	if err != nil {
		log.Warn("asset upload failed", logger.String("key", key), logger.Error(err))
		return nil, r.assetError(err, externalID, assetType)
	}

	log.Info("asset relocated",
		logger.String("key", key),
		logger.Int64("bytes", asset.Size),
		logger.String("content_type", contentType))
	return asset, nil
}

// read loads the asset from the origin root when possible, else over HTTP.
func (r *Relocator) read(ctx context.Context, src Source, log logger.Logger) ([]byte, string, error) {
	if r.root != nil && src.LocalPath != "" {
		data, err := r.readLocal(src.LocalPath)
		if err == nil || src.RemoteURL == "" || !errors.Is(err, fs.ErrNotExist) {
			return data, "", err
		}
		log.Debug("asset missing from origin root, fetching over HTTP", logger.String("path", src.LocalPath))
	}

	if src.RemoteURL == "" || r.fetcher == nil {
		return nil, "", ErrUnreachable
	}

	var contentType string
	data, err := retry.DoWithData(
		func() ([]byte, error) {
			body, ct, err := r.fetcher.Fetch(ctx, src.RemoteURL, r.cfg.MaxAssetBytes)
			contentType = ct
			return body, err
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.RetryAttempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableFetch),
	)
	return data, contentType, err
}

func (r *Relocator) readLocal(rel string) ([]byte, error) {
	f, err := r.root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", rel)
	}
	if info.Size() > r.cfg.MaxAssetBytes {
		return nil, fmt.Errorf("%w: %d > %d", httpclient.ErrBodyTooLarge, info.Size(), r.cfg.MaxAssetBytes)
	}
	return io.ReadAll(io.LimitReader(f, r.cfg.MaxAssetBytes+1))
}

// isRetryableFetch retries 5xx/429 and transport errors, never 4xx or size limits.
func isRetryableFetch(err error) bool {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	if errors.Is(err, httpclient.ErrBodyTooLarge) || errors.Is(err, httpclient.ErrRedirectNotAllowed) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (r *Relocator) assetError(err error, externalID int64, assetType member.AssetType) error {
	category := errors.CategoryAssetFetch
	if errors.IsCategory(err, errors.CategoryAssetUpload) {
		category = errors.CategoryAssetUpload
	}
	return errors.New(err).
		Component("relocator").
		Category(category).
		MemberContext(strconv.FormatInt(externalID, 10), "relocate").
		Context("asset_type", string(assetType)).
		Build()
}

// StorageKey derives "<folder>/<external id>/<content hash><ext>". The same bytes
// for the same member and slot always map to the same key.
func StorageKey(assetType member.AssetType, externalID int64, data []byte, filename, contentType string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s/%d/%s%s",
		assetType.StorageFolder(),
		externalID,
		hex.EncodeToString(sum[:])[:hashPrefixLen],
		extension(filename, contentType))
}

func extension(filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext != "" && len(ext) <= 6 && strings.Trim(ext[1:], "abcdefghijklmnopqrstuvwxyz0123456789") == "" {
		return ext
	}
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// ContentType picks the upload content type from the filename extension,
// then the legacy MIME type, then the served type, then the slot default.
func ContentType(assetType member.AssetType, filename, legacyMIME, fetched string) string {
	candidates := []string{
		mime.TypeByExtension(strings.ToLower(path.Ext(filename))),
		legacyMIME,
		fetched,
	}
	for _, c := range candidates {
		mediaType, _, err := mime.ParseMediaType(c)
		if err != nil || mediaType == "" || mediaType == "application/octet-stream" {
			continue
		}
		if assetType == member.AssetProfileImage && !strings.HasPrefix(mediaType, "image/") {
			continue
		}
		return mediaType
	}
	if assetType == member.AssetProfileImage {
		return defaultProfileImageType
	}
	return defaultResumeType
}
