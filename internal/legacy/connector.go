// Package legacy reads member items, their metadata and their attachments from
// the legacy WordPress-style database. All access is read-only.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
)

const (
	// metadataChunkSize bounds the IN clause of metadata queries.
	metadataChunkSize = 500

	defaultCacheTTL     = 30 * time.Minute
	defaultQueryTimeout = 30 * time.Second
	slowQueryThreshold  = 2 * time.Second
)

// Config controls which legacy rows count as members and which metadata is internal.
type Config struct {
	TablePrefix          string
	MemberPostType       string
	Statuses             []string
	ExcludedMetaPrefixes []string
	UploadsPrefix        string
	CacheTTL             time.Duration
	QueryTimeout         time.Duration
}

// ConfigFromSettings maps the legacy and origin settings onto a connector Config.
func ConfigFromSettings(settings *conf.Settings) Config {
	return Config{
		TablePrefix:          settings.Legacy.TablePrefix,
		MemberPostType:       settings.Legacy.MemberPostType,
		Statuses:             settings.Legacy.Statuses,
		ExcludedMetaPrefixes: settings.Legacy.ExcludedMetaPrefixes,
		UploadsPrefix:        settings.Origin.UploadsPrefix,
		CacheTTL:             settings.Legacy.AttachmentCacheTTL,
		QueryTimeout:         settings.Legacy.QueryTimeout,
	}
}

// Connector holds the single legacy connection of a run.
type Connector struct {
	db          *gorm.DB
	cfg         Config
	attachments *cache.Cache
	log         logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open connects to the legacy MySQL database and verifies the connection.
// Any failure here is fatal for the run.
func Open(ctx context.Context, settings *conf.Settings, log logger.Logger) (*Connector, error) {
	db, err := gorm.Open(mysql.Open(settings.Legacy.LegacyDSN()), &gorm.Config{
		Logger:                 logger.NewGormLoggerAdapter(log, slowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("legacy").
			Category(errors.CategoryLegacySource).
			Context("dsn", settings.Legacy.SanitizedDSN()).
			Context("operation", "open").
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// One connection per run.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.New(fmt.Errorf("legacy database unreachable: %w", err)).
			Component("legacy").
			Category(errors.CategoryLegacySource).
			Context("dsn", settings.Legacy.SanitizedDSN()).
			Context("operation", "ping").
			Build()
	}

	log.Info("connected to legacy database", logger.String("dsn", settings.Legacy.SanitizedDSN()))
	return New(db, ConfigFromSettings(settings), log), nil
}

// New wraps an already opened connection. The connector takes ownership of db.
func New(db *gorm.DB, cfg Config, log logger.Logger) *Connector {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.UploadsPrefix == "" {
		cfg.UploadsPrefix = "/wp-content/uploads/"
	}
	return &Connector{
		db:          db,
		cfg:         cfg,
		attachments: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		log:         log,
	}
}

func (c *Connector) postsTable() string { return c.cfg.TablePrefix + "posts" }
func (c *Connector) metaTable() string  { return c.cfg.TablePrefix + "postmeta" }

// FetchMembers returns member items in eligible statuses ordered by id.
// A non-empty ids restricts the result to those legacy ids.
func (c *Connector) FetchMembers(ctx context.Context, ids []int64) ([]member.LegacyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	query := c.db.WithContext(ctx).
		Table(c.postsTable()).
		Where("post_type = ? AND post_status IN ?", c.cfg.MemberPostType, c.cfg.Statuses)
	if len(ids) > 0 {
		query = query.Where("ID IN ?", ids)
	}

	var posts []Post
	if err := query.Order("ID").Find(&posts).Error; err != nil {
		return nil, errors.New(fmt.Errorf("failed to fetch members: %w", err)).
			Component("legacy").
			Category(errors.CategoryLegacySource).
			Context("operation", "fetch_members").
			Build()
	}

	records := make([]member.LegacyRecord, 0, len(posts))
	for i := range posts {
		records = append(records, member.LegacyRecord{
			ExternalID: posts[i].ID,
			Title:      posts[i].PostTitle,
			Body:       posts[i].PostContent,
			Status:     posts[i].PostStatus,
		})
	}

	c.log.Debug("fetched legacy members", logger.Int("count", len(records)))
	return records, nil
}

// FetchMetadata returns the non-internal metadata of each id. ids must be non-empty.
// When a key repeats for one item, the earliest row wins.
func (c *Connector) FetchMetadata(ctx context.Context, ids []int64) (map[int64]map[string]string, error) {
	if len(ids) == 0 {
		return nil, errors.New(errors.NewStd("fetch metadata: ids must not be empty")).
			Component("legacy").
			Category(errors.CategoryValidation).
			Build()
	}

	result := make(map[int64]map[string]string, len(ids))
	for chunk := range slices.Chunk(ids, metadataChunkSize) {
		if err := c.fetchMetadataChunk(ctx, chunk, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *Connector) fetchMetadataChunk(ctx context.Context, ids []int64, result map[int64]map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	var rows []PostMeta
	err := c.db.WithContext(ctx).
		Table(c.metaTable()).
		Where("post_id IN ?", ids).
		Order("meta_id").
		Find(&rows).Error
	if err != nil {
		return errors.New(fmt.Errorf("failed to fetch metadata: %w", err)).
			Component("legacy").
			Category(errors.CategoryLegacySource).
			Context("operation", "fetch_metadata").
			Context("ids", len(ids)).
			Build()
	}

	for i := range rows {
		row := &rows[i]
		if c.isInternalKey(row.MetaKey, row.MetaValue) {
			continue
		}
		bag, ok := result[row.PostID]
		if !ok {
			bag = make(map[string]string)
			result[row.PostID] = bag
		}
		if _, seen := bag[row.MetaKey]; !seen {
			bag[row.MetaKey] = row.MetaValue
		}
	}
	return nil
}

// isInternalKey reports whether a metadata row is system bookkeeping rather than member data.
func (c *Connector) isInternalKey(key, value string) bool {
	for _, prefix := range c.cfg.ExcludedMetaPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return strings.HasPrefix(key, "_") && strings.HasPrefix(value, acfFieldKeyPrefix)
}

// FetchAttachment resolves an attachment item by id. A missing item or a
// non-attachment id returns nil without error. Results are cached for the run.
func (c *Connector) FetchAttachment(ctx context.Context, id int64) (*member.Attachment, error) {
	if id <= 0 {
		return nil, nil
	}

	key := strconv.FormatInt(id, 10)
	if cached, found := c.attachments.Get(key); found {
		if att, ok := cached.(*member.Attachment); ok {
			return att, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	var posts []Post
	err := c.db.WithContext(ctx).
		Table(c.postsTable()).
		Where("ID = ? AND post_type = ?", id, attachmentPostType).
		Limit(1).
		Find(&posts).Error
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to fetch attachment %d: %w", id, err)).
			Component("legacy").
			Category(errors.CategoryLegacySource).
			Context("operation", "fetch_attachment").
			Build()
	}

	if len(posts) == 0 {
		c.attachments.Set(key, (*member.Attachment)(nil), cache.DefaultExpiration)
		return nil, nil
	}

	post := &posts[0]
	att := &member.Attachment{
		ID:       post.ID,
		URL:      post.GUID,
		Title:    post.PostTitle,
		MIMEType: post.PostMimeType,
	}

	if att.URL == "" {
		att.URL, err = c.attachedFilePath(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	c.attachments.Set(key, att, cache.DefaultExpiration)
	return att, nil
}

// attachedFilePath builds a root-relative uploads path from _wp_attached_file.
func (c *Connector) attachedFilePath(ctx context.Context, id int64) (string, error) {
	var rows []PostMeta
	err := c.db.WithContext(ctx).
		Table(c.metaTable()).
		Where("post_id = ? AND meta_key = ?", id, attachedFileKey).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return "", fmt.Errorf("failed to fetch attached file of %d: %w", id, err)
	}
	if len(rows) == 0 || rows[0].MetaValue == "" {
		return "", nil
	}
	return strings.TrimSuffix(c.cfg.UploadsPrefix, "/") + "/" + strings.TrimPrefix(rows[0].MetaValue, "/"), nil
}

// Close releases the legacy connection. Safe to call more than once.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		var sqlDB *sql.DB
		sqlDB, c.closeErr = c.db.DB()
		if c.closeErr != nil {
			return
		}
		c.closeErr = sqlDB.Close()
		c.attachments.Flush()
	})
	return c.closeErr
}
