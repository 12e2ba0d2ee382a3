package legacy

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/memberbridge/memberbridge/internal/logger"
)

func testConfig() Config {
	return Config{
		TablePrefix:          "wp_",
		MemberPostType:       "socio",
		Statuses:             []string{"publish", "private"},
		ExcludedMetaPrefixes: []string{"_edit_", "_wp_", "_oembed"},
		UploadsPrefix:        "/wp-content/uploads/",
	}
}

// setupLegacyDB creates an in-memory legacy schema seeded with a few members.
func setupLegacyDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: databases are per connection
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Table("wp_posts").AutoMigrate(&Post{}))
	require.NoError(t, db.Table("wp_postmeta").AutoMigrate(&PostMeta{}))

	posts := []Post{
		{ID: 10, PostTitle: "María Gómez", PostStatus: "publish", PostType: "socio"},
		{ID: 11, PostTitle: "Draft Member", PostStatus: "draft", PostType: "socio"},
		{ID: 12, PostTitle: "Private Member", PostStatus: "private", PostType: "socio"},
		{ID: 13, PostTitle: "About us", PostStatus: "publish", PostType: "page"},
		{ID: 20, PostTitle: "foto-maria", PostStatus: "inherit", PostType: "attachment",
			GUID: "https://asociacion.example.org/wp-content/uploads/2021/03/foto.jpg", PostMimeType: "image/jpeg"},
		{ID: 21, PostTitle: "cv-sin-guid", PostStatus: "inherit", PostType: "attachment", PostMimeType: "application/pdf"},
	}
	require.NoError(t, db.Table("wp_posts").Create(&posts).Error)

	meta := []PostMeta{
		{PostID: 10, MetaKey: "nombre", MetaValue: "María"},
		{PostID: 10, MetaKey: "_nombre", MetaValue: "field_5f3a1b2c"},
		{PostID: 10, MetaKey: "_edit_lock", MetaValue: "1690000000:1"},
		{PostID: 10, MetaKey: "_thumbnail_id", MetaValue: "20"},
		{PostID: 10, MetaKey: "email", MetaValue: ""},
		{PostID: 10, MetaKey: "nombre", MetaValue: "Duplicate"},
		{PostID: 12, MetaKey: "apellidos", MetaValue: "Pérez"},
		{PostID: 21, MetaKey: "_wp_attached_file", MetaValue: "2020/01/cv.pdf"},
	}
	require.NoError(t, db.Table("wp_postmeta").Create(&meta).Error)

	return db
}

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	c := New(setupLegacyDB(t), testConfig(), logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetchMembers(t *testing.T) {
	t.Parallel()
	c := newTestConnector(t)

	records, err := c.FetchMembers(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(10), records[0].ExternalID)
	assert.Equal(t, "María Gómez", records[0].Title)
	assert.Equal(t, "publish", records[0].Status)
	assert.Equal(t, int64(12), records[1].ExternalID)
}

func TestFetchMembers_ByIDs(t *testing.T) {
	t.Parallel()
	c := newTestConnector(t)

	records, err := c.FetchMembers(t.Context(), []int64{12, 11, 999})
	require.NoError(t, err)
	require.Len(t, records, 1, "drafts and unknown ids are not returned")
	assert.Equal(t, int64(12), records[0].ExternalID)
}

func TestFetchMetadata(t *testing.T) {
	t.Parallel()
	c := newTestConnector(t)

	meta, err := c.FetchMetadata(t.Context(), []int64{10, 12})
	require.NoError(t, err)

	maria := meta[10]
	assert.Equal(t, "María", maria["nombre"], "first row wins for repeated keys")
	assert.Equal(t, "20", maria["_thumbnail_id"])
	assert.Contains(t, maria, "email")
	assert.NotContains(t, maria, "_nombre", "ACF shadow keys are internal")
	assert.NotContains(t, maria, "_edit_lock")
	assert.Equal(t, "Pérez", meta[12]["apellidos"])
}

func TestFetchMetadata_EmptyIDs(t *testing.T) {
	t.Parallel()
	c := newTestConnector(t)

	_, err := c.FetchMetadata(t.Context(), nil)
	require.Error(t, err)
}

func TestFetchAttachment(t *testing.T) {
	t.Parallel()
	c := newTestConnector(t)

	att, err := c.FetchAttachment(t.Context(), 20)
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, "https://asociacion.example.org/wp-content/uploads/2021/03/foto.jpg", att.URL)
	assert.Equal(t, "image/jpeg", att.MIMEType)
	assert.Equal(t, "foto-maria", att.Title)

	fallback, err := c.FetchAttachment(t.Context(), 21)
	require.NoError(t, err)
	require.NotNil(t, fallback)
	assert.Equal(t, "/wp-content/uploads/2020/01/cv.pdf", fallback.URL)

	for _, id := range []int64{10, 999, 0, -3} {
		att, err := c.FetchAttachment(t.Context(), id)
		require.NoError(t, err)
		assert.Nil(t, att, "id %d is not an attachment", id)
	}
}

func TestFetchAttachment_Cached(t *testing.T) {
	t.Parallel()
	c := newTestConnector(t)

	first, err := c.FetchAttachment(t.Context(), 20)
	require.NoError(t, err)

	require.NoError(t, c.db.Table("wp_posts").Where("ID = ?", 20).Update("guid", "changed").Error)

	second, err := c.FetchAttachment(t.Context(), 20)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()
	c := New(setupLegacyDB(t), testConfig(), logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
