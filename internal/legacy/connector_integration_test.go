//go:build integration

package legacy

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/logger"
)

// TestOpen_MySQL runs the connector against a real MySQL server.
// Run with: go test -tags integration ./internal/legacy/...
func TestOpen_MySQL(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("wordpress"),
		tcmysql.WithUsername("wp"),
		tcmysql.WithPassword("wp"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "charset=utf8mb4", "parseTime=True")
	require.NoError(t, err)

	seed, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, seed.Table("wp_posts").AutoMigrate(&Post{}))
	require.NoError(t, seed.Table("wp_postmeta").AutoMigrate(&PostMeta{}))
	require.NoError(t, seed.Table("wp_posts").Create(&Post{ID: 7, PostTitle: "Ana", PostStatus: "publish", PostType: "socio"}).Error)
	require.NoError(t, seed.Table("wp_postmeta").Create(&PostMeta{PostID: 7, MetaKey: "nombre", MetaValue: "Ana"}).Error)

	settings := &conf.Settings{
		Legacy: conf.LegacySettings{
			DSN:            dsn,
			TablePrefix:    "wp_",
			MemberPostType: "socio",
			Statuses:       []string{"publish", "private"},
		},
		Origin: conf.OriginSettings{UploadsPrefix: "/wp-content/uploads/"},
	}

	c, err := Open(ctx, settings, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	records, err := c.FetchMembers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	meta, err := c.FetchMetadata(ctx, []int64{records[0].ExternalID})
	require.NoError(t, err)
	assert.Equal(t, "Ana", meta[7]["nombre"])
}

func TestOpen_Unreachable(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	settings := &conf.Settings{Legacy: conf.LegacySettings{DSN: "wp:wp@tcp(127.0.0.1:1)/wordpress?timeout=1s"}}
	_, err := Open(ctx, settings, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	require.Error(t, err)
}
