package datastore

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/memberbridge/memberbridge/internal/conf"
	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gorm_logger.Default.LogMode(gorm_logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := New(db, testLogger())
	require.NoError(t, store.Migrate(t.Context()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mariaRecord() *member.Record {
	return &member.Record{
		ExternalID:              42,
		DisplayName:             "María Gómez",
		FirstName:               "María",
		LastName:                "Gómez",
		Email:                   "",
		Professions:             []string{"2D Animation", "Rigging"},
		ConsolidatedProfessions: []string{"2D Animation", "Rigging"},
		IsActive:                true,
		NewsletterConsent:       true,
		JobOffersConsent:        true,
	}
}

func resumeAsset(path string) *member.UploadedAsset {
	return &member.UploadedAsset{
		Type:             member.AssetResume,
		StoragePath:      path,
		PublicURL:        "https://files.example.org/" + path,
		Size:             1234,
		OriginalFilename: "cv_final.PDF",
		ContentType:      "application/pdf",
	}
}

func TestUpsert_MemberWithoutAssets(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	loader := NewLoader(store, 2, time.Millisecond, testLogger())

	res, err := loader.Upsert(t.Context(), mariaRecord(), &member.RelocatedAssets{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, res.Outcome)
	assert.NotZero(t, res.MemberID)
	assert.Zero(t, res.FilesWritten)

	got, err := store.MemberByLegacyID(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, "María", got.FirstName)
	assert.Equal(t, "Gómez", got.LastName)
	assert.Empty(t, got.Email)
	assert.Equal(t, []string{"2D Animation", "Rigging"}, got.ConsolidatedProfessions)
	assert.Nil(t, got.ProfileImageURL)
	assert.Nil(t, got.ResumeURL)
	assert.True(t, got.IsActive)

	files, err := store.Files(t.Context(), res.MemberID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUpsert_WritesProvenance(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	loader := NewLoader(store, 2, time.Millisecond, testLogger())

	rec := mariaRecord()
	rec.Social = map[string]string{"vimeo": "https://vimeo.com/maria"}
	assets := &member.RelocatedAssets{Resume: resumeAsset("resumes/42/0123456789abcdef.pdf")}

	res, err := loader.Upsert(t.Context(), rec, assets)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesWritten)
	assert.Empty(t, res.FileErrors)

	got, err := store.MemberByLegacyID(t.Context(), 42)
	require.NoError(t, err)
	require.NotNil(t, got.ResumeURL)
	assert.Equal(t, "https://files.example.org/resumes/42/0123456789abcdef.pdf", *got.ResumeURL)
	assert.Nil(t, got.ProfileImageURL)
	assert.Equal(t, map[string]string{"vimeo": "https://vimeo.com/maria"}, got.Social)

	files, err := store.Files(t.Context(), res.MemberID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "resume", files[0].FileType)
	assert.Equal(t, "cv_final.PDF", files[0].OriginalFilename)
	assert.Equal(t, int64(1234), files[0].FileSize)
	assert.True(t, files[0].Migrated)
}

func TestUpsert_DuplicateRepairsProvenance(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	loader := NewLoader(store, 2, time.Millisecond, testLogger())
	ctx := t.Context()

	first, err := loader.Upsert(ctx, mariaRecord(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, first.Outcome)

	// Re-run after an interrupted load: the member exists but has no files yet.
	assets := &member.RelocatedAssets{Resume: resumeAsset("resumes/42/aaaaaaaaaaaaaaaa.pdf")}
	second, err := loader.Upsert(ctx, mariaRecord(), assets)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.MemberID, second.MemberID)
	assert.Equal(t, 1, second.FilesWritten)

	// A third run with new content replaces the row instead of adding one.
	assets.Resume = resumeAsset("resumes/42/bbbbbbbbbbbbbbbb.pdf")
	third, err := loader.Upsert(ctx, mariaRecord(), assets)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, third.Outcome)

	files, err := store.Files(ctx, first.MemberID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "resumes/42/bbbbbbbbbbbbbbbb.pdf", files[0].StoragePath)

	var members int64
	require.NoError(t, store.DB.Model(&Member{}).Count(&members).Error)
	assert.Equal(t, int64(1), members)
}

func TestUpsert_ProvenanceFailureKeepsMember(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)
	loader := NewLoader(store, 2, time.Millisecond, testLogger())

	require.NoError(t, store.DB.Migrator().DropTable(&MemberFile{}))

	assets := &member.RelocatedAssets{Resume: resumeAsset("resumes/42/0123456789abcdef.pdf")}
	res, err := loader.Upsert(t.Context(), mariaRecord(), assets)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, res.Outcome)
	assert.Zero(t, res.FilesWritten)
	require.Len(t, res.FileErrors, 1)
	assert.True(t, errors.IsCategory(res.FileErrors[0], errors.CategoryDestination))

	_, err = store.MemberByLegacyID(t.Context(), 42)
	require.NoError(t, err, "member row is not rolled back")
}

func TestMemberByLegacyID_NotFound(t *testing.T) {
	t.Parallel()
	store := setupTestStore(t)

	_, err := store.MemberByLegacyID(t.Context(), 999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	settings := &conf.DestinationSettings{
		Driver:      conf.DriverSQLite,
		Path:        t.TempDir() + "/members.db",
		AutoMigrate: true,
	}
	store, err := Open(t.Context(), settings, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.True(t, store.DB.Migrator().HasTable(&Member{}))
	assert.True(t, store.DB.Migrator().HasTable(&MemberFile{}))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "close is idempotent")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(t.Context(), &conf.DestinationSettings{Driver: "oracle"}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
