package datastore

import (
	"context"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/memberbridge/memberbridge/internal/errors"
	"github.com/memberbridge/memberbridge/internal/logger"
	"github.com/memberbridge/memberbridge/internal/member"
)

// Outcome of loading one member.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
)

// LoadResult describes what Upsert wrote.
type LoadResult struct {
	Outcome  Outcome
	MemberID uint
	// FilesWritten counts provenance rows inserted or repaired.
	FilesWritten int
	// FileErrors holds provenance failures; the member row is kept regardless.
	FileErrors []error
}

// Loader inserts members and their provenance rows.
type Loader struct {
	store         *Store
	retryAttempts uint
	retryDelay    time.Duration
	log           logger.Logger
}

// NewLoader creates a Loader. retryAttempts bounds provenance write attempts.
func NewLoader(store *Store, retryAttempts uint, retryDelay time.Duration, log logger.Logger) *Loader {
	if retryAttempts == 0 {
		retryAttempts = 1
	}
	return &Loader{store: store, retryAttempts: retryAttempts, retryDelay: retryDelay, log: log}
}

// Upsert inserts the member row and then one provenance row per relocated asset.
// An existing row for the same legacy id yields OutcomeDuplicate; its provenance
// rows are still upserted so members orphaned by an interrupted run get repaired.
func (l *Loader) Upsert(ctx context.Context, rec *member.Record, assets *member.RelocatedAssets) (*LoadResult, error) {
	log := l.log.With(logger.Int64("external_id", rec.ExternalID))
	db := l.store.DB.WithContext(ctx)

	row := NewMember(rec, assets)
	result := &LoadResult{Outcome: OutcomeInserted}

	err := db.Create(row).Error
	switch {
	case err == nil:
		result.MemberID = row.ID
	case errors.Is(err, gorm.ErrDuplicatedKey):
		result.Outcome = OutcomeDuplicate
		var existing Member
		if err := db.Select("id").Where("legacy_id = ?", rec.ExternalID).First(&existing).Error; err != nil {
			return nil, l.loadError(err, rec, "find_existing")
		}
		result.MemberID = existing.ID
		log.Info("member already migrated", logger.Int64("member_id", int64(existing.ID)))
	default:
		return nil, l.loadError(err, rec, "insert_member")
	}

	if assets == nil {
		return result, nil
	}
	for _, asset := range assets.All() {
		if err := l.upsertFile(ctx, result.MemberID, asset); err != nil {
			log.Warn("provenance write failed",
				logger.String("asset_type", string(asset.Type)),
				logger.String("storage_path", asset.StoragePath),
				logger.Error(err))
			result.FileErrors = append(result.FileErrors, l.loadError(err, rec, "upsert_member_file"))
			continue
		}
		result.FilesWritten++
	}
	return result, nil
}

// upsertFile writes one provenance row keyed on (member_id, file_type).
func (l *Loader) upsertFile(ctx context.Context, memberID uint, asset *member.UploadedAsset) error {
	file := NewMemberFile(memberID, asset)
	return retry.Do(
		func() error {
			return l.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "member_id"}, {Name: "file_type"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"original_filename", "storage_path", "public_url",
					"file_size", "content_type", "migrated", "updated_at",
				}),
			}).Create(file).Error
		},
		retry.Context(ctx),
		retry.Attempts(l.retryAttempts),
		retry.Delay(l.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (l *Loader) loadError(err error, rec *member.Record, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDestination).
		MemberContext(strconv.FormatInt(rec.ExternalID, 10), "load").
		Context("operation", operation).
		Build()
}

// Files returns the provenance rows of a member, for reporting and tests.
func (s *Store) Files(ctx context.Context, memberID uint) ([]MemberFile, error) {
	var files []MemberFile
	if err := s.DB.WithContext(ctx).Where("member_id = ?", memberID).Order("file_type").Find(&files).Error; err != nil {
		return nil, dbError(err, "list_member_files", "member_id", memberID)
	}
	return files, nil
}

// MemberByLegacyID looks a member up by its legacy id.
func (s *Store) MemberByLegacyID(ctx context.Context, legacyID int64) (*Member, error) {
	var m Member
	err := s.DB.WithContext(ctx).Where("legacy_id = ?", legacyID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf("member with legacy id %d not found", legacyID).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "find_member", "legacy_id", legacyID)
	}
	return &m, nil
}
