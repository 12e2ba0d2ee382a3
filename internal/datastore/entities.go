package datastore

import (
	"time"

	"github.com/memberbridge/memberbridge/internal/member"
)

// Member is a row of the destination members table, unique on the legacy id.
type Member struct {
	ID       uint   `gorm:"primaryKey"`
	LegacyID int64  `gorm:"column:legacy_id;uniqueIndex;not null"`
	UserID   *int64 `gorm:"index"`

	DisplayName string `gorm:"size:255"`
	FirstName   string `gorm:"size:255"`
	LastName    string `gorm:"size:255"`
	Email       string `gorm:"size:255;index"`
	Phone       string `gorm:"size:64"`
	Website     string `gorm:"size:512"`

	Professions             []string `gorm:"serializer:json;type:text"`
	OtherProfessions        []string `gorm:"serializer:json;type:text"`
	ConsolidatedProfessions []string `gorm:"serializer:json;type:text"`
	OtherAssociations       []string `gorm:"serializer:json;type:text"`
	Company                 string   `gorm:"size:255"`
	ExperienceYears         int
	Biography               string `gorm:"type:text"`

	Address    string `gorm:"size:255"`
	PostalCode string `gorm:"size:32"`
	City       string `gorm:"size:128"`
	Province   string `gorm:"size:128"`
	Country    string `gorm:"size:128"`

	Social map[string]string `gorm:"serializer:json;type:text"`

	MembershipType string `gorm:"size:64"`
	IsActive       bool
	IsBoardMember  bool
	IsHonorary     bool
	PublicProfile  bool

	NewsletterConsent bool
	JobOffersConsent  bool
	PrivacyConsent    bool

	ProfileImageURL *string `gorm:"size:1024"`
	ResumeURL       *string `gorm:"size:1024"`

	Files []MemberFile `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemberFile records where a relocated legacy asset now lives. There is at most
// one row per member and file type.
type MemberFile struct {
	ID               uint   `gorm:"primaryKey"`
	MemberID         uint   `gorm:"uniqueIndex:idx_member_files_member_type;not null"`
	FileType         string `gorm:"uniqueIndex:idx_member_files_member_type;size:32;not null"`
	OriginalFilename string `gorm:"size:255"`
	StoragePath      string `gorm:"size:512;not null"`
	PublicURL        string `gorm:"size:1024"`
	FileSize         int64
	ContentType      string `gorm:"size:128"`
	Migrated         bool   `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMember maps a normalized record and its relocated assets onto a row.
// Slots without a relocated asset get NULL URLs.
func NewMember(rec *member.Record, assets *member.RelocatedAssets) *Member {
	m := &Member{
		LegacyID:                rec.ExternalID,
		UserID:                  rec.UserID,
		DisplayName:             rec.DisplayName,
		FirstName:               rec.FirstName,
		LastName:                rec.LastName,
		Email:                   rec.Email,
		Phone:                   rec.Phone,
		Website:                 rec.Website,
		Professions:             rec.Professions,
		OtherProfessions:        rec.OtherProfessions,
		ConsolidatedProfessions: rec.ConsolidatedProfessions,
		OtherAssociations:       rec.OtherAssociations,
		Company:                 rec.Company,
		ExperienceYears:         rec.ExperienceYears,
		Biography:               rec.Biography,
		Address:                 rec.Address,
		PostalCode:              rec.PostalCode,
		City:                    rec.City,
		Province:                rec.Province,
		Country:                 rec.Country,
		Social:                  rec.Social,
		MembershipType:          rec.MembershipType,
		IsActive:                rec.IsActive,
		IsBoardMember:           rec.IsBoardMember,
		IsHonorary:              rec.IsHonorary,
		PublicProfile:           rec.PublicProfile,
		NewsletterConsent:       rec.NewsletterConsent,
		JobOffersConsent:        rec.JobOffersConsent,
		PrivacyConsent:          rec.PrivacyConsent,
	}
	if assets != nil {
		if a := assets.ProfileImage; a != nil {
			m.ProfileImageURL = &a.PublicURL
		}
		if a := assets.Resume; a != nil {
			m.ResumeURL = &a.PublicURL
		}
	}
	return m
}

// NewMemberFile builds the provenance row of one relocated asset.
func NewMemberFile(memberID uint, asset *member.UploadedAsset) *MemberFile {
	return &MemberFile{
		MemberID:         memberID,
		FileType:         string(asset.Type),
		OriginalFilename: asset.OriginalFilename,
		StoragePath:      asset.StoragePath,
		PublicURL:        asset.PublicURL,
		FileSize:         asset.Size,
		ContentType:      asset.ContentType,
		Migrated:         true,
	}
}
