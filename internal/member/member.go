// Package member defines the records that flow through the migration pipeline,
// from the raw legacy snapshot to the relocated assets loaded at the destination.
package member

// LegacyRecord is an immutable snapshot of one member item in the legacy store.
type LegacyRecord struct {
	ExternalID int64             `json:"external_id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Status     string            `json:"status"`
	Metadata   map[string]string `json:"metadata"`
}

// Attachment is a legacy attachment item resolved by numeric id.
type Attachment struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	MIMEType string `json:"mime_type"`
}

// AssetType distinguishes the two asset slots a member can carry.
type AssetType string

const (
	AssetProfileImage AssetType = "profile_image"
	AssetResume       AssetType = "resume"
)

// StorageFolder is the top-level object store folder for the asset type.
func (t AssetType) StorageFolder() string {
	switch t {
	case AssetProfileImage:
		return "profile-images"
	case AssetResume:
		return "resumes"
	default:
		return "other"
	}
}

// AssetReference points at exactly one legacy asset. It is never persisted.
type AssetReference struct {
	SourceURL string `json:"source_url"`
	Filename  string `json:"filename"`
	MIMEType  string `json:"mime_type,omitempty"`
}

// UploadedAsset is the outcome of relocating one asset.
type UploadedAsset struct {
	Type             AssetType `json:"type"`
	StoragePath      string    `json:"storage_path"`
	PublicURL        string    `json:"public_url"`
	Size             int64     `json:"size"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	Reused           bool      `json:"reused,omitempty"` // object already existed under the same key
}

// Record is the typed, normalized member.
type Record struct {
	ExternalID int64  `json:"external_id"`
	UserID     *int64 `json:"user_id,omitempty"`

	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Website     string `json:"website,omitempty"`

	Professions             []string `json:"professions,omitempty"`
	OtherProfessions        []string `json:"other_professions,omitempty"`
	ConsolidatedProfessions []string `json:"consolidated_professions,omitempty"`
	OtherAssociations       []string `json:"other_associations,omitempty"`
	Company                 string   `json:"company,omitempty"`
	ExperienceYears         int      `json:"experience_years,omitempty"`
	Biography               string   `json:"biography,omitempty"`

	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`

	// Social maps platform to URL and never holds empty values.
	Social map[string]string `json:"social,omitempty"`

	MembershipType string `json:"membership_type,omitempty"`
	IsActive       bool   `json:"is_active"`
	IsBoardMember  bool   `json:"is_board_member"`
	IsHonorary     bool   `json:"is_honorary"`
	PublicProfile  bool   `json:"public_profile"`

	NewsletterConsent bool `json:"newsletter_consent"`
	JobOffersConsent  bool `json:"job_offers_consent"`
	PrivacyConsent    bool `json:"privacy_consent"`

	ProfileImage *AssetReference `json:"profile_image,omitempty"`
	Resume       *AssetReference `json:"resume,omitempty"`
}

// Reference returns the asset reference held in the slot for t.
func (r *Record) Reference(t AssetType) *AssetReference {
	switch t {
	case AssetProfileImage:
		return r.ProfileImage
	case AssetResume:
		return r.Resume
	}
	return nil
}

// RelocatedAssets holds the upload results for a member; nil slots were not relocated.
type RelocatedAssets struct {
	ProfileImage *UploadedAsset `json:"profile_image,omitempty"`
	Resume       *UploadedAsset `json:"resume,omitempty"`
}

// Set stores asset in the slot matching its type.
func (a *RelocatedAssets) Set(asset *UploadedAsset) {
	if asset == nil {
		return
	}
	switch asset.Type {
	case AssetProfileImage:
		a.ProfileImage = asset
	case AssetResume:
		a.Resume = asset
	}
}

// All returns the non-nil assets in a stable order.
func (a *RelocatedAssets) All() []*UploadedAsset {
	var out []*UploadedAsset
	if a.ProfileImage != nil {
		out = append(out, a.ProfileImage)
	}
	if a.Resume != nil {
		out = append(out, a.Resume)
	}
	return out
}

// AssetTypes lists the slots in processing order.
var AssetTypes = []AssetType{AssetProfileImage, AssetResume}
