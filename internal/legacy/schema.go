package legacy

// Post mirrors the columns of the legacy posts table that the migration reads.
// Member items and attachments live in the same table, told apart by PostType.
type Post struct {
	ID           int64  `gorm:"column:ID;primaryKey;autoIncrement"`
	PostTitle    string `gorm:"column:post_title;type:text"`
	PostContent  string `gorm:"column:post_content;type:longtext"`
	PostStatus   string `gorm:"column:post_status;size:20;index"`
	PostType     string `gorm:"column:post_type;size:20;index"`
	GUID         string `gorm:"column:guid;size:255"`
	PostMimeType string `gorm:"column:post_mime_type;size:100"`
	PostParent   int64  `gorm:"column:post_parent;index"`
}

// PostMeta mirrors one row of the legacy postmeta key/value table.
type PostMeta struct {
	MetaID    int64  `gorm:"column:meta_id;primaryKey;autoIncrement"`
	PostID    int64  `gorm:"column:post_id;index"`
	MetaKey   string `gorm:"column:meta_key;size:255;index"`
	MetaValue string `gorm:"column:meta_value;type:longtext"`
}

const (
	attachmentPostType = "attachment"

	// attachedFileKey holds the uploads-relative path of an attachment.
	attachedFileKey = "_wp_attached_file"

	// acfFieldKeyPrefix marks ACF shadow values ("_nombre" => "field_5f3a...").
	acfFieldKeyPrefix = "field_"
)
