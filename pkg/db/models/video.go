package models

import "time"

// Video is one stored video asset bound to an owner entity. A video is either
// local (Filename set, bytes on disk) or remote (URL set, nothing stored).
type Video struct {
	ID       uint    `gorm:"column:id;primaryKey;autoIncrement"`
	Model    string  `gorm:"column:model;not null;uniqueIndex:ux_videos_owner_filename;uniqueIndex:videos_main_index"`
	ObjectID string  `gorm:"column:object_id;not null;uniqueIndex:ux_videos_owner_filename;uniqueIndex:videos_main_index"`
	Filename *string `gorm:"column:filename;uniqueIndex:ux_videos_owner_filename"`
	URL      *string `gorm:"column:url"`
	Format   *string `gorm:"column:format"`
	Type     *string `gorm:"column:type;uniqueIndex:videos_main_index"`
	Language *string `gorm:"column:language;size:5;uniqueIndex:videos_main_index"`
	Main     bool    `gorm:"column:main;not null;default:false"`
	Position int     `gorm:"column:position;not null;default:0;uniqueIndex:videos_main_index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Video) TableName() string { return "videos" }

func (v *Video) IsMain() bool { return v != nil && v.Main }

// IsLocal reports whether the asset's bytes live on a disk managed by this
// system. Remote videos only carry a hosting URL.
func (v *Video) IsLocal() bool {
	return v != nil && (v.URL == nil || *v.URL == "")
}

// FilenameValue returns the stored filename or "" for remote videos.
func (v *Video) FilenameValue() string {
	if v == nil || v.Filename == nil {
		return ""
	}
	return *v.Filename
}

// TypeValue returns the category tag or "" when untyped.
func (v *Video) TypeValue() string {
	if v == nil || v.Type == nil {
		return ""
	}
	return *v.Type
}

// LanguageValue returns the locale tag or "" for any-language assets.
func (v *Video) LanguageValue() string {
	if v == nil || v.Language == nil {
		return ""
	}
	return *v.Language
}

// FormatValue returns the lowercase extension of the original or "".
func (v *Video) FormatValue() string {
	if v == nil || v.Format == nil {
		return ""
	}
	return *v.Format
}
