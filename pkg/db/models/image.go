package models

import "time"

// Image is one stored image asset bound to an owner entity. The owner is
// referenced polymorphically through the model discriminator plus object id.
type Image struct {
	ID       uint    `gorm:"column:id;primaryKey;autoIncrement"`
	Model    string  `gorm:"column:model;not null;uniqueIndex:ux_images_owner_filename;uniqueIndex:images_main_index"`
	ObjectID string  `gorm:"column:object_id;not null;uniqueIndex:ux_images_owner_filename;uniqueIndex:images_main_index"`
	Filename string  `gorm:"column:filename;not null;uniqueIndex:ux_images_owner_filename"`
	Format   *string `gorm:"column:format"`
	Type     *string `gorm:"column:type;uniqueIndex:images_main_index"`
	Language *string `gorm:"column:language;size:5;uniqueIndex:images_main_index"`
	Main     bool    `gorm:"column:main;not null;default:false"`
	Position int     `gorm:"column:position;not null;default:0;uniqueIndex:images_main_index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Image) TableName() string { return "images" }

func (i *Image) IsMain() bool { return i != nil && i.Main }

// IsSVG reports whether the stored original is a vector image. SVG assets are
// exempt from every raster transform and format rewrite.
func (i *Image) IsSVG() bool {
	return i != nil && i.Format != nil && *i.Format == "svg"
}

// TypeValue returns the category tag or "" when untyped.
func (i *Image) TypeValue() string {
	if i == nil || i.Type == nil {
		return ""
	}
	return *i.Type
}

// LanguageValue returns the locale tag or "" for any-language assets.
func (i *Image) LanguageValue() string {
	if i == nil || i.Language == nil {
		return ""
	}
	return *i.Language
}

// FormatValue returns the lowercase extension of the original or "".
func (i *Image) FormatValue() string {
	if i == nil || i.Format == nil {
		return ""
	}
	return *i.Format
}
