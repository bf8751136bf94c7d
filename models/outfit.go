package models

import "github.com/lib/pq"

type OutfitCategory string

const (
	CategoryParty   OutfitCategory = "PARTY"
	CategoryCasual  OutfitCategory = "CASUAL"
	CategoryFormal  OutfitCategory = "FORMAL"
	CategoryEthnic  OutfitCategory = "ETHNIC"
	CategoryUnknown OutfitCategory = "UNKNOWN"
)

// KnownCategory maps free-form LLM output onto the closet categories,
// falling back to UNKNOWN for anything unexpected.
func KnownCategory(raw string) OutfitCategory {
	switch OutfitCategory(raw) {
	case CategoryParty, CategoryCasual, CategoryFormal, CategoryEthnic:
		return OutfitCategory(raw)
	}
	return CategoryUnknown
}

const (
	OutfitImageThumbnail = "thumbnail"
	OutfitImageOriginal  = "original"
)

type Outfit struct {
	JsonModel
	Name        string         `json:"name"`
	Description *string        `gorm:"type:text" json:"description"`
	Category    OutfitCategory `json:"category"`
	IsFavorite  bool           `gorm:"default:false" json:"is_favorite"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags"`
	Owner       UserAccount    `json:"-"`
	OwnerID     uint           `gorm:"index" json:"-"`
	Items       []OutfitItem   `json:"items"`
}

// OutfitItem is one stored render of an outfit. Items of the same type are
// ordered by SortOrder, matching the Front/Right/Back/Left angle order of
// fully generated outfits.
type OutfitItem struct {
	JsonModel
	OutfitID  uint   `gorm:"index" json:"-"`
	Outfit    Outfit `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ImagePath string `json:"-"`
	Type      string `json:"type"` // thumbnail, original
	SortOrder int    `json:"sort_order"`
}

type AvatarTryOn struct {
	JsonModel
	UserAccountID uint        `json:"-"`
	UserAccount   UserAccount `json:"-"`
	OutfitID      uint        `json:"outfit_id"`
	Outfit        Outfit      `json:"-"`

	Status          string  `json:"status"` // pending, completed, failed
	ResultImagePath *string `json:"-"`
	ResultImageURL  *string `gorm:"-" json:"result_image_url"`
	RetryTimes      int     `json:"retry_times"`
	ErrorMessage    *string `json:"error_message"`
}
