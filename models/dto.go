package models

type OutfitImageIn struct {
	// base64 payloads, data-url prefix tolerated
	Thumbnail string `json:"thumbnail" validate:"required"`
	Original  string `json:"original"`
}

type OutfitCreateIn struct {
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Category    string          `json:"category" validate:"required"`
	Tags        []string        `json:"tags"`
	Images      []OutfitImageIn `json:"images" validate:"required,min=1,dive"`
}

type OutfitUpdateIn struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsFavorite  *bool   `json:"is_favorite"`
}

type OutfitOut struct {
	Id          uint           `json:"id"`
	CreatedAt   int64          `json:"created_at"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Category    OutfitCategory `json:"category"`
	IsFavorite  bool           `json:"is_favorite"`
	Tags        []string       `json:"tags"`
	// presigned display URLs, angle order
	Images []string `json:"images"`
	// presigned high-quality URLs, parallel to Images when present
	OriginalImages []string `json:"original_images"`
}

type OutfitListOut struct {
	Items      []OutfitOut `json:"items"`
	NextCursor *int64      `json:"next_cursor"`
}

type LocalClosetMigrateOut struct {
	Migrated bool `json:"migrated"`
	Imported int  `json:"imported"`
}

type AvatarIn struct {
	// base64 full body photo, data-url prefix tolerated
	Image string `json:"image" validate:"required"`
}

type GeneratorSelectIn struct {
	Image string `json:"image" validate:"required"`
}

type GeneratorCropIn struct {
	Image string `json:"image" validate:"required"`
}

type GeneratorSaveIn struct {
	Name string `json:"name"`
}

type GeneratorStatusOut struct {
	FlowStatus    string            `json:"flow_status"`
	CurrentAngle  string            `json:"current_angle"`
	StatusText    string            `json:"status_text"`
	Progress      int               `json:"progress"`
	Images        map[string]string `json:"images"`
	AngleStatuses map[string]string `json:"angle_statuses"`
	Error         *string           `json:"error"`
}
