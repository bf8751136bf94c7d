package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"dripapi/models"
)

// localOutfit mirrors the browser-era closet export row.
type localOutfit struct {
	Name           string   `json:"name"`
	Description    *string  `json:"description"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Images         []string `json:"images"`
	OriginalImages []string `json:"originalImages"`
	IsFavorite     bool     `json:"isFavorite"`
}

// MigrateLocalCloset imports a legacy on-disk closet export into the user's
// closet, once. A sibling "<path>.migrated" flag file marks completion; a
// crash mid-run leaves the flag unset so the import reruns (at-least-once).
func (s *OutfitService) MigrateLocalCloset(ctx context.Context, ownerID uint, exportPath string) (*models.LocalClosetMigrateOut, error) {
	flagPath := exportPath + ".migrated"
	if _, err := os.Stat(flagPath); err == nil {
		return &models.LocalClosetMigrateOut{Migrated: false, Imported: 0}, nil
	}

	raw, err := os.ReadFile(exportPath)
	if errors.Is(err, os.ErrNotExist) {
		// nothing to migrate counts as migrated
		if err := os.WriteFile(flagPath, []byte("true"), 0644); err != nil {
			return nil, fmt.Errorf("failed to write migration flag: %v", err)
		}
		return &models.LocalClosetMigrateOut{Migrated: true, Imported: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read closet export: %v", err)
	}

	var localOutfits []localOutfit
	if err := json.Unmarshal(raw, &localOutfits); err != nil {
		return nil, fmt.Errorf("failed to parse closet export: %v", err)
	}

	imported := 0
	for i, outfit := range localOutfits {
		// rows without originals were previews only, skip them like the app did
		if len(outfit.OriginalImages) == 0 {
			continue
		}
		name := outfit.Name
		if name == "" {
			name = "Migrated Outfit"
		}
		images := make([]models.OutfitImageIn, 0, len(outfit.Images))
		for j, thumbnail := range outfit.Images {
			image := models.OutfitImageIn{Thumbnail: thumbnail}
			if j < len(outfit.OriginalImages) {
				image.Original = outfit.OriginalImages[j]
			}
			images = append(images, image)
		}
		_, err := s.CreateOutfit(ctx, ownerID, models.OutfitCreateIn{
			Name:        name,
			Description: outfit.Description,
			Category:    outfit.Category,
			Tags:        outfit.Tags,
			Images:      images,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to migrate outfit %d: %v", i, err)
		}
		imported++
	}

	if err := os.WriteFile(flagPath, []byte("true"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write migration flag: %v", err)
	}
	fmt.Printf("[Migration] imported %d outfits for user %d\n", imported, ownerID)
	return &models.LocalClosetMigrateOut{Migrated: true, Imported: imported}, nil
}
