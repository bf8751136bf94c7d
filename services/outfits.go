package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"dripapi/models"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"
)

// OutfitService is the persistence layer for the closet: paginated listing,
// transactional-ish creation with storage compensation, sparse updates and
// deletion with best-effort object cleanup.
type OutfitService struct {
	DB         *gorm.DB
	AWS        AWSServiceProvider
	URLCache   URLCacheServiceProvider
	BucketName string
}

const defaultPageSize = 20
const maxPageSize = 50

// GeneratedOutfitName builds the fallback display name used when an outfit
// is saved without one.
func GeneratedOutfitName(category models.OutfitCategory) string {
	return fmt.Sprintf("%s Style #%d", category, 100+rand.Intn(900))
}

// ListOutfits pages the owner's closet newest first. The cursor is the
// created_at of the last row of the previous page in epoch micros, matching
// the microsecond precision postgres stores so no sibling row falls between
// the cursor and the true boundary; a nil next cursor means the closet is
// exhausted.
func (s *OutfitService) ListOutfits(ctx context.Context, ownerID uint, limit int, cursor *int64) (*models.OutfitListOut, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := s.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("outfit_items.sort_order asc")
		}).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Limit(limit)
	if cursor != nil {
		query = query.Where("created_at < ?", time.UnixMicro(*cursor))
	}

	var outfits []models.Outfit
	if result := query.Find(&outfits); result.Error != nil {
		return nil, result.Error
	}

	items, err := s.populateOutfits(ctx, outfits)
	if err != nil {
		return nil, err
	}

	out := &models.OutfitListOut{Items: items}
	// a full page means there may be more rows behind it
	if len(outfits) == limit {
		last := outfits[len(outfits)-1].CreatedAt.UnixMicro()
		out.NextCursor = &last
	}
	return out, nil
}

// populateOutfits resolves every stored image path of the given outfits into
// presigned URLs with one batched cache call. Paths that could not be signed
// are skipped rather than failing the listing.
func (s *OutfitService) populateOutfits(ctx context.Context, outfits []models.Outfit) ([]models.OutfitOut, error) {
	var allPaths []string
	for _, outfit := range outfits {
		for _, item := range outfit.Items {
			allPaths = append(allPaths, item.ImagePath)
		}
	}
	urls, err := s.URLCache.GetReadURLs(ctx, allPaths)
	if err != nil {
		return nil, err
	}

	items := make([]models.OutfitOut, 0, len(outfits))
	for _, outfit := range outfits {
		items = append(items, buildOutfitOut(outfit, urls))
	}
	return items, nil
}

func buildOutfitOut(outfit models.Outfit, urls map[string]string) models.OutfitOut {
	out := models.OutfitOut{
		Id:          outfit.ID,
		CreatedAt:   outfit.CreatedAt.UnixMilli(),
		Name:        outfit.Name,
		Description: outfit.Description,
		Category:    outfit.Category,
		IsFavorite:  outfit.IsFavorite,
		Tags:        outfit.Tags,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	for _, item := range outfit.Items {
		url, ok := urls[item.ImagePath]
		if !ok {
			continue
		}
		switch item.Type {
		case models.OutfitImageThumbnail:
			out.Images = append(out.Images, url)
		case models.OutfitImageOriginal:
			out.OriginalImages = append(out.OriginalImages, url)
		}
	}
	return out
}

type pendingUpload struct {
	path      string
	data      []byte
	mimeType  string
	imageType string
	sortOrder int
}

// CreateOutfit persists a new outfit as a small saga: insert the record,
// upload every image, insert the item rows. Any failure rolls the whole
// thing back, removing already-uploaded objects and the parent record.
func (s *OutfitService) CreateOutfit(ctx context.Context, ownerID uint, in models.OutfitCreateIn) (*models.OutfitOut, error) {
	category := models.KnownCategory(in.Category)
	name := in.Name
	if name == "" {
		name = GeneratedOutfitName(category)
	}

	outfit := models.Outfit{
		Name:        name,
		Description: in.Description,
		Category:    category,
		Tags:        in.Tags,
		OwnerID:     ownerID,
	}

	// decode everything up front so a bad payload never reaches storage
	var uploads []pendingUpload
	for i, image := range in.Images {
		thumbData, thumbMime, err := DecodeBase64Image(image.Thumbnail)
		if err != nil {
			return nil, fmt.Errorf("image %d: %v", i, err)
		}
		uploads = append(uploads, pendingUpload{data: thumbData, mimeType: thumbMime, imageType: models.OutfitImageThumbnail, sortOrder: i})
		if image.Original != "" {
			origData, origMime, err := DecodeBase64Image(image.Original)
			if err != nil {
				return nil, fmt.Errorf("original image %d: %v", i, err)
			}
			uploads = append(uploads, pendingUpload{data: origData, mimeType: origMime, imageType: models.OutfitImageOriginal, sortOrder: i})
		}
	}

	if result := s.DB.WithContext(ctx).Create(&outfit); result.Error != nil {
		return nil, result.Error
	}

	now := time.Now().UnixMilli()
	for i := range uploads {
		ext := MimeExtension(uploads[i].mimeType)
		uploads[i].path = fmt.Sprintf("%d/%d/%d_%d_%s.%s", ownerID, outfit.ID, now, uploads[i].sortOrder, uploads[i].imageType, ext)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var uploaded []string
	var firstErr error
	for _, upload := range uploads {
		wg.Add(1)
		go func(u pendingUpload) {
			defer wg.Done()
			err := s.AWS.Upload(ctx, s.BucketName, u.path, u.data)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			uploaded = append(uploaded, u.path)
		}(upload)
	}
	wg.Wait()

	if firstErr != nil {
		s.compensateCreate(ctx, outfit.ID, uploaded)
		return nil, fmt.Errorf("failed to upload outfit images: %v", firstErr)
	}

	items := make([]models.OutfitItem, 0, len(uploads))
	for _, upload := range uploads {
		items = append(items, models.OutfitItem{
			OutfitID:  outfit.ID,
			ImagePath: upload.path,
			Type:      upload.imageType,
			SortOrder: upload.sortOrder,
		})
	}
	if result := s.DB.WithContext(ctx).Create(&items); result.Error != nil {
		s.compensateCreate(ctx, outfit.ID, uploaded)
		return nil, result.Error
	}
	outfit.Items = items

	urls, err := s.URLCache.GetReadURLs(ctx, collectPaths(items))
	if err != nil {
		// the outfit exists, a signing hiccup should not undo it
		fmt.Printf("[Outfit: %v] failed to sign urls after create: %v\n", outfit.ID, err)
		urls = map[string]string{}
	}
	out := buildOutfitOut(outfit, urls)
	return &out, nil
}

// compensateCreate undoes a half-finished create. Object removal tolerates
// already-deleted keys, so a second pass is safe.
func (s *OutfitService) compensateCreate(ctx context.Context, outfitID uint, uploaded []string) {
	if err := s.AWS.Remove(ctx, s.BucketName, uploaded); err != nil {
		fmt.Printf("[Outfit: %v] compensation cleanup failed: %v\n", outfitID, err)
		sentry.CaptureException(fmt.Errorf("[Outfit: %v] compensation cleanup failed: %w", outfitID, err))
	}
	if result := s.DB.WithContext(ctx).Delete(&models.Outfit{}, outfitID); result.Error != nil {
		fmt.Printf("[Outfit: %v] compensation record delete failed: %v\n", outfitID, result.Error)
		sentry.CaptureException(fmt.Errorf("[Outfit: %v] compensation record delete failed: %w", outfitID, result.Error))
	}
}

func collectPaths(items []models.OutfitItem) []string {
	paths := make([]string, 0, len(items))
	for _, item := range items {
		paths = append(paths, item.ImagePath)
	}
	return paths
}

// UpdateOutfit applies only the provided fields, scoped to the owner.
func (s *OutfitService) UpdateOutfit(ctx context.Context, ownerID uint, outfitID uint, in models.OutfitUpdateIn) (*models.Outfit, error) {
	var outfit models.Outfit
	result := s.DB.WithContext(ctx).Where("id = ? and owner_id = ?", outfitID, ownerID).First(&outfit)
	if result.Error != nil {
		return nil, result.Error
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.IsFavorite != nil {
		updates["is_favorite"] = *in.IsFavorite
	}
	if len(updates) == 0 {
		return &outfit, nil
	}
	if result := s.DB.WithContext(ctx).Model(&outfit).Updates(updates); result.Error != nil {
		return nil, result.Error
	}
	return &outfit, nil
}

// DeleteOutfit removes stored objects best-effort before deleting the record;
// item rows go with it via the FK cascade. A storage failure is reported but
// never blocks the delete.
func (s *OutfitService) DeleteOutfit(ctx context.Context, ownerID uint, outfitID uint) error {
	var outfit models.Outfit
	result := s.DB.WithContext(ctx).Preload("Items").Where("id = ? and owner_id = ?", outfitID, ownerID).First(&outfit)
	if result.Error != nil {
		return result.Error
	}

	if err := s.AWS.Remove(ctx, s.BucketName, collectPaths(outfit.Items)); err != nil {
		fmt.Printf("[Outfit: %v] storage cleanup failed on delete: %v\n", outfitID, err)
		sentry.CaptureException(fmt.Errorf("[Outfit: %v] storage cleanup failed on delete: %w", outfitID, err))
	}

	return s.DB.WithContext(ctx).Delete(&outfit).Error
}
