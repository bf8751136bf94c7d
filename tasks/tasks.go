package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"dripapi/models"
	"dripapi/services"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type TryOnGenerationPayload struct {
	TryOnID uint `json:"try_on_id"`
}

// NewClient initializes an asynq client for enqueuing tasks
func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}), nil
}

// NewTryOnGenerationTask enqueues an avatar try-on render
func NewTryOnGenerationTask(tryOnID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(TryOnGenerationPayload{TryOnID: tryOnID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask("generate:tryon", payload), nil

}

func downloadObject(awsService services.AWSServiceProvider, tryOnID uint, fileKey string) ([]byte, error) {
	bucketName := os.Getenv("R2_BUCKET_NAME")
	fmt.Printf("[TryOn: %v] Request presigned download url for %s\n", tryOnID, fileKey)
	fileUrl, err := awsService.GetPresignedR2FileReadURL(context.TODO(), bucketName, fileKey)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error on getting presigned URL for file %s", tryOnID, fileKey))
		return nil, err
	}
	fileBytes, err := services.ReadFileFromUrl(fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error on downloading file %s: %v", tryOnID, fileKey, err))
		return nil, err
	}
	return fileBytes, nil
}

// HandleTryOnGenerationTask renders the user's avatar wearing the outfit's
// front view and stores the result on the try-on record.
func HandleTryOnGenerationTask(ctx context.Context, t *asynq.Task, db *gorm.DB, imageService services.ImageServiceProvider, awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	var payload TryOnGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[TryOn: %v] Start Processing\n", payload.TryOnID)

	var tryOn models.AvatarTryOn
	res := db.Joins("UserAccount").Joins("Outfit").First(&tryOn, payload.TryOnID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving try-on for processing %v", payload.TryOnID))
		return res.Error
	}
	if tryOn.Status == "completed" {
		fmt.Printf("[TryOn: %v] Already completed\n", payload.TryOnID)
		return nil
	}

	if !imageService.IsConfigured() {
		saveTryOnFail(db, &tryOn, "Styling service is unavailable right now, please try again later", true)
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Image provider is not configured", payload.TryOnID))
		return fmt.Errorf("image provider is not configured")
	}

	if tryOn.UserAccount.UserFullBodyImagePath == nil {
		saveTryOnFail(db, &tryOn, "Create your avatar first to try outfits on", false)
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] User %v has no full body avatar", payload.TryOnID, tryOn.UserAccountID))
		return nil
	}

	var frontItem models.OutfitItem
	res = db.Where("outfit_id = ? and type = ?", tryOn.OutfitID, models.OutfitImageOriginal).
		Order("sort_order asc").First(&frontItem)
	if res.Error != nil {
		saveTryOnFail(db, &tryOn, "This outfit has no image we can use for the try-on", false)
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Outfit %v has no original image: %v", payload.TryOnID, tryOn.OutfitID, res.Error))
		return nil
	}

	avatarBytes, err := downloadObject(awsService, payload.TryOnID, *tryOn.UserAccount.UserFullBodyImagePath)
	if err != nil {
		saveTryOnFail(db, &tryOn, "Failed to load your avatar, please try again", true)
		return err
	}
	outfitBytes, err := downloadObject(awsService, payload.TryOnID, frontItem.ImagePath)
	if err != nil {
		saveTryOnFail(db, &tryOn, "Failed to load the outfit image, please try again", true)
		return err
	}

	fmt.Printf("[TryOn: %v] Dressing avatar, avatar %d bytes, outfit %d bytes\n", payload.TryOnID, len(avatarBytes), len(outfitBytes))
	resultBytes, err := imageService.DressAvatar(ctx, avatarBytes, outfitBytes)
	if err != nil {
		if errors.Is(err, services.ErrQuotaExceeded) {
			saveTryOnFail(db, &tryOn, "Daily generation limit reached. Please try again tomorrow.", false)
			return nil
		}
		saveTryOnFail(db, &tryOn, "Failed to generate the try-on, please try again", true)
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error on dressing avatar: %v", payload.TryOnID, err))
		return err
	}

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	resultPath := fmt.Sprintf("%d/tryon/%d.png", tryOn.UserAccountID, tryOn.ID)
	if err := awsService.Upload(ctx, bucketName, resultPath, resultBytes); err != nil {
		saveTryOnFail(db, &tryOn, "Failed to save the try-on result, please try again", true)
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error on uploading result %s: %v", payload.TryOnID, resultPath, err))
		return err
	}

	tryOn.Status = "completed"
	tryOn.ResultImagePath = &resultPath
	tryOn.ErrorMessage = nil
	if err := db.Save(&tryOn).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error on saving completed try-on: %v", payload.TryOnID, err))
		return err
	}
	fmt.Printf("[TryOn: %v] Finished successfully\n", payload.TryOnID)

	services.SendNotification(fbApp, db, tryOn.UserAccountID, "Your try-on is ready!",
		fmt.Sprintf("See how %s looks on you", tryOn.Outfit.Name),
		map[string]string{"try_on_id": fmt.Sprintf("%d", tryOn.ID), "type": "tryon_completed"})

	return nil
}

func saveTryOnFail(db *gorm.DB, tryOn *models.AvatarTryOn, message string, shouldRetry bool) error {
	tryOn.RetryTimes = tryOn.RetryTimes + 1
	tryOn.ErrorMessage = services.StrPointer(message)
	if !shouldRetry || tryOn.RetryTimes >= 3 {
		tryOn.Status = "failed"
	}
	tx := db.Save(tryOn)
	if tx.Error != nil {
		sentry.CaptureException(fmt.Errorf("[Fail TryOn %v] Error on saving try-on for failed status", tryOn.ID))
		return tx.Error
	}
	return nil
}
