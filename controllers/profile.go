package controllers

import (
	"fmt"
	"net/http"

	"dripapi/models"
	"dripapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type ProfileController struct {
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *ProfileController) ProfileRoutes(g *echo.Group) {
	g.GET("/me", controller.Me)
	g.POST("/push-token", controller.RegisterPushToken)
	g.POST("/avatar", controller.SetFullBodyAvatar)
	g.GET("/tryons", controller.ListTryOns)
}

func (controller *ProfileController) Me(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	return c.JSON(http.StatusOK, user)
}

// RegisterPushToken stores a device token for pushes, reactivating it when
// the same token registers again.
func (controller *ProfileController) RegisterPushToken(c echo.Context) error {
	var req models.UserPushIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Token is required"})
	}
	if !models.ValidatePlatformRaw(req.Platform) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown platform"})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)

	var token models.UserPushToken
	result := db.Where("user_account_id = ? and token = ?", user.ID, req.Token).Limit(1).Find(&token)
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save push token"})
	}
	token.UserAccountID = user.ID
	token.Token = req.Token
	token.Platform = models.Platform(req.Platform)
	token.Active = true
	if err := db.Save(&token).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save push token"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// SetFullBodyAvatar stores the photo used for outfit try-ons.
func (controller *ProfileController) SetFullBodyAvatar(c echo.Context) error {
	var req models.AvatarIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)

	image, mimeType, err := services.DecodeBase64Image(req.Image)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Could not read the image, please try another one"})
	}

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	avatarPath := fmt.Sprintf("%d/avatar/full_body.%s", user.ID, services.MimeExtension(mimeType))
	if err := controller.AWSService.Upload(c.Request().Context(), bucketName, avatarPath, image); err != nil {
		fmt.Printf("[User %v] avatar upload failed: %v\n", user.ID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save your avatar, please try again"})
	}

	updates := map[string]interface{}{
		"user_full_body_image_path": avatarPath,
		"full_body_avatar_set":      true,
	}
	if err := db.Model(&user).Updates(updates).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save your avatar, please try again"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListTryOns returns the user's try-on history newest first with signed
// result URLs for the completed ones.
func (controller *ProfileController) ListTryOns(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)

	var tryOns []models.AvatarTryOn
	result := db.Where("user_account_id = ?", user.ID).Order("created_at desc").Limit(50).Find(&tryOns)
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load try-ons, please try again"})
	}

	for i := range tryOns {
		if tryOns[i].ResultImagePath == nil {
			continue
		}
		url, err := controller.URLCache.GetReadURL(c.Request().Context(), *tryOns[i].ResultImagePath)
		if err != nil {
			fmt.Printf("[TryOn: %v] failed to sign result url: %v\n", tryOns[i].ID, err)
			continue
		}
		tryOns[i].ResultImageURL = &url
	}
	return c.JSON(http.StatusOK, tryOns)
}
