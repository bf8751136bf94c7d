package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"dripapi/models"
	"dripapi/services"
	"dripapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type OutfitsController struct {
	AWSService  services.AWSServiceProvider
	URLCache    services.URLCacheServiceProvider
	FirebaseApp *firebase.App
}

func (controller *OutfitsController) OutfitRoutes(g *echo.Group) {
	g.GET("/outfits", controller.ListOutfits)
	g.POST("/outfits", controller.CreateOutfit)
	g.PATCH("/outfits/:outfitId", controller.UpdateOutfit)
	g.DELETE("/outfits/:outfitId", controller.DeleteOutfit)
	g.POST("/outfits/:outfitId/tryon", controller.GenerateTryOn)
	g.POST("/migrate", controller.MigrateLocalCloset)
}

func (controller *OutfitsController) outfitService(c echo.Context) *services.OutfitService {
	db := c.Get("__db").(*gorm.DB)
	return &services.OutfitService{
		DB:         db,
		AWS:        controller.AWSService,
		URLCache:   controller.URLCache,
		BucketName: services.GetEnv("R2_BUCKET_NAME", ""),
	}
}

func (controller *OutfitsController) ListOutfits(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var limit int
	var cursor int64
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).Int64("cursor", &cursor).BindError(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid pagination parameters"})
	}
	var cursorPtr *int64
	if cursor > 0 {
		cursorPtr = &cursor
	}

	listing, err := controller.outfitService(c).ListOutfits(c.Request().Context(), user.ID, limit, cursorPtr)
	if err != nil {
		fmt.Printf("[User %v] failed to list outfits: %v\n", user.ID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load your closet, please try again"})
	}
	return c.JSON(http.StatusOK, listing)
}

func (controller *OutfitsController) CreateOutfit(c echo.Context) error {
	var req models.OutfitCreateIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	outfit, err := controller.outfitService(c).CreateOutfit(c.Request().Context(), user.ID, req)
	if err != nil {
		fmt.Printf("[User %v] failed to create outfit: %v\n", user.ID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save the outfit. Please try again."})
	}
	return c.JSON(http.StatusCreated, outfit)
}

func (controller *OutfitsController) UpdateOutfit(c echo.Context) error {
	var outfitId uint
	if err := echo.PathParamsBinder(c).Uint("outfitId", &outfitId).BindError(); err != nil {
		return echo.ErrBadRequest
	}

	var req models.OutfitUpdateIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	outfit, err := controller.outfitService(c).UpdateOutfit(c.Request().Context(), user.ID, outfitId, req)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Outfit not found"})
	}
	if err != nil {
		fmt.Printf("[Outfit: %v] failed to update: %v\n", outfitId, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update the outfit, please try again"})
	}
	return c.JSON(http.StatusOK, outfit)
}

func (controller *OutfitsController) DeleteOutfit(c echo.Context) error {
	var outfitId uint
	if err := echo.PathParamsBinder(c).Uint("outfitId", &outfitId).BindError(); err != nil {
		return echo.ErrBadRequest
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	err := controller.outfitService(c).DeleteOutfit(c.Request().Context(), user.ID, outfitId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Outfit not found"})
	}
	if err != nil {
		fmt.Printf("[Outfit: %v] failed to delete: %v\n", outfitId, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete the outfit, please try again"})
	}
	return c.NoContent(http.StatusNoContent)
}

// GenerateTryOn queues a background render of the user's avatar wearing the
// outfit. The result lands on the AvatarTryOn record and a push goes out.
func (controller *OutfitsController) GenerateTryOn(c echo.Context) error {
	var outfitId uint
	if err := echo.PathParamsBinder(c).Uint("outfitId", &outfitId).BindError(); err != nil {
		return echo.ErrBadRequest
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db := c.Get("__db").(*gorm.DB)
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Service is not available, please try again a bit later"})
	}

	if !user.FullBodyAvatarSet || user.UserFullBodyImagePath == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Create your avatar first to try outfits on"})
	}

	var outfit models.Outfit
	result := db.Where("id = ? and owner_id = ?", outfitId, user.ID).Take(&outfit)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Outfit not found"})
	}
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load the outfit, please try again"})
	}

	tryOn := models.AvatarTryOn{
		UserAccountID: user.ID,
		OutfitID:      outfit.ID,
		Status:        "pending",
	}
	if err := db.Create(&tryOn).Error; err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to start the try-on, please try again"})
	}

	task, err := tasks.NewTryOnGenerationTask(tryOn.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start the try-on, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Sorry, could not start the try-on, please try again"})
	}
	fmt.Println("[Queue] Try-on task submitted, TryOn ID: ", tryOn.ID, " Task ID: ", info.ID)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"try_on_id": tryOn.ID,
		"status":    tryOn.Status,
	})
}

func (controller *OutfitsController) MigrateLocalCloset(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	exportPath := services.GetEnv("LOCAL_CLOSET_PATH", "")
	if exportPath == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No local closet export configured"})
	}

	out, err := controller.outfitService(c).MigrateLocalCloset(c.Request().Context(), user.ID, exportPath)
	if err != nil {
		fmt.Printf("[User %v] local closet migration failed: %v\n", user.ID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Migration failed, please try again"})
	}
	return c.JSON(http.StatusOK, out)
}
