package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"dripapi/generation"
	"dripapi/models"
	"dripapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
)

type GeneratorController struct {
	Manager    *generation.Manager
	AWSService services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
}

func (controller *GeneratorController) GeneratorRoutes(g *echo.Group) {
	g.POST("/select", controller.SelectFile)
	g.POST("/crop", controller.ConfirmCrop)
	g.POST("/cancel", controller.CancelCrop)
	g.POST("/save", controller.SaveOutfit)
	g.POST("/reset", controller.Reset)
	g.GET("/status", controller.Status)
}

func (controller *GeneratorController) session(c echo.Context) (*generation.Session, *models.UserAccount, error) {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return nil, nil, echo.ErrUnauthorized
	}
	return controller.Manager.Session(user.ID), &user, nil
}

// SelectFile moderates the uploaded photo and, when it passes, parks the
// flow in cropping. The response is the resulting session state so clients
// learn about rejections immediately.
func (controller *GeneratorController) SelectFile(c echo.Context) error {
	var req models.GeneratorSelectIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	session, user, err := controller.session(c)
	if err != nil {
		return err
	}

	image, mimeType, err := services.DecodeBase64Image(req.Image)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Could not read the image, please try another one"})
	}

	if err := session.SelectFile(c.Request().Context(), image, mimeType); err != nil {
		if generation.IsQuotaError(err) {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": services.ErrQuotaExceeded.Error()})
		}
		if errors.Is(err, services.ErrServiceUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": services.ErrServiceUnavailable.Error()})
		}
		if status := session.Status(); status.FlowStatus == string(generation.FlowError) {
			// moderation infrastructure failure, state already carries it
			return c.JSON(http.StatusOK, status)
		}
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	fmt.Printf("[User %v] generator image selected\n", user.ID)
	return c.JSON(http.StatusOK, session.Status())
}

// ConfirmCrop takes the already-cropped image and kicks off the angle
// pipeline in the background. Clients poll /status for progress.
func (controller *GeneratorController) ConfirmCrop(c echo.Context) error {
	var req models.GeneratorCropIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	session, user, err := controller.session(c)
	if err != nil {
		return err
	}

	image, _, err := services.DecodeBase64Image(req.Image)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Could not read the image, please try another one"})
	}

	styleSignature := ""
	if user.StyleSignature != nil {
		styleSignature = *user.StyleSignature
	}
	if err := session.ConfirmCrop(c.Request().Context(), image, user.Name, styleSignature); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	fmt.Printf("[User %v] generation pipeline started\n", user.ID)
	return c.JSON(http.StatusAccepted, session.Status())
}

func (controller *GeneratorController) CancelCrop(c echo.Context) error {
	session, _, err := controller.session(c)
	if err != nil {
		return err
	}
	session.CancelCrop()
	return c.JSON(http.StatusOK, session.Status())
}

func (controller *GeneratorController) Reset(c echo.Context) error {
	session, _, err := controller.session(c)
	if err != nil {
		return err
	}
	session.Reset()
	return c.JSON(http.StatusOK, session.Status())
}

func (controller *GeneratorController) Status(c echo.Context) error {
	session, _, err := controller.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session.Status())
}

// SaveOutfit persists the finished generation: originals get their studio
// background whitened, display copies are compressed, and the whole set goes
// through the closet create saga. The session resets only on success.
func (controller *GeneratorController) SaveOutfit(c echo.Context) error {
	var req models.GeneratorSaveIn
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	session, user, err := controller.session(c)
	if err != nil {
		return err
	}

	result, err := session.Save()
	if err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	images := make([]models.OutfitImageIn, 0, len(result.Images))
	for i, original := range result.Images {
		whitened, err := services.WhitenBackgroundFeathered(original, 200, 240, 0.6)
		if err != nil {
			fmt.Printf("[User %v] background whitening failed for view %d: %v\n", user.ID, i, err)
			whitened = original
		}
		thumbnail, err := services.CompressImage(whitened, 80)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to prepare the outfit images, please try again"})
		}
		images = append(images, models.OutfitImageIn{
			Thumbnail: services.EncodeImageDataURL(thumbnail, "image/jpeg"),
			Original:  services.EncodeImageDataURL(whitened, "image/png"),
		})
	}

	category := models.KnownCategory(result.Category)
	name := req.Name
	if name == "" {
		name = services.GeneratedOutfitName(category)
	}

	outfit, err := controller.outfitService(c).CreateOutfit(c.Request().Context(), user.ID, models.OutfitCreateIn{
		Name:        name,
		Description: services.StrPointer(result.Description),
		Category:    string(category),
		Tags:        []string{string(category)},
		Images:      images,
	})
	if err != nil {
		fmt.Printf("[User %v] failed to save generated outfit: %v\n", user.ID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save the outfit. Please try again."})
	}

	session.Reset()
	return c.JSON(http.StatusCreated, outfit)
}

func (controller *GeneratorController) outfitService(c echo.Context) *services.OutfitService {
	return (&OutfitsController{AWSService: controller.AWSService, URLCache: controller.URLCache}).outfitService(c)
}
