package controllers

import (
	"context"
	"log"
	"net/http"
	"os"

	"dripapi/generation"
	"dripapi/models"
	"dripapi/services"

	firebase "firebase.google.com/go/v4"
	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func SetupServer(
	db *gorm.DB,
	imageService services.ImageServiceProvider,
	awsService services.AWSServiceProvider,
	urlCache services.URLCacheServiceProvider,
	firebaseApp *firebase.App,
	asynqClient *asynq.Client,
) *echo.Echo {

	err := awsService.InitClients(context.Background())
	if err != nil {
		log.Fatal("Failed to initialize AWS provider: S3")
	}

	e := echo.New()
	v := validator.New()
	v.RegisterValidation("platform", models.ValidatePlatform)
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__asynqclient", asynqClient)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	devMode := services.GetEnv("DEV_MODE", "false") == "true"
	manager := generation.NewManager(imageService, devMode)

	closetController := OutfitsController{AWSService: awsService, URLCache: urlCache, FirebaseApp: firebaseApp}
	closetGroup := e.Group("/closet", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
	closetController.OutfitRoutes(closetGroup)

	profileController := ProfileController{AWSService: awsService, URLCache: urlCache}
	profileGroup := e.Group("/profile", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
	profileController.ProfileRoutes(profileGroup)

	generatorController := GeneratorController{Manager: manager, AWSService: awsService, URLCache: urlCache}
	generatorGroup := e.Group("/generator", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))), UserMiddleware)
	generatorController.GeneratorRoutes(generatorGroup)

	return e
}
