package dbhelper

import (
	"log"

	"dripapi/models"

	"gorm.io/gorm"
)

func SetupCleaner(db *gorm.DB) func() {

	return func() {

		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.AvatarTryOn{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.OutfitItem{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Outfit{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.UserPushToken{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.UserAccount{})

	}
}

func Migrate(db *gorm.DB, model interface{}) {
	err := db.AutoMigrate(model)
	if err != nil {
		log.Printf("Error while migrating %s", model)
		log.Fatal(err)
	}
}
