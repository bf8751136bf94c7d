package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dripapi/dbhelper"
	"dripapi/models"
	"dripapi/services"
	"dripapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeEndpoint(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	srv, _ := setupClosetServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("GET", "/profile/me", userPk(user), "")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response models.UserAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, user.Email, response.Email)
}

func TestRegisterPushTokenUpserts(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	srv, _ := setupClosetServer(db)
	user := test.FakeUserV2(db, "Pushy", "pushy@example.com")

	reqBody := models.UserPushIn{Token: "device-token-1", Platform: "android"}
	req := test.NewJSONAuthRequest("POST", "/profile/push-token", userPk(user), reqBody)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// same token again must not create a second row
	req = test.NewJSONAuthRequest("POST", "/profile/push-token", userPk(user), reqBody)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens []models.UserPushToken
	require.NoError(t, db.Where("user_account_id = ?", user.ID).Find(&tokens).Error)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Active)
	assert.Equal(t, "device-token-1", tokens[0].Token)
}

func TestRegisterPushTokenRejectsUnknownPlatform(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	srv, _ := setupClosetServer(db)
	user := test.FakeUserV2(db, "Pushy", "pushy@example.com")

	reqBody := models.UserPushIn{Token: "device-token-1", Platform: "spaceship"}
	req := test.NewJSONAuthRequest("POST", "/profile/push-token", userPk(user), reqBody)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var count int64
	db.Model(&models.UserPushToken{}).Where("user_account_id = ?", user.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestSetFullBodyAvatar(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	srv, aws := setupClosetServer(db)
	user := test.FakeUser(db)

	reqBody := models.AvatarIn{Image: services.EncodeImageDataURL([]byte("full-body"), "image/png")}
	req := test.NewJSONAuthRequest("POST", "/profile/avatar", userPk(user), reqBody)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reloaded models.UserAccount
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.True(t, reloaded.FullBodyAvatarSet)
	require.NotNil(t, reloaded.UserFullBodyImagePath)
	expectedPath := fmt.Sprintf("%d/avatar/full_body.png", user.ID)
	assert.Equal(t, expectedPath, *reloaded.UserFullBodyImagePath)
	assert.Contains(t, aws.Uploaded, expectedPath)
}

func TestListTryOnsSignsCompletedResults(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	srv, _ := setupClosetServer(db)
	user := test.FakeUser(db)

	outfit := models.Outfit{Name: "Look", Category: models.CategoryCasual, OwnerID: user.ID}
	require.NoError(t, db.Create(&outfit).Error)
	completed := models.AvatarTryOn{
		UserAccountID:   user.ID,
		OutfitID:        outfit.ID,
		Status:          "completed",
		ResultImagePath: StrPointer(fmt.Sprintf("%d/tryon/1.png", user.ID)),
	}
	pending := models.AvatarTryOn{UserAccountID: user.ID, OutfitID: outfit.ID, Status: "pending"}
	require.NoError(t, db.Create(&completed).Error)
	require.NoError(t, db.Create(&pending).Error)

	req := test.NewJSONAuthRequest("GET", "/profile/tryons", userPk(user), "")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var response []models.AvatarTryOn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)
	for _, tryOn := range response {
		if tryOn.Status == "completed" {
			require.NotNil(t, tryOn.ResultImageURL)
			assert.Contains(t, *tryOn.ResultImageURL, "fakebucketurl.com")
		} else {
			assert.Nil(t, tryOn.ResultImageURL)
		}
	}
}
