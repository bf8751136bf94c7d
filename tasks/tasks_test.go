package tasks

import (
	"context"
	"errors"
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
	"gorm.io/gorm"
)

func stringPtr(s string) *string {
	return &s
}

// localObjectAWS serves presigned reads from a local test server so the
// handler's download path works without real storage.
type localObjectAWS struct {
	*test.AWSProviderMock
	baseURL string
}

func (aws *localObjectAWS) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return fmt.Sprintf("%s/%s", aws.baseURL, fileKey), nil
}

func setupTryOnFixture(t *testing.T, db *gorm.DB) (*models.UserAccount, *models.AvatarTryOn) {
	t.Helper()
	user := test.FakeUser(db)
	user.FullBodyAvatarSet = true
	user.UserFullBodyImagePath = stringPtr(fmt.Sprintf("%d/avatar/full_body.png", user.ID))
	require.NoError(t, db.Save(&user).Error)

	outfit := models.Outfit{Name: "Evening Look", Category: models.CategoryParty, OwnerID: user.ID}
	require.NoError(t, db.Create(&outfit).Error)
	item := models.OutfitItem{
		OutfitID:  outfit.ID,
		ImagePath: fmt.Sprintf("%d/%d/1_0_original.png", user.ID, outfit.ID),
		Type:      models.OutfitImageOriginal,
		SortOrder: 0,
	}
	require.NoError(t, db.Create(&item).Error)

	tryOn := models.AvatarTryOn{UserAccountID: user.ID, OutfitID: outfit.ID, Status: "pending"}
	require.NoError(t, db.Create(&tryOn).Error)
	return user, &tryOn
}

func TestTryOnGenerationTaskCompletes(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("object-bytes-for-" + r.URL.Path))
	}))
	defer server.Close()

	user, tryOn := setupTryOnFixture(t, db)
	awsMock := &localObjectAWS{test.NewAWSProviderMock(), server.URL}
	imageMock := test.NewImageServiceMock()

	task, err := NewTryOnGenerationTask(tryOn.ID)
	require.NoError(t, err)
	require.NoError(t, HandleTryOnGenerationTask(context.Background(), task, db, imageMock, awsMock, nil))

	var reloaded models.AvatarTryOn
	require.NoError(t, db.First(&reloaded, tryOn.ID).Error)
	assert.Equal(t, "completed", reloaded.Status)
	require.NotNil(t, reloaded.ResultImagePath)
	expectedPath := fmt.Sprintf("%d/tryon/%d.png", user.ID, tryOn.ID)
	assert.Equal(t, expectedPath, *reloaded.ResultImagePath)
	assert.Nil(t, reloaded.ErrorMessage)
	assert.Equal(t, imageMock.DressedAvatar, awsMock.Uploaded[expectedPath])
	assert.Equal(t, 1, imageMock.DressCalls)
}

func TestTryOnGenerationTaskQuotaFailsWithoutRetry(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("object-bytes"))
	}))
	defer server.Close()

	_, tryOn := setupTryOnFixture(t, db)
	awsMock := &localObjectAWS{test.NewAWSProviderMock(), server.URL}
	imageMock := test.NewImageServiceMock()
	imageMock.DressedAvatarErr = services.ErrQuotaExceeded

	task, err := NewTryOnGenerationTask(tryOn.ID)
	require.NoError(t, err)
	// quota exhaustion is terminal, the handler must not ask asynq to retry
	require.NoError(t, HandleTryOnGenerationTask(context.Background(), task, db, imageMock, awsMock, nil))

	var reloaded models.AvatarTryOn
	require.NoError(t, db.First(&reloaded, tryOn.ID).Error)
	assert.Equal(t, "failed", reloaded.Status)
	require.NotNil(t, reloaded.ErrorMessage)
	assert.Equal(t, "Daily generation limit reached. Please try again tomorrow.", *reloaded.ErrorMessage)
}

func TestTryOnGenerationTaskRetryableFailure(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("object-bytes"))
	}))
	defer server.Close()

	_, tryOn := setupTryOnFixture(t, db)
	awsMock := &localObjectAWS{test.NewAWSProviderMock(), server.URL}
	imageMock := test.NewImageServiceMock()
	imageMock.DressedAvatarErr = errors.New("model overloaded")

	task, err := NewTryOnGenerationTask(tryOn.ID)
	require.NoError(t, err)
	err = HandleTryOnGenerationTask(context.Background(), task, db, imageMock, awsMock, nil)
	require.Error(t, err)

	var reloaded models.AvatarTryOn
	require.NoError(t, db.First(&reloaded, tryOn.ID).Error)
	// still pending, asynq will redeliver
	assert.Equal(t, "pending", reloaded.Status)
	assert.Equal(t, 1, reloaded.RetryTimes)

	// the third strike marks it failed for good
	reloaded.RetryTimes = 2
	require.NoError(t, db.Save(&reloaded).Error)
	err = HandleTryOnGenerationTask(context.Background(), task, db, imageMock, awsMock, nil)
	require.Error(t, err)
	require.NoError(t, db.First(&reloaded, tryOn.ID).Error)
	assert.Equal(t, "failed", reloaded.Status)
	assert.Equal(t, 3, reloaded.RetryTimes)
}

func TestTryOnGenerationTaskUnconfiguredProviderRetries(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	_, tryOn := setupTryOnFixture(t, db)
	imageMock := test.NewImageServiceMock()
	imageMock.Configured = false

	task, err := NewTryOnGenerationTask(tryOn.ID)
	require.NoError(t, err)
	err = HandleTryOnGenerationTask(context.Background(), task, db, imageMock, test.NewAWSProviderMock(), nil)
	require.Error(t, err)

	var reloaded models.AvatarTryOn
	require.NoError(t, db.First(&reloaded, tryOn.ID).Error)
	// a missing key is an operator problem, asynq keeps redelivering
	assert.Equal(t, "pending", reloaded.Status)
	assert.Equal(t, 1, reloaded.RetryTimes)
	assert.Equal(t, 0, imageMock.DressCalls)
}

func TestTryOnGenerationTaskWithoutAvatar(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()

	user := test.FakeUser(db)
	outfit := models.Outfit{Name: "Look", Category: models.CategoryCasual, OwnerID: user.ID}
	require.NoError(t, db.Create(&outfit).Error)
	tryOn := models.AvatarTryOn{UserAccountID: user.ID, OutfitID: outfit.ID, Status: "pending"}
	require.NoError(t, db.Create(&tryOn).Error)

	task, err := NewTryOnGenerationTask(tryOn.ID)
	require.NoError(t, err)
	require.NoError(t, HandleTryOnGenerationTask(context.Background(), task, db, test.NewImageServiceMock(), test.NewAWSProviderMock(), nil))

	var reloaded models.AvatarTryOn
	require.NoError(t, db.First(&reloaded, tryOn.ID).Error)
	assert.Equal(t, "failed", reloaded.Status)
	require.NotNil(t, reloaded.ErrorMessage)
	assert.Contains(t, *reloaded.ErrorMessage, "avatar")
}
