package controllers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dripapi/dbhelper"
	"dripapi/models"
	"dripapi/services"
	"dripapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func generatorMock(t *testing.T) *test.ImageServiceMock {
	pngBytes := tinyPNG(t)
	mock := test.NewImageServiceMock()
	mock.FrontView = pngBytes
	for _, angle := range services.AllAngles {
		mock.AngleViews[angle] = pngBytes
	}
	return mock
}

func generatorStatus(t *testing.T, e http.Handler, userPk string) models.GeneratorStatusOut {
	t.Helper()
	req := test.NewJSONAuthRequest("GET", "/generator/status", userPk, "")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status models.GeneratorStatusOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestGeneratorFullFlowAndSave(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	mock := generatorMock(t)
	e := SetupServer(db, mock, test.NewAWSProviderMock(), test.URLCacheMock{}, nil, nil)
	user := test.FakeUser(db)
	pk := userPk(user)

	photo := services.EncodeImageDataURL(tinyPNG(t), "image/png")

	req := test.NewJSONAuthRequest("POST", "/generator/select", pk, models.GeneratorSelectIn{Image: photo})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cropping", generatorStatus(t, e, pk).FlowStatus)

	req = test.NewJSONAuthRequest("POST", "/generator/crop", pk, models.GeneratorCropIn{Image: photo})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var status models.GeneratorStatusOut
	require.Eventually(t, func() bool {
		status = generatorStatus(t, e, pk)
		return status.FlowStatus == "done"
	}, 5*time.Second, 20*time.Millisecond, "generation never finished: %+v", status)
	assert.Equal(t, 100, status.Progress)
	assert.Len(t, status.Images, 4)

	req = test.NewJSONAuthRequest("POST", "/generator/save", pk, models.GeneratorSaveIn{Name: "My Generated Fit"})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var outfit models.Outfit
	require.NoError(t, db.Preload("Items").Where("owner_id = ?", user.ID).First(&outfit).Error)
	assert.Equal(t, "My Generated Fit", outfit.Name)
	assert.Equal(t, models.CategoryCasual, outfit.Category)
	require.NotNil(t, outfit.Description)
	assert.Equal(t, mock.Description, *outfit.Description)
	// four thumbnails and four whitened originals
	assert.Len(t, outfit.Items, 8)

	// a successful save resets the session for the next generation
	assert.Equal(t, "idle", generatorStatus(t, e, pk).FlowStatus)
}

func TestGeneratorSelectQuotaExceeded(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	mock := generatorMock(t)
	mock.ModerationErr = services.ErrQuotaExceeded
	e := SetupServer(db, mock, test.NewAWSProviderMock(), test.URLCacheMock{}, nil, nil)
	user := test.FakeUser(db)

	photo := services.EncodeImageDataURL(tinyPNG(t), "image/png")
	req := test.NewJSONAuthRequest("POST", "/generator/select", userPk(user), models.GeneratorSelectIn{Image: photo})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGeneratorSelectServiceUnavailable(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	mock := generatorMock(t)
	mock.Configured = false
	e := SetupServer(db, mock, test.NewAWSProviderMock(), test.URLCacheMock{}, nil, nil)
	user := test.FakeUser(db)

	photo := services.EncodeImageDataURL(tinyPNG(t), "image/png")
	req := test.NewJSONAuthRequest("POST", "/generator/select", userPk(user), models.GeneratorSelectIn{Image: photo})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, mock.ModerateCalls)
}

func TestGeneratorSaveBeforeDone(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, generatorMock(t), test.NewAWSProviderMock(), test.URLCacheMock{}, nil, nil)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("POST", "/generator/save", userPk(user), models.GeneratorSaveIn{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGeneratorCancelReturnsToIdle(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, generatorMock(t), test.NewAWSProviderMock(), test.URLCacheMock{}, nil, nil)
	user := test.FakeUser(db)
	pk := userPk(user)

	photo := services.EncodeImageDataURL(tinyPNG(t), "image/png")
	req := test.NewJSONAuthRequest("POST", "/generator/select", pk, models.GeneratorSelectIn{Image: photo})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = test.NewJSONAuthRequest("POST", "/generator/cancel", pk, "")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", generatorStatus(t, e, pk).FlowStatus)
}
