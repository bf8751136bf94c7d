package test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"dripapi/models"
	"dripapi/services"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func NewJSONAuthRequestRaw(method string, target string, userPk string, json string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(json))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func Int64Pointer(i int64) *int64 {
	return &i
}

func NewRefString(data string) *string {
	return &data
}

func BoolPointer(b bool) *bool {
	return &b
}

func FakeUser(db *gorm.DB) *models.UserAccount {
	user := &models.UserAccount{
		Name:      "OurName",
		Email:     "email@example.com",
		Platform:  models.PlatformIOS,
		LastIp:    "123.122.122.122",
		Status:    "FINISHED_AUTH",
		AvatarURL: "pictureurl",
	}
	db.Create(&user)
	tokenDb := models.UserPushToken{
		UserAccountID: user.ID,
		Platform:      "android",
		Token:         "cX-UZ3zwQEiPt-2GJkG2gA:APA91bGqRflaGrJrnynhRwZ442HdgUjVcO7mWMFnx6IwAdJ9RRKopvSP4QU7hbvTmk1XAp8XGvtHZLvo5JmOPTVKBbGqqvhfbZWKlXA9csEjx1hgpNvrWepU-rqG1sxS8_WCF5cGZchf",
		Active:        true,
	}
	db.Save(&tokenDb)
	return user
}

func FakeUserV2(db *gorm.DB, userName string, email string) *models.UserAccount {

	if email == "" {
		email = "email@example.com"
	}
	user := &models.UserAccount{
		Name:      userName,
		Email:     email,
		Platform:  models.PlatformIOS,
		LastIp:    "123.122.122.122",
		Status:    "FINISHED_AUTH",
		AvatarURL: "pictureurl",
	}
	db.Create(&user)
	return user
}

// AWSProviderMock records uploads and removals in memory so tests can assert
// on what reached storage. FailUploadKeys forces failures for specific keys.
type AWSProviderMock struct {
	mu             sync.Mutex
	Uploaded       map[string][]byte
	Removed        []string
	FailUploadKeys map[string]bool
	SignCalls      int
}

func NewAWSProviderMock() *AWSProviderMock {
	return &AWSProviderMock{
		Uploaded:       map[string][]byte{},
		FailUploadKeys: map[string]bool{},
	}
}

func (awsService *AWSProviderMock) InitClients(ctx context.Context) error {
	return nil
}

func (awsService *AWSProviderMock) Upload(ctx context.Context, bucketName, fileKey string, fileContent []byte) error {
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	if awsService.FailUploadKeys[fileKey] {
		return fmt.Errorf("upload refused for %s", fileKey)
	}
	awsService.Uploaded[fileKey] = fileContent
	return nil
}

func (awsService *AWSProviderMock) Remove(ctx context.Context, bucketName string, fileKeys []string) error {
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	awsService.Removed = append(awsService.Removed, fileKeys...)
	return nil
}

func (awsService *AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	awsService.SignCalls++
	return fmt.Sprintf("https://fakebucketurl.com/%s", fileKey), nil
}

func (awsService *AWSProviderMock) CreateSignedURLs(ctx context.Context, bucketName string, fileKeys []string) (map[string]string, error) {
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	awsService.SignCalls++
	urls := make(map[string]string, len(fileKeys))
	for _, key := range fileKeys {
		urls[key] = fmt.Sprintf("https://fakebucketurl.com/%s", key)
	}
	return urls, nil
}

func (awsService *AWSProviderMock) UploadedKeys() []string {
	awsService.mu.Lock()
	defer awsService.mu.Unlock()
	keys := make([]string, 0, len(awsService.Uploaded))
	for key := range awsService.Uploaded {
		keys = append(keys, key)
	}
	return keys
}

// URLCacheMock signs keys directly without caching.
type URLCacheMock struct{}

func (m URLCacheMock) GetReadURL(ctx context.Context, fileKey string) (string, error) {
	return fmt.Sprintf("https://fakebucketurl.com/%s", fileKey), nil
}

func (m URLCacheMock) GetReadURLs(ctx context.Context, fileKeys []string) (map[string]string, error) {
	urls := make(map[string]string, len(fileKeys))
	for _, key := range fileKeys {
		urls[key] = fmt.Sprintf("https://fakebucketurl.com/%s", key)
	}
	return urls, nil
}

// ImageServiceMock returns scripted results per capability. Err fields win
// over the value fields, call counters let tests assert on sequencing.
type ImageServiceMock struct {
	mu sync.Mutex

	Configured bool

	Moderation    *services.ModerationResult
	ModerationErr error

	FrontView    []byte
	FrontViewErr error

	AngleViews    map[services.Angle][]byte
	AngleViewErrs map[services.Angle]error

	Category    string
	CategoryErr error

	Description    string
	DescriptionErr error

	DressedAvatar    []byte
	DressedAvatarErr error

	DuplicateIndex int
	DuplicateErr   error

	ModerateCalls   int
	FrontCalls      int
	AngleCalls      []services.Angle
	CategorizeCalls int
	DescribeCalls   int
	DressCalls      int
}

func NewImageServiceMock() *ImageServiceMock {
	return &ImageServiceMock{
		Configured:     true,
		Moderation:     &services.ModerationResult{IsValid: true},
		FrontView:      []byte("front-view"),
		AngleViews:     map[services.Angle][]byte{},
		AngleViewErrs:  map[services.Angle]error{},
		Category:       string(models.CategoryCasual),
		Description:    "A relaxed everyday look.",
		DressedAvatar:  []byte("dressed-avatar"),
		DuplicateIndex: -1,
	}
}

func (m *ImageServiceMock) IsConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Configured
}

func (m *ImageServiceMock) ModerateImage(ctx context.Context, image []byte, mimeType string) (*services.ModerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModerateCalls++
	if m.ModerationErr != nil {
		return nil, m.ModerationErr
	}
	return m.Moderation, nil
}

func (m *ImageServiceMock) GenerateFrontView(ctx context.Context, image []byte, mimeType string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FrontCalls++
	if m.FrontViewErr != nil {
		return nil, m.FrontViewErr
	}
	return m.FrontView, nil
}

func (m *ImageServiceMock) GenerateAngleView(ctx context.Context, frontView []byte, angle services.Angle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AngleCalls = append(m.AngleCalls, angle)
	if err := m.AngleViewErrs[angle]; err != nil {
		return nil, err
	}
	if view, ok := m.AngleViews[angle]; ok {
		return view, nil
	}
	return []byte(fmt.Sprintf("%s-view", angle)), nil
}

func (m *ImageServiceMock) CategorizeOutfit(ctx context.Context, frontView []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CategorizeCalls++
	if m.CategoryErr != nil {
		return "", m.CategoryErr
	}
	return m.Category, nil
}

func (m *ImageServiceMock) DescribeOutfit(ctx context.Context, frontView []byte, category, styleSignature, userName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DescribeCalls++
	if m.DescriptionErr != nil {
		return "", m.DescriptionErr
	}
	return m.Description, nil
}

func (m *ImageServiceMock) DressAvatar(ctx context.Context, avatar []byte, outfit []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DressCalls++
	if m.DressedAvatarErr != nil {
		return nil, m.DressedAvatarErr
	}
	return m.DressedAvatar, nil
}

func (m *ImageServiceMock) FindDuplicate(ctx context.Context, newImage []byte, existing [][]byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DuplicateErr != nil {
		return -1, m.DuplicateErr
	}
	return m.DuplicateIndex, nil
}
