package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSigner hands out unique URLs per call so tests can tell a cache
// hit from a re-sign.
type countingSigner struct {
	mu        sync.Mutex
	batches   int
	signed    int
	failKeys  map[string]bool
	failBatch bool
}

func (c *countingSigner) InitClients(ctx context.Context) error { return nil }

func (c *countingSigner) Upload(ctx context.Context, bucketName, fileKey string, fileContent []byte) error {
	return nil
}

func (c *countingSigner) Remove(ctx context.Context, bucketName string, fileKeys []string) error {
	return nil
}

func (c *countingSigner) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	urls, err := c.CreateSignedURLs(ctx, bucketName, []string{fileKey})
	if err != nil {
		return "", err
	}
	return urls[fileKey], nil
}

func (c *countingSigner) CreateSignedURLs(ctx context.Context, bucketName string, fileKeys []string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	if c.failBatch {
		return map[string]string{}, fmt.Errorf("signer unavailable")
	}
	urls := make(map[string]string, len(fileKeys))
	for _, key := range fileKeys {
		if c.failKeys[key] {
			continue
		}
		c.signed++
		urls[key] = fmt.Sprintf("https://signed.example.com/%s?v=%d", key, c.signed)
	}
	return urls, nil
}

func TestURLCacheReturnsSameURLWhileFresh(t *testing.T) {
	signer := &countingSigner{}
	svc, err := NewURLCacheService(signer, "closet")
	require.NoError(t, err)

	first, err := svc.GetReadURL(context.Background(), "1/2/front.png")
	require.NoError(t, err)
	second, err := svc.GetReadURL(context.Background(), "1/2/front.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, signer.batches)
}

func TestURLCacheBatchSignsOnlyMisses(t *testing.T) {
	signer := &countingSigner{}
	svc, err := NewURLCacheService(signer, "closet")
	require.NoError(t, err)

	_, err = svc.GetReadURL(context.Background(), "a.png")
	require.NoError(t, err)

	urls, err := svc.GetReadURLs(context.Background(), []string{"a.png", "b.png", "c.png", ""})
	require.NoError(t, err)

	assert.Len(t, urls, 3)
	// one warm-up batch plus one batch for the two misses
	assert.Equal(t, 2, signer.batches)
	assert.Equal(t, 3, signer.signed)
}

func TestURLCachePartialSigningFailureSkipsKey(t *testing.T) {
	signer := &countingSigner{failKeys: map[string]bool{"broken.png": true}}
	svc, err := NewURLCacheService(signer, "closet")
	require.NoError(t, err)

	urls, err := svc.GetReadURLs(context.Background(), []string{"ok.png", "broken.png"})
	require.NoError(t, err)
	assert.Contains(t, urls, "ok.png")
	assert.NotContains(t, urls, "broken.png")

	// the single-key variant surfaces the miss as an error
	_, err = svc.GetReadURL(context.Background(), "broken.png")
	assert.Error(t, err)
}

func TestURLCacheTotalSigningFailure(t *testing.T) {
	signer := &countingSigner{failBatch: true}
	svc, err := NewURLCacheService(signer, "closet")
	require.NoError(t, err)

	_, err = svc.GetReadURL(context.Background(), "a.png")
	assert.Error(t, err)
}

func TestURLCacheExpiredEntryIsResigned(t *testing.T) {
	signer := &countingSigner{}
	// effective cache window is the TTL minus the safety margin, 1s here
	svc, err := newURLCacheService(signer, "closet", expirationSafetyMargin+time.Second)
	require.NoError(t, err)

	first, err := svc.GetReadURL(context.Background(), "a.png")
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	second, err := svc.GetReadURL(context.Background(), "a.png")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, signer.batches)
}

func TestURLCacheEmptyKey(t *testing.T) {
	signer := &countingSigner{}
	svc, err := NewURLCacheService(signer, "closet")
	require.NoError(t, err)

	url, err := svc.GetReadURL(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", url)
	assert.Equal(t, 0, signer.batches)
}
