// services/url_cache_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
)

// This is the duration for which presigned read URLs are valid.
const SignedURLTTL = 6 * time.Hour

// A cached URL is dropped this long before it actually expires, so a URL
// handed out right at the cache boundary is still usable by the client.
const expirationSafetyMargin = 30 * time.Second

type URLCacheServiceProvider interface {
	GetReadURL(ctx context.Context, objectKey string) (string, error)
	GetReadURLs(ctx context.Context, objectKeys []string) (map[string]string, error)
}

// URLCacheService fronts the storage presigner with a Ristretto cache via
// eko/gocache. Signing happens once per key per TTL window.
type URLCacheService struct {
	cache      *cache.Cache[string]
	ristretto  *ristretto.Cache
	aws        AWSServiceProvider
	bucketName string
	ttl        time.Duration
}

func NewURLCacheService(awsService AWSServiceProvider, bucketName string) (*URLCacheService, error) {
	return newURLCacheService(awsService, bucketName, SignedURLTTL)
}

func newURLCacheService(awsService AWSServiceProvider, bucketName string, ttl time.Duration) (*URLCacheService, error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e7,     // 10M
		MaxCost:     1 << 27, // 1GB
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	// The store itself works with `any`, the cache wrapper provides type safety.
	ristrettoStore := ristretto_store.NewRistretto(ristrettoCache)

	fmt.Println("Initialized URLCacheService with Ristretto cache!")
	return &URLCacheService{
		cache:      cache.New[string](ristrettoStore),
		ristretto:  ristrettoCache,
		aws:        awsService,
		bucketName: bucketName,
		ttl:        ttl,
	}, nil
}

// GetReadURL resolves a single key. Unlike the batch variant it fails when
// the key cannot be signed.
func (s *URLCacheService) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	urls, err := s.GetReadURLs(ctx, []string{objectKey})
	if err != nil {
		return "", err
	}
	url, ok := urls[objectKey]
	if !ok {
		return "", fmt.Errorf("failed to sign read url for %s", objectKey)
	}
	return url, nil
}

// GetReadURLs partitions keys into cached and missing, signs the missing
// ones in one storage call and caches them for the TTL minus the safety
// margin. Keys that could not be signed are absent from the result.
func (s *URLCacheService) GetReadURLs(ctx context.Context, objectKeys []string) (map[string]string, error) {
	urls := make(map[string]string, len(objectKeys))
	var missing []string
	for _, key := range objectKeys {
		if key == "" {
			continue
		}
		if url, err := s.cache.Get(ctx, key); err == nil && url != "" {
			urls[key] = url
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return urls, nil
	}

	signed, err := s.aws.CreateSignedURLs(ctx, s.bucketName, missing)
	if err != nil && len(signed) == 0 {
		return urls, fmt.Errorf("failed to sign read urls: %w", err)
	}
	for key, url := range signed {
		urls[key] = url
		if setErr := s.cache.Set(ctx, key, url, store.WithExpiration(s.ttl-expirationSafetyMargin)); setErr != nil {
			fmt.Printf("[URLCache] failed to cache url for %s: %v\n", key, setErr)
		}
	}
	// ristretto applies Set asynchronously
	s.ristretto.Wait()
	return urls, nil
}
