package signedurl

import (
	"context"
	"fmt"
	"time"
)

// Cache is an ephemeral key-value store with per-entry expiry. Losing
// it only costs a re-signing call, never correctness.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
}

// Signer mints a time-limited read URL for a stored object.
type Signer interface {
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Service caches presigned URLs keyed by object path so repeated reads
// of the same object do not re-sign. The cache entry lives exactly as
// long as the URL it holds; no invalidation happens on object mutation,
// which is acceptable for a time-limited read-only credential.
type Service struct {
	cache  Cache
	signer Signer
}

func NewService(cache Cache, signer Signer) *Service {
	return &Service{
		cache:  cache,
		signer: signer,
	}
}

// GetOrCreate returns the cached URL for path, signing and caching a
// new one on miss.
func (s *Service) GetOrCreate(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if url, ok := s.cache.Get(path); ok {
		return url, nil
	}

	url, err := s.signer.SignURL(ctx, path, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", path, err)
	}

	s.cache.Set(path, url, ttl)
	return url, nil
}
