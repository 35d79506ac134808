package signedurl_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mediaflow/src/core/signedurl"
)

type mapCache struct {
	entries map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}}
}

func (c *mapCache) Get(key string) (string, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Set(key, value string, _ time.Duration) {
	c.entries[key] = value
}

type countingSigner struct {
	calls int
	err   error
}

func (s *countingSigner) SignURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.calls++
	return fmt.Sprintf("http://store/%s?sig=%d&ttl=%d", path, s.calls, int(ttl.Seconds())), nil
}

func TestGetOrCreateSignsOnce(t *testing.T) {
	signer := &countingSigner{}
	svc := signedurl.NewService(newMapCache(), signer)

	first, err := svc.GetOrCreate(context.Background(), "videos/1/a.mp4", 15*time.Minute)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := svc.GetOrCreate(context.Background(), "videos/1/a.mp4", 15*time.Minute)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if first != second {
		t.Errorf("URLs differ within TTL window: %q vs %q", first, second)
	}
	if signer.calls != 1 {
		t.Errorf("sign calls = %d, want 1", signer.calls)
	}
}

func TestGetOrCreateDistinctPaths(t *testing.T) {
	signer := &countingSigner{}
	svc := signedurl.NewService(newMapCache(), signer)

	a, _ := svc.GetOrCreate(context.Background(), "videos/1/a.mp4", time.Minute)
	b, _ := svc.GetOrCreate(context.Background(), "videos/1/b.mp4", time.Minute)

	if a == b {
		t.Error("distinct paths share a URL")
	}
	if signer.calls != 2 {
		t.Errorf("sign calls = %d, want 2", signer.calls)
	}
}

func TestGetOrCreateSignerError(t *testing.T) {
	signer := &countingSigner{err: errors.New("credentials expired")}
	cache := newMapCache()
	svc := signedurl.NewService(cache, signer)

	if _, err := svc.GetOrCreate(context.Background(), "videos/1/a.mp4", time.Minute); err == nil {
		t.Fatal("GetOrCreate() succeeded despite signer failure")
	}
	if len(cache.entries) != 0 {
		t.Error("failed signing left a cache entry")
	}
}
