package cachectrl_test

import (
	"testing"
	"time"

	"mediaflow/src/storage/cachectrl"
)

func TestSetGetRoundtrip(t *testing.T) {
	cache, err := cachectrl.NewRistrettoCache()
	if err != nil {
		t.Fatalf("NewRistrettoCache() error = %v", err)
	}
	defer cache.Close()

	cache.Set("videos/1/a.mp4", "http://store/signed", 15*time.Minute)

	got, ok := cache.Get("videos/1/a.mp4")
	if !ok {
		t.Fatal("entry not visible after Set")
	}
	if got != "http://store/signed" {
		t.Errorf("Get() = %q", got)
	}
}

func TestGetMissing(t *testing.T) {
	cache, err := cachectrl.NewRistrettoCache()
	if err != nil {
		t.Fatalf("NewRistrettoCache() error = %v", err)
	}
	defer cache.Close()

	if _, ok := cache.Get("videos/does-not-exist"); ok {
		t.Error("Get() returned a value for a missing key")
	}
}
