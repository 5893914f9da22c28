package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dalfonso89/currency-rates-service/internal/config"
	"github.com/dalfonso89/currency-rates-service/internal/logger"
)

var testDate = time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		date     time.Time
		currency string
		expected string
	}{
		{"file", KindFile, testDate, "rub", "2024-06-11-rub.json"},
		{"redis", KindRedis, testDate, "rub", "2024-06-11-rub"},
		{"uppercase currency", KindRedis, testDate, "RUB", "2024-06-11-rub"},
		{"time of day ignored", KindFile, testDate.Add(23 * time.Hour), "usd", "2024-06-11-usd.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := DeriveKey(tt.kind, tt.date, tt.currency); result != tt.expected {
				t.Errorf("DeriveKey() = %q, want %q", result, tt.expected)
			}
			if again := DeriveKey(tt.kind, tt.date, tt.currency); again != tt.expected {
				t.Errorf("DeriveKey() not deterministic: %q", again)
			}
		})
	}
}

func TestBackendKeysMatchKind(t *testing.T) {
	fileStorage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}
	redisStorage := NewRedisStorage(redis.NewClient(&redis.Options{Addr: "localhost:0"}), time.Minute)
	defer redisStorage.Close()

	for _, backend := range []CacheStorage{fileStorage, redisStorage} {
		t.Run(backend.Kind().String(), func(t *testing.T) {
			if key := backend.Key(testDate, "eur"); key != DeriveKey(backend.Kind(), testDate, "eur") {
				t.Errorf("Key() = %q does not follow the %s template", key, backend.Kind())
			}
		})
	}
}

func TestFileStorage_FetchMissing(t *testing.T) {
	fileStorage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}

	payload, found, err := fileStorage.Fetch(context.Background(), "2024-06-11-rub.json")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if found || payload != nil {
		t.Errorf("Fetch() = (%q, %v), want miss", payload, found)
	}
}

func TestFileStorage_StoreAndFetch(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "nested", "cache")
	fileStorage, err := NewFileStorage(cacheDir)
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}

	ctx := context.Background()
	key := fileStorage.Key(testDate, "rub")
	payload := []byte(`{"date":"2024-06-11","currency":"rub","values":[]}`)

	stored, err := fileStorage.Store(ctx, key, payload)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Errorf("Store() returned %q, want %q", stored, payload)
	}

	if _, err := os.Stat(filepath.Join(cacheDir, "2024-06-11-rub.json")); err != nil {
		t.Errorf("cache file not created: %v", err)
	}

	fetched, found, err := fileStorage.Fetch(ctx, key)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !found || !bytes.Equal(fetched, payload) {
		t.Errorf("Fetch() = (%q, %v), want (%q, true)", fetched, found, payload)
	}

	replacement := []byte(`{"date":"2024-06-11","currency":"rub","values":[{"currency":"usd","value":1}]}`)
	if _, err := fileStorage.Store(ctx, key, replacement); err != nil {
		t.Fatalf("Store() overwrite error = %v", err)
	}
	fetched, _, _ = fileStorage.Fetch(ctx, key)
	if !bytes.Equal(fetched, replacement) {
		t.Errorf("Fetch() after overwrite = %q, want %q", fetched, replacement)
	}
}

func TestFileStorage_ConcurrentStores(t *testing.T) {
	fileStorage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}

	ctx := context.Background()
	const numGoroutines = 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			ownKey := fmt.Sprintf("2024-06-11-c%02d.json", goroutineID)
			if _, err := fileStorage.Store(ctx, ownKey, []byte(ownKey)); err != nil {
				t.Errorf("Store(%s) error = %v", ownKey, err)
			}
			if _, err := fileStorage.Store(ctx, "shared.json", []byte(fmt.Sprintf("writer-%02d", goroutineID))); err != nil {
				t.Errorf("Store(shared) error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		ownKey := fmt.Sprintf("2024-06-11-c%02d.json", i)
		payload, found, err := fileStorage.Fetch(ctx, ownKey)
		if err != nil || !found || string(payload) != ownKey {
			t.Errorf("Fetch(%s) = (%q, %v, %v)", ownKey, payload, found, err)
		}
	}

	shared, found, err := fileStorage.Fetch(ctx, "shared.json")
	if err != nil || !found || !bytes.HasPrefix(shared, []byte("writer-")) || len(shared) != len("writer-00") {
		t.Errorf("Fetch(shared) = (%q, %v, %v), want one complete write", shared, found, err)
	}
}

func TestFileStorage_ReadFailureIsNotAMiss(t *testing.T) {
	cacheDir := t.TempDir()
	fileStorage, err := NewFileStorage(cacheDir)
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}

	// a directory where the payload file should be cannot be read
	if err := os.Mkdir(filepath.Join(cacheDir, "2024-06-11-rub.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, found, err := fileStorage.Fetch(context.Background(), "2024-06-11-rub.json")
	var storageError *StorageError
	if !errors.As(err, &storageError) {
		t.Fatalf("Fetch() error = %v, want *StorageError", err)
	}
	if found {
		t.Error("Fetch() reported found on failure")
	}
	if storageError.Backend != KindFile || storageError.Op != "fetch" {
		t.Errorf("StorageError = %+v", storageError)
	}
}

func TestFileStorage_StoreFailure(t *testing.T) {
	cacheDir := t.TempDir()
	fileStorage, err := NewFileStorage(cacheDir)
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}
	if err := os.RemoveAll(cacheDir); err != nil {
		t.Fatal(err)
	}

	_, err = fileStorage.Store(context.Background(), "2024-06-11-rub.json", []byte("{}"))
	var storageError *StorageError
	if !errors.As(err, &storageError) {
		t.Fatalf("Store() error = %v, want *StorageError", err)
	}
}

func newMiniredisStorage(t *testing.T, expire time.Duration) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	redisStorage := NewRedisStorage(client, expire)
	t.Cleanup(func() { redisStorage.Close() })

	return redisStorage, server
}

func TestRedisStorage_StoreAndFetch(t *testing.T) {
	redisStorage, server := newMiniredisStorage(t, 60*time.Second)
	ctx := context.Background()

	key := redisStorage.Key(testDate, "rub")
	payload := []byte(`{"date":"2024-06-11","currency":"rub","values":[{"currency":"usd","value":0.0112}]}`)

	if _, found, err := redisStorage.Fetch(ctx, key); err != nil || found {
		t.Fatalf("Fetch() before store = (%v, %v), want miss", found, err)
	}

	stored, err := redisStorage.Store(ctx, key, payload)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Errorf("Store() returned %q, want %q", stored, payload)
	}

	if ttl := server.TTL(key); ttl != 60*time.Second {
		t.Errorf("TTL = %v, want 60s", ttl)
	}

	fetched, found, err := redisStorage.Fetch(ctx, key)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !found || !bytes.Equal(fetched, payload) {
		t.Errorf("Fetch() = (%q, %v), want (%q, true)", fetched, found, payload)
	}
}

func TestRedisStorage_Expiry(t *testing.T) {
	redisStorage, server := newMiniredisStorage(t, 30*time.Second)
	ctx := context.Background()

	key := redisStorage.Key(testDate, "eur")
	if _, err := redisStorage.Store(ctx, key, []byte("{}")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	server.FastForward(29 * time.Second)
	if _, found, _ := redisStorage.Fetch(ctx, key); !found {
		t.Error("Fetch() missed before expiry")
	}

	server.FastForward(2 * time.Second)
	payload, found, err := redisStorage.Fetch(ctx, key)
	if err != nil {
		t.Fatalf("Fetch() after expiry error = %v", err)
	}
	if found || payload != nil {
		t.Errorf("Fetch() after expiry = (%q, %v), want miss", payload, found)
	}
}

func TestRedisStorage_BackendDown(t *testing.T) {
	redisStorage, server := newMiniredisStorage(t, time.Minute)
	server.Close()

	ctx := context.Background()
	key := redisStorage.Key(testDate, "rub")

	_, found, err := redisStorage.Fetch(ctx, key)
	var storageError *StorageError
	if !errors.As(err, &storageError) {
		t.Fatalf("Fetch() error = %v, want *StorageError", err)
	}
	if found {
		t.Error("Fetch() reported found while backend is down")
	}

	if _, err := redisStorage.Store(ctx, key, []byte("{}")); !errors.As(err, &storageError) {
		t.Fatalf("Store() error = %v, want *StorageError", err)
	}
	if storageError.Backend != KindRedis || storageError.Op != "store" {
		t.Errorf("StorageError = %+v", storageError)
	}
}

func TestNew(t *testing.T) {
	server := miniredis.RunT(t)
	log := logger.New("error")

	tests := []struct {
		name         string
		storageType  string
		redisURL     string
		expectedKind Kind
		expectError  bool
	}{
		{name: "file backend", storageType: config.StorageTypeFile, expectedKind: KindFile},
		{name: "redis backend", storageType: config.StorageTypeRedis, redisURL: "redis://" + server.Addr() + "/0", expectedKind: KindRedis},
		{name: "redis unreachable", storageType: config.StorageTypeRedis, redisURL: "redis://127.0.0.1:1/0", expectError: true},
		{name: "unknown backend", storageType: "memcached", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				StorageType: tt.storageType,
				CacheDir:    t.TempDir(),
				Redis: config.RedisConfig{
					URL:            tt.redisURL,
					ConnectTimeout: time.Second,
					KeyExpire:      time.Minute,
				},
			}

			backend, err := New(context.Background(), cfg, log)
			if tt.expectError {
				if err == nil {
					backend.Close()
					t.Fatal("New() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer backend.Close()

			if backend.Kind() != tt.expectedKind {
				t.Errorf("New() kind = %v, want %v", backend.Kind(), tt.expectedKind)
			}
		})
	}
}
