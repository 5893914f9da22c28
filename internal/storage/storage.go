package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dalfonso89/currency-rates-service/internal/config"
	"github.com/dalfonso89/currency-rates-service/internal/logger"
	"github.com/dalfonso89/currency-rates-service/internal/models"
)

// Kind identifies a storage backend and, with it, the cache key template
type Kind int

const (
	KindFile Kind = iota
	KindRedis
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return config.StorageTypeFile
	case KindRedis:
		return config.StorageTypeRedis
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// CacheStorage stores serialized currency info payloads.
//
// Fetch reports absence with found == false and a nil error; a non-nil error
// always means the backend could not be reached or read. Store overwrites any
// previous value (last write wins) and hands the payload back unchanged.
type CacheStorage interface {
	Kind() Kind
	Key(date time.Time, currency string) string
	Fetch(ctx context.Context, key string) (payload []byte, found bool, err error)
	Store(ctx context.Context, key string, payload []byte) ([]byte, error)
	Close() error
}

// DeriveKey renders the cache key for date and currency under the template of kind
func DeriveKey(kind Kind, date time.Time, currency string) string {
	base := models.NewDate(date).String() + "-" + strings.ToLower(currency)
	if kind == KindFile {
		return base + ".json"
	}
	return base
}

// StorageError reports a backend failure; it is never used for a plain miss
type StorageError struct {
	Backend Kind
	Op      string
	Key     string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// New creates the storage backend selected by configuration
func New(ctx context.Context, configuration *config.Config, log logger.Logger) (CacheStorage, error) {
	switch configuration.StorageType {
	case config.StorageTypeFile:
		fileStorage, err := NewFileStorage(configuration.CacheDir)
		if err != nil {
			return nil, err
		}
		log.Infof("Using file cache storage in %s", configuration.CacheDir)
		return fileStorage, nil
	case config.StorageTypeRedis:
		redisStorage, err := NewRedisStorageFromURL(ctx, configuration.Redis)
		if err != nil {
			return nil, err
		}
		log.Infof("Using redis cache storage with %s expiry", configuration.Redis.KeyExpire)
		return redisStorage, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", configuration.StorageType)
	}
}
