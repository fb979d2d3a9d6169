package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when no object exists under the key
var ErrNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that are empty or escape the store
var ErrInvalidKey = errors.New("invalid storage key")

// Storage interface for the persisted embedding cache
type Storage interface {
	// Put stores data under key, replacing any previous object
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key; missing objects are not an error
	Delete(ctx context.Context, key string) error
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type         StorageType
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	S3Prefix     string // Optional key prefix inside the bucket
	AWSAccessKey string
	AWSSecretKey string
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3 bucket is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// cleanKey normalizes a slash separated key and rejects traversal
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
