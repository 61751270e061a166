package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// CacheFilename is the profile cache file inside the output directory.
	CacheFilename = "profiles.bolt"

	profileBucket = "profiles"
)

// BoltCache is a small JSON key/value cache backed by BoltDB. It remembers
// remote profile lookups (accounts, character names) between runs.
type BoltCache struct {
	db *bolt.DB
}

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(profileBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return &BoltCache{db: db}, nil
}

// Get decodes the value stored under key into v. It reports false when
// the key is absent.
func (c *BoltCache) Get(key string, v any) (bool, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(profileBucket))
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Put stores v as JSON under key.
func (c *BoltCache) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(profileBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Close releases the database file.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

// DefaultCachePath returns the cache location inside outputDir.
func DefaultCachePath(outputDir string) string {
	return filepath.Join(outputDir, CacheFilename)
}
