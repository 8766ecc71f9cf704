package repository

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
)

var settingsBucket = []byte("wisdk_settings")

// BoltBackend stores blobs in a single-file bbolt database. It is the
// default on-device store.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file and ensures the settings
// bucket exists.
func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

// Close closes the underlying database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Load returns the blob stored under key, or domain.ErrNotFound.
func (b *BoltBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(settingsBucket).Get([]byte(key))
		if v == nil {
			return domain.ErrNotFound
		}
		blob = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// Save writes the blob under key.
func (b *BoltBackend) Save(ctx context.Context, key string, blob []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), blob)
	})
}

// Delete removes the blob under key. Deleting a missing key is not an
// error.
func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Delete([]byte(key))
	})
}
