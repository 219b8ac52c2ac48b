package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names of the persistent logical instances.
var (
	EncryptedBucket = []byte("encrypted")
	CommonBucket    = []byte("common")
)

// BoltDB owns the bbolt file that holds the persistent stores. Each logical
// store lives in its own bucket.
type BoltDB struct {
	mu   sync.RWMutex
	db   *bbolt.DB
	path string
}

// OpenBolt opens (creating if needed) the database at path with 0600
// permissions and makes sure the persistent buckets exist.
func OpenBolt(path string) (*BoltDB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vault database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{EncryptedBucket, CommonBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		closeAfterFailedOpen(db)
		return nil, err
	}

	if err := EnsureFilePermissions(path); err != nil {
		closeAfterFailedOpen(db)
		return nil, fmt.Errorf("failed to verify vault permissions: %w", err)
	}

	log.Debugf("Opened vault database at %s", path)

	return &BoltDB{db: db, path: path}, nil
}

// closeAfterFailedOpen releases a database whose setup failed. The setup
// error is the one reported, so a close error is only logged.
func closeAfterFailedOpen(db *bbolt.DB) {
	if err := db.Close(); err != nil {
		log.Warnf("Failed to close database: %v", err)
	}
}

// Path returns the database file location.
func (b *BoltDB) Path() string {
	return b.path
}

// Close releases the database file.
func (b *BoltDB) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Bucket returns a Storage scoped to one bucket of the database.
func (b *BoltDB) Bucket(name []byte) *BoltStorage {
	return &BoltStorage{parent: b, bucket: name}
}

// Size reports the size of the database as seen by a read transaction.
func (b *BoltDB) Size() (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return 0, ErrClosed
	}

	var size int64
	err := b.db.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

func (b *BoltDB) view(fn func(*bbolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrClosed
	}
	return b.db.View(fn)
}

func (b *BoltDB) update(fn func(*bbolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrClosed
	}
	return b.db.Update(fn)
}

// BoltStorage implements Storage and KeyLister over a single bucket.
type BoltStorage struct {
	parent *BoltDB
	bucket []byte
}

// Get returns the value stored at key.
func (s *BoltStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var (
		value string
		ok    bool
	)
	err := s.parent.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", s.bucket)
		}

		if raw := bucket.Get([]byte(key)); raw != nil {
			// bbolt memory is only valid inside the transaction.
			value = string(raw)
			ok = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	return value, ok, nil
}

// Set stores value at key.
func (s *BoltStorage) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.parent.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", s.bucket)
		}
		if err := bucket.Put([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		return nil
	})
}

// Remove deletes key. Removing a missing key is not an error.
func (s *BoltStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.parent.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", s.bucket)
		}
		return bucket.Delete([]byte(key))
	})
}

// Keys lists every key of the bucket in byte order.
func (s *BoltStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.parent.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", s.bucket)
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// EnsureFilePermissions ensures the file has secure permissions (0600)
func EnsureFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	// Check if permissions are too permissive
	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		// Fix permissions to 0600 (owner read/write only)
		return os.Chmod(path, 0o600)
	}

	return nil
}
