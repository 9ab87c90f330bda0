// Package kv wraps a single embedded bbolt database file with a minimal
// bucketed get/put/delete surface, used by internal/credential as the
// settings store backing the credential envelope.
package kv

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"go.etcd.io/bbolt"
)

// Store is a thin wrapper around one bbolt file opened for the lifetime
// of the process.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path. The file is
// created with 0600 permissions; an existing file with broader
// permissions is rejected.
func Open(path string) (*Store, error) {
	if err := checkFilePermissions(path); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil // file does not exist yet; bbolt will create it at 0600
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("kv: store file %s has insecure permissions %04o (expected 0600)", path, mode)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes value under key in bucket, creating the bucket if absent.
func (s *Store) Put(bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// Get reads the value under key in bucket. Returns ok=false if the
// bucket or key is absent.
func (s *Store) Get(bucket, key string) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		ok = true
		value = append([]byte(nil), v...)
		return nil
	})
	return value, ok, err
}

// Delete removes key from bucket. No error if the key or bucket is absent.
func (s *Store) Delete(bucket, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
