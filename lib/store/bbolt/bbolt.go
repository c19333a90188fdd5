package bbolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uvensys/ironshield/lib/store"
	"go.etcd.io/bbolt"
)

// Sentinel error values used for testing and in admin-visible error messages.
var (
	ErrBucketDoesNotExist = errors.New("bbolt: bucket does not exist")
	ErrNotExists          = errors.New("bbolt: value does not exist in store")
)

var (
	keyData   = []byte("data")
	keyExpiry = []byte("expiry")
)

// Store implements store.Interface backed by bbolt[1].
//
// All values live under one root bucket. Each value gets its own nested
// bucket holding two keys:
//
//  1. data - the raw bytes
//  2. expiry - the expiry time formatted as a time.RFC3339Nano timestamp
//
// Cleanup only has to read expiry keys to find dead values.
//
// A bbolt file can only be opened by one process at a time, so this backend
// keeps a signing key across restarts of a single gate. Use valkey to share
// one key between several instances.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb    *bbolt.DB
	bucket []byte
}

func (s *Store) root(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	result := tx.Bucket(s.bucket)
	if result == nil {
		return nil, fmt.Errorf("%w: %q", ErrBucketDoesNotExist, string(s.bucket))
	}

	return result, nil
}

func readExpiry(key string, valueBkt *bbolt.Bucket) (time.Time, error) {
	expiryStr := valueBkt.Get(keyExpiry)
	if expiryStr == nil {
		return time.Time{}, fmt.Errorf("[unexpected] %w: %q (expiry is nil)", store.ErrNotFound, key)
	}

	expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
	if err != nil {
		return time.Time{}, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	return expiry, nil
}

func put(root *bbolt.Bucket, key string, value []byte, expiry time.Duration) error {
	if root.Bucket([]byte(key)) != nil {
		if err := root.DeleteBucket([]byte(key)); err != nil {
			return fmt.Errorf("%w: %w: %q (replace bucket)", store.ErrCantEncode, err, key)
		}
	}

	valueBkt, err := root.CreateBucket([]byte(key))
	if err != nil {
		return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, key)
	}

	if err := valueBkt.Put(keyExpiry, []byte(time.Now().Add(expiry).Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("%w: %q (expiry)", store.ErrCantEncode, key)
	}

	if err := valueBkt.Put(keyData, value); err != nil {
		return fmt.Errorf("%w: %q (data)", store.ErrCantEncode, key)
	}

	return nil
}

// Create sets a value only if the key is missing or expired.
func (s *Store) Create(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		root, err := s.root(tx)
		if err != nil {
			return err
		}

		if valueBkt := root.Bucket([]byte(key)); valueBkt != nil {
			exp, err := readExpiry(key, valueBkt)
			if err == nil && time.Now().Before(exp) {
				return fmt.Errorf("%w: %q", store.ErrExists, key)
			}
		}

		return put(root, key, value, expiry)
	})
}

// Delete a key from the datastore. If the key does not exist, return an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		root, err := s.root(tx)
		if err != nil {
			return err
		}

		if root.Bucket([]byte(key)) == nil {
			return fmt.Errorf("%w: %w: %q", store.ErrNotFound, ErrNotExists, key)
		}

		return root.DeleteBucket([]byte(key))
	})
}

// Get a value from the datastore. Expired values are reported as missing and
// left for the cleanup thread.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		root, err := s.root(tx)
		if err != nil {
			return err
		}

		valueBkt := root.Bucket([]byte(key))
		if valueBkt == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		expiry, err := readExpiry(key, valueBkt)
		if err != nil {
			return err
		}

		if time.Now().After(expiry) {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		data := valueBkt.Get(keyData)
		if data == nil {
			return fmt.Errorf("[unexpected] %w: %q (data is nil)", store.ErrNotFound, key)
		}

		// bbolt memory is only valid inside the transaction.
		result = append([]byte(nil), data...)
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		root, err := s.root(tx)
		if err != nil {
			return err
		}

		return put(root, key, value, expiry)
	})
}

func (s *Store) cleanup(ctx context.Context) error {
	now := time.Now()

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		root, err := s.root(tx)
		if err != nil {
			return err
		}

		var dead [][]byte
		if err := root.ForEachBucket(func(key []byte) error {
			expiry, err := readExpiry(string(key), root.Bucket(key))
			if err != nil {
				slog.Warn("while running cleanup, can't read expiry", "key", string(key), "err", err)
				return nil
			}

			if now.After(expiry) {
				dead = append(dead, append([]byte(nil), key...))
			}

			return nil
		}); err != nil {
			return err
		}

		for _, key := range dead {
			if err := root.DeleteBucket(key); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Store) cleanupThread(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.bdb.Close(); err != nil {
				slog.Error("can't close bbolt database", "err", err)
			}
			return
		case <-t.C:
			if err := s.cleanup(ctx); err != nil {
				slog.Error("error during bbolt cleanup", "err", err)
			}
		}
	}
}
