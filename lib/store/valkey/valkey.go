package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkey "github.com/redis/go-redis/v9"
	"github.com/uvensys/ironshield/lib/store"
)

// Store keeps values in valkey (or any Redis-compatible server) so every gate
// instance pointed at the same server shares one signing key.
type Store struct {
	rdb    *valkey.Client
	prefix string
}

func (s *Store) Create(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, value, expiry).Result()
	if err != nil {
		return fmt.Errorf("can't create %q in valkey: %w", key, err)
	}

	if !ok {
		return fmt.Errorf("%w: %q", store.ErrExists, key)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, s.prefix+key).Result()
	if err != nil {
		return fmt.Errorf("can't delete from valkey: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, valkey.Nil) {
			return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		return nil, fmt.Errorf("can't fetch from valkey: %w", err)
	}

	return result, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, expiry).Err(); err != nil {
		return fmt.Errorf("can't set %q in valkey: %w", key, err)
	}

	return nil
}
