// Package signingkey loads the gate's Ed25519 key from a store so every
// instance sharing that store signs and verifies with the same key.
package signingkey

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uvensys/ironshield/internal"
	"github.com/uvensys/ironshield/lib/store"
)

const keyPrefix = "signing-key:"

var ErrBadKey = errors.New("signingkey: stored key is invalid")

type record struct {
	Seed    []byte    `json:"seed"`
	Created time.Time `json:"created"`
}

// LoadOrGenerate returns the key stored under name, creating one when none
// exists. If several instances race to create it, the first write wins and
// everyone else loads that key.
func LoadOrGenerate(ctx context.Context, st store.Interface, name string, ttl time.Duration) (ed25519.PrivateKey, error) {
	db := &store.JSON[record]{
		Underlying: st,
		Prefix:     keyPrefix,
	}

	key, err := load(ctx, db, name)
	switch {
	case err == nil:
		slog.Debug("loaded signing key", "name", name, "fingerprint", Fingerprint(key))
		return key, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("signingkey: can't generate seed: %w", err)
	}

	err = db.Create(ctx, name, record{Seed: seed, Created: time.Now().UTC()}, ttl)
	switch {
	case err == nil:
		key := ed25519.NewKeyFromSeed(seed)
		slog.Info("generated signing key", "name", name, "fingerprint", Fingerprint(key), "ttl", ttl)
		return key, nil
	case errors.Is(err, store.ErrExists):
		slog.Debug("another instance created the signing key first", "name", name)
		return load(ctx, db, name)
	default:
		return nil, fmt.Errorf("signingkey: can't store key %q: %w", name, err)
	}
}

func load(ctx context.Context, db *store.JSON[record], name string) (ed25519.PrivateKey, error) {
	rec, err := db.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	if len(rec.Seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: %q has a %d byte seed", ErrBadKey, name, len(rec.Seed))
	}

	return ed25519.NewKeyFromSeed(rec.Seed), nil
}

// FromHex parses a hex-encoded 32 byte Ed25519 seed.
func FromHex(value string) (ed25519.PrivateKey, error) {
	keyBytes, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("supplied key is not hex-encoded: %w", err)
	}

	if len(keyBytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("supplied key is not %d bytes long, got %d bytes", ed25519.SeedSize, len(keyBytes))
	}

	return ed25519.NewKeyFromSeed(keyBytes), nil
}

// Fingerprint identifies a key in logs without revealing it.
func Fingerprint(key ed25519.PrivateKey) string {
	return internal.FastHash(key.Public().(ed25519.PublicKey))
}
