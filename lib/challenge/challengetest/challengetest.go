package challengetest

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uvensys/ironshield/lib/challenge"
	"github.com/uvensys/ironshield/lib/challenge/difficulty"
)

// KnownSeed is a seed whose first solving nonce at difficulty 10000 is
// KnownNonce.
const (
	KnownSeed  = "00112233445566778899aabbccddeeff"
	KnownNonce = 1721
)

// Signer returns a signer backed by a freshly generated key.
func Signer(t testing.TB) *challenge.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("can't generate ed25519 key: %v", err)
	}

	return challenge.NewSigner(priv, false)
}

// New issues a challenge for a random site at the given difficulty.
func New(t testing.TB, signer *challenge.Signer, d uint64) *challenge.Challenge {
	t.Helper()

	c, err := signer.Issue(uuid.Must(uuid.NewV7()).String(), difficulty.ToThreshold(d), time.Now())
	if err != nil {
		t.Fatalf("can't issue challenge: %v", err)
	}

	return c
}

// Known returns an unsigned challenge built on KnownSeed.
func Known(t testing.TB, d uint64) *challenge.Challenge {
	t.Helper()

	now := time.Now().UnixMilli()
	return &challenge.Challenge{
		RandomSeed:     KnownSeed,
		CreatedTime:    now,
		ExpirationTime: now + 30_000,
		SiteID:         "example.com",
		Threshold:      difficulty.ToThreshold(d),
	}
}
