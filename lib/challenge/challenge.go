package challenge

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/uvensys/ironshield"
	"github.com/uvensys/ironshield/lib/challenge/difficulty"
)

// Signature is a raw Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// PublicKey is a raw Ed25519 public key.
type PublicKey [ed25519.PublicKeySize]byte

// Challenge is a signed, time-bounded proof-of-work puzzle. It is never
// stored server-side: the signature and the embedded timestamps are all that
// keep it honest.
type Challenge struct {
	RandomSeed         string               `json:"random_seed"`         // hex-encoded per-challenge entropy
	CreatedTime        int64                `json:"created_time"`        // unix milliseconds
	ExpirationTime     int64                `json:"expiration_time"`     // CreatedTime + 30s
	SiteID             string               `json:"site_id"`             // protected property
	Threshold          difficulty.Threshold `json:"threshold"`           // digests must be strictly below this
	IssuerPublicKey    PublicKey            `json:"issuer_public_key"`   // key the signature verifies under
	ChallengeSignature Signature            `json:"challenge_signature"` // Ed25519 over the signable payload
}

// Response answers one specific challenge. The copied signature keeps a
// solution from being replayed against a different challenge.
type Response struct {
	ChallengeSignature Signature `json:"challenge_signature"`
	Solution           int64     `json:"solution"`
}

// IsExpired reports whether the challenge's expiration time has passed.
func (c *Challenge) IsExpired() bool {
	return time.Now().UnixMilli() > c.ExpirationTime
}

// TimeUntilExpiration is negative once the challenge has expired.
func (c *Challenge) TimeUntilExpiration() time.Duration {
	return time.Duration(c.ExpirationTime-time.Now().UnixMilli()) * time.Millisecond
}

// Created returns CreatedTime as a time.Time.
func (c *Challenge) Created() time.Time {
	return time.UnixMilli(c.CreatedTime)
}

// Seed decodes RandomSeed.
func (c *Challenge) Seed() ([]byte, error) {
	return decodeSeed(c.RandomSeed)
}

// Respond builds the Response for a solution to c.
func (c *Challenge) Respond(solution int64) Response {
	return Response{
		ChallengeSignature: c.ChallengeSignature,
		Solution:           solution,
	}
}

func expirationFor(created int64) int64 {
	return created + ironshield.ChallengeTTL.Milliseconds()
}

func (s Signature) MarshalText() ([]byte, error) {
	return marshalFixed(s[:]), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	return unmarshalFixed("signature", text, s[:])
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return marshalFixed(p[:]), nil
}

func (p *PublicKey) UnmarshalText(text []byte) error {
	return unmarshalFixed("public key", text, p[:])
}

func marshalFixed(data []byte) []byte {
	result := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(result, data)
	return result
}

func unmarshalFixed(what string, text []byte, dst []byte) error {
	data, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFormat, what, err)
	}

	if len(data) != len(dst) {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrInvalidFormat, what, len(dst), len(data))
	}

	copy(dst, data)
	return nil
}
