// Package token implements the bypass credential handed to a client after it
// solves a challenge. A token is self-contained: it is checked by signature
// and deadline alone, without the challenge it was issued for.
package token

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/uvensys/ironshield/lib/challenge"
)

var (
	ErrInvalidFormat = errors.New("token: field has invalid format")
	ErrBadSignature  = errors.New("token: authentication signature does not verify")
	ErrUntrustedKey  = errors.New("token: issued by an untrusted key")
	ErrExpired       = errors.New("token: token has expired")
)

type Token struct {
	ChallengeSignature      challenge.Signature `json:"challenge_signature"`      // from the solved challenge
	ValidFor                int64               `json:"valid_for"`                // unix milliseconds deadline
	IssuerPublicKey         challenge.PublicKey `json:"issuer_public_key"`        // key the signature verifies under
	AuthenticationSignature challenge.Signature `json:"authentication_signature"` // Ed25519 over the signable payload
}

// Issue signs a token for a solved challenge that stays valid for validity
// after now.
func Issue(signer *challenge.Signer, challengeSignature challenge.Signature, validity time.Duration, now time.Time) *Token {
	result := &Token{
		ChallengeSignature: challengeSignature,
		ValidFor:           now.Add(validity).UnixMilli(),
		IssuerPublicKey:    signer.PublicKey(),
	}
	result.AuthenticationSignature = signer.Sign(SignablePayload(result))

	return result
}

// SignablePayload is challenge_signature || valid_for (big endian).
func SignablePayload(t *Token) []byte {
	result := make([]byte, 0, len(t.ChallengeSignature)+8)
	result = append(result, t.ChallengeSignature[:]...)
	result = binary.BigEndian.AppendUint64(result, uint64(t.ValidFor))
	return result
}

// Verify checks the signature against the token's own embedded key and that
// now is not past the deadline.
func (t *Token) Verify(now time.Time) error {
	return t.VerifyWith(t.IssuerPublicKey, now)
}

// VerifyWith is Verify pinned to a trusted key. Tokens carrying any other
// issuer key are rejected before the signature is checked.
func (t *Token) VerifyWith(trusted challenge.PublicKey, now time.Time) error {
	if t.IssuerPublicKey != trusted {
		return ErrUntrustedKey
	}

	if !ed25519.Verify(ed25519.PublicKey(trusted[:]), SignablePayload(t), t.AuthenticationSignature[:]) {
		return ErrBadSignature
	}

	if t.ExpiredAt(now) {
		return fmt.Errorf("%w: deadline %s", ErrExpired, t.Deadline().UTC().Format(time.RFC3339))
	}

	return nil
}

// IsExpired reports whether the deadline has passed.
func (t *Token) IsExpired() bool {
	return t.ExpiredAt(time.Now())
}

func (t *Token) ExpiredAt(now time.Time) bool {
	return now.UnixMilli() > t.ValidFor
}

func (t *Token) Deadline() time.Time {
	return time.UnixMilli(t.ValidFor)
}
