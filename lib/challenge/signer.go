package challenge

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/uvensys/ironshield/lib/challenge/difficulty"
)

// SeedSize is the number of random bytes behind each challenge's seed.
const SeedSize = 16

// Signer issues challenges and checks them against the same key. A gate only
// ever trusts challenges carrying its own public key.
type Signer struct {
	key    ed25519.PrivateKey
	public PublicKey

	// BindSiteID appends the site ID to the signed payload so a challenge
	// cannot be moved between protected properties.
	BindSiteID bool
}

func NewSigner(key ed25519.PrivateKey, bindSiteID bool) *Signer {
	result := &Signer{
		key:        key,
		BindSiteID: bindSiteID,
	}
	copy(result.public[:], key.Public().(ed25519.PublicKey))
	return result
}

func (s *Signer) PublicKey() PublicKey {
	return s.public
}

// Sign signs an arbitrary message with the gate key.
func (s *Signer) Sign(msg []byte) Signature {
	var result Signature
	copy(result[:], ed25519.Sign(s.key, msg))
	return result
}

// Issue creates and signs a fresh challenge for siteID.
func (s *Signer) Issue(siteID string, threshold difficulty.Threshold, now time.Time) (*Challenge, error) {
	if strings.Contains(siteID, separator) {
		return nil, fmt.Errorf("%w: site_id may not contain %q", ErrInvalidFormat, separator)
	}

	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("challenge: can't generate seed: %w", err)
	}

	created := now.UnixMilli()
	result := &Challenge{
		RandomSeed:      hex.EncodeToString(seed),
		CreatedTime:     created,
		ExpirationTime:  expirationFor(created),
		SiteID:          siteID,
		Threshold:       threshold,
		IssuerPublicKey: s.public,
	}

	payload, err := SignablePayload(result, s.BindSiteID)
	if err != nil {
		return nil, err
	}
	result.ChallengeSignature = s.Sign(payload)

	return result, nil
}

// Verify checks that c was signed by this signer.
func (s *Signer) Verify(c *Challenge) error {
	if c.IssuerPublicKey != s.public {
		return fmt.Errorf("%w: foreign issuer key", ErrBadSignature)
	}

	payload, err := SignablePayload(c, s.BindSiteID)
	if err != nil {
		return err
	}

	if !ed25519.Verify(ed25519.PublicKey(s.public[:]), payload, c.ChallengeSignature[:]) {
		return ErrBadSignature
	}

	return nil
}

// Check verifies the signature on c and that it was created no more than
// maxAge before now. Timestamps in the future are not rejected.
func (s *Signer) Check(c *Challenge, now time.Time, maxAge time.Duration) error {
	if err := s.Verify(c); err != nil {
		validations.WithLabelValues("bad_signature").Inc()
		return err
	}

	if age := now.UnixMilli() - c.CreatedTime; age > maxAge.Milliseconds() {
		validations.WithLabelValues("stale").Inc()
		return fmt.Errorf("%w: age %dms exceeds %s", ErrStale, age, maxAge)
	}

	validations.WithLabelValues("ok").Inc()
	return nil
}

// SignablePayload is the exact byte sequence covered by a challenge
// signature:
//
//	seed || created_time (BE) || expiration_time (BE) || threshold [|| len(site_id) (BE32) || site_id]
func SignablePayload(c *Challenge, bindSiteID bool) ([]byte, error) {
	seed, err := c.Seed()
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, len(seed)+16+difficulty.Size+4+len(c.SiteID))
	result = append(result, seed...)
	result = binary.BigEndian.AppendUint64(result, uint64(c.CreatedTime))
	result = binary.BigEndian.AppendUint64(result, uint64(c.ExpirationTime))
	result = append(result, c.Threshold[:]...)
	if bindSiteID {
		result = binary.BigEndian.AppendUint32(result, uint32(len(c.SiteID)))
		result = append(result, c.SiteID...)
	}

	return result, nil
}
