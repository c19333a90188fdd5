package challenge

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	separator      = "|"
	challengeParts = 7
	responseParts  = 2
)

// Encode returns the canonical pipe-delimited form:
//
//	random_seed|created_time|expiration_time|site_id|hex(threshold)|hex(public_key)|hex(signature)
func (c *Challenge) Encode() string {
	return strings.Join([]string{
		c.RandomSeed,
		strconv.FormatInt(c.CreatedTime, 10),
		strconv.FormatInt(c.ExpirationTime, 10),
		c.SiteID,
		hex.EncodeToString(c.Threshold[:]),
		hex.EncodeToString(c.IssuerPublicKey[:]),
		hex.EncodeToString(c.ChallengeSignature[:]),
	}, separator)
}

// EncodeBase64 wraps Encode in unpadded base64url so it fits in one header
// value or query parameter.
func (c *Challenge) EncodeBase64() string {
	return base64.RawURLEncoding.EncodeToString([]byte(c.Encode()))
}

// Decode parses the output of Encode.
func Decode(s string) (*Challenge, error) {
	parts := strings.Split(s, separator)
	if len(parts) != challengeParts {
		return nil, fmt.Errorf("%w: challenge: expected %d fields, got %d", ErrInvalidFormat, challengeParts, len(parts))
	}

	if _, err := decodeSeed(parts[0]); err != nil {
		return nil, err
	}

	created, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: created_time: %w", ErrInvalidFormat, err)
	}

	expiration, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expiration_time: %w", ErrInvalidFormat, err)
	}

	result := &Challenge{
		RandomSeed:     parts[0],
		CreatedTime:    created,
		ExpirationTime: expiration,
		SiteID:         parts[3],
	}

	if err := decodeHexInto("threshold", parts[4], result.Threshold[:]); err != nil {
		return nil, err
	}

	if err := decodeHexInto("public_key", parts[5], result.IssuerPublicKey[:]); err != nil {
		return nil, err
	}

	if err := decodeHexInto("challenge_signature", parts[6], result.ChallengeSignature[:]); err != nil {
		return nil, err
	}

	return result, nil
}

// DecodeBase64 parses the output of EncodeBase64.
func DecodeBase64(s string) (*Challenge, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: challenge: base64: %w", ErrInvalidFormat, err)
	}

	return Decode(string(data))
}

// Parse accepts either the plain canonical form or its base64url wrapping.
func Parse(s string) (*Challenge, error) {
	if strings.Contains(s, separator) {
		return Decode(s)
	}

	return DecodeBase64(s)
}

// Encode returns hex(challenge_signature)|solution.
func (r Response) Encode() string {
	return hex.EncodeToString(r.ChallengeSignature[:]) + separator + strconv.FormatInt(r.Solution, 10)
}

// DecodeResponse parses the output of Response.Encode.
func DecodeResponse(s string) (Response, error) {
	var result Response

	parts := strings.Split(s, separator)
	if len(parts) != responseParts {
		return result, fmt.Errorf("%w: response: expected %d fields, got %d", ErrInvalidFormat, responseParts, len(parts))
	}

	if err := decodeHexInto("challenge_signature", parts[0], result.ChallengeSignature[:]); err != nil {
		return result, err
	}

	solution, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return result, fmt.Errorf("%w: solution: %w", ErrInvalidFormat, err)
	}
	result.Solution = solution

	return result, nil
}

func decodeSeed(seed string) ([]byte, error) {
	if seed == "" {
		return nil, fmt.Errorf("%w: random_seed is empty", ErrInvalidFormat)
	}

	data, err := hex.DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: random_seed: %w", ErrInvalidFormat, err)
	}

	// Every other signed field is fixed width, so a fixed seed width keeps
	// the signed bytes from being re-split into a different challenge.
	if len(data) != SeedSize {
		return nil, fmt.Errorf("%w: random_seed must be %d bytes, got %d", ErrInvalidFormat, SeedSize, len(data))
	}

	return data, nil
}

func decodeHexInto(field, value string, dst []byte) error {
	data, err := hex.DecodeString(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFormat, field, err)
	}

	if len(data) != len(dst) {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrInvalidFormat, field, len(dst), len(data))
	}

	copy(dst, data)
	return nil
}
