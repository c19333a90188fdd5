package token

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	separator  = "|"
	tokenParts = 4
)

// Encode returns the canonical pipe-delimited form:
//
//	hex(challenge_signature)|valid_for|hex(public_key)|hex(authentication_signature)
func (t *Token) Encode() string {
	return strings.Join([]string{
		hex.EncodeToString(t.ChallengeSignature[:]),
		strconv.FormatInt(t.ValidFor, 10),
		hex.EncodeToString(t.IssuerPublicKey[:]),
		hex.EncodeToString(t.AuthenticationSignature[:]),
	}, separator)
}

// EncodeBase64 wraps Encode in unpadded base64url for use as a cookie value.
func (t *Token) EncodeBase64() string {
	return base64.RawURLEncoding.EncodeToString([]byte(t.Encode()))
}

func Decode(s string) (*Token, error) {
	parts := strings.Split(s, separator)
	if len(parts) != tokenParts {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidFormat, tokenParts, len(parts))
	}

	var result Token

	if err := decodeHexInto("challenge_signature", parts[0], result.ChallengeSignature[:]); err != nil {
		return nil, err
	}

	validFor, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: valid_for: %w", ErrInvalidFormat, err)
	}
	result.ValidFor = validFor

	if err := decodeHexInto("issuer_public_key", parts[2], result.IssuerPublicKey[:]); err != nil {
		return nil, err
	}

	if err := decodeHexInto("authentication_signature", parts[3], result.AuthenticationSignature[:]); err != nil {
		return nil, err
	}

	return &result, nil
}

func DecodeBase64(s string) (*Token, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrInvalidFormat, err)
	}

	return Decode(string(data))
}

// Parse accepts either the plain canonical form or its base64url wrapping.
func Parse(s string) (*Token, error) {
	if strings.Contains(s, separator) {
		return Decode(s)
	}

	return DecodeBase64(s)
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
