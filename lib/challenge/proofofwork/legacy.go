package proofofwork

import (
	"context"
	"strconv"
	"strings"

	"github.com/uvensys/ironshield/internal"
	"github.com/uvensys/ironshield/lib/challenge/difficulty"
)

// LegacyHash is hex(SHA-256("<challenge>:<nonce>")), the scheme older clients
// solve against.
func LegacyHash(challenge, nonce string) string {
	return internal.SHA256sum(challenge + ":" + nonce)
}

// VerifySolutionLegacy reports whether nonce is an integer whose legacy hash
// starts with at least zeros '0' characters.
func VerifySolutionLegacy(challenge, nonce string, zeros int) bool {
	if _, err := strconv.ParseInt(nonce, 10, 64); err != nil {
		return false
	}

	if zeros > 2*difficulty.Size {
		return false
	}

	return strings.HasPrefix(LegacyHash(challenge, nonce), strings.Repeat("0", max(zeros, 0)))
}

// SolveLegacy returns the smallest nonce below maxAttempts that satisfies
// VerifySolutionLegacy.
func SolveLegacy(ctx context.Context, challenge string, zeros int, maxAttempts int64) (int64, error) {
	if zeros > 2*difficulty.Size {
		return 0, ErrExhausted
	}

	prefix := strings.Repeat("0", max(zeros, 0))
	for nonce := range maxAttempts {
		if nonce%legacyCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		if strings.HasPrefix(LegacyHash(challenge, strconv.FormatInt(nonce, 10)), prefix) {
			solutionsFound.WithLabelValues("legacy").Inc()
			return nonce, nil
		}
	}

	return 0, ErrExhausted
}

// LegacyZeros is the only mapping from a threshold to the legacy scheme: the
// number of leading '0' hex digits of th. A prefix of z zeros costs 16^z
// expected attempts, which is at most th.ExpectedAttempts() and more than a
// sixteenth of it. The default base difficulty of 10000 gives threshold
// 0004ff.., so 3 zeros (4096 attempts against 13107 for the threshold).
func LegacyZeros(th difficulty.Threshold) int {
	hex := th.String()
	return len(hex) - len(strings.TrimLeft(hex, "0"))
}

const legacyCheckEvery = 4096
