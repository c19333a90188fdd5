// Package difficulty converts an external bot score into a proof-of-work
// difficulty and a difficulty into the 256-bit threshold a solution hash has
// to stay below.
package difficulty

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/uvensys/ironshield"
)

var (
	ErrScoreOutOfRange  = errors.New("difficulty: bot score out of range")
	ErrInvalidThreshold = errors.New("difficulty: threshold must be 32 hex-encoded bytes")
)

// Size is the width of a threshold in bytes.
const Size = 32

// Threshold is a 256-bit big-endian value. A digest is accepted when it is
// strictly less than the threshold.
type Threshold [Size]byte

// Max is the easiest threshold, returned for difficulty 1.
var Max = Threshold{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Admits reports whether digest, read as a big-endian unsigned integer, is
// strictly below the threshold.
func (t Threshold) Admits(digest [Size]byte) bool {
	return bytes.Compare(digest[:], t[:]) < 0
}

// ExpectedAttempts is 2^256 / t, the mean number of uniformly distributed
// digests drawn before one is admitted. It saturates at math.MaxUint64, which
// is also the result for the zero threshold.
func (t Threshold) ExpectedAttempts() uint64 {
	if t.IsZero() {
		return math.MaxUint64
	}

	result := new(big.Int).Lsh(big.NewInt(1), Size*8)
	result.Quo(result, new(big.Int).SetBytes(t[:]))
	if !result.IsUint64() {
		return math.MaxUint64
	}

	return result.Uint64()
}

// IsZero reports whether no digest can satisfy the threshold.
func (t Threshold) IsZero() bool {
	return t == Threshold{}
}

func (t Threshold) String() string {
	return hex.EncodeToString(t[:])
}

func (t Threshold) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Threshold) UnmarshalText(text []byte) error {
	parsed, err := ParseThreshold(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseThreshold decodes a hex-encoded threshold.
func ParseThreshold(s string) (Threshold, error) {
	var result Threshold

	data, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidThreshold, err)
	}

	if len(data) != Size {
		return result, fmt.Errorf("%w: got %d bytes", ErrInvalidThreshold, len(data))
	}

	copy(result[:], data)
	return result, nil
}

// Calibrator maps bot scores onto difficulties.
type Calibrator struct {
	Base          uint64
	ScalingFactor uint64
}

// Default returns a Calibrator with the stock base difficulty and scaling
// factor.
func Default() Calibrator {
	return Calibrator{
		Base:          ironshield.DefaultBaseDifficulty,
		ScalingFactor: ironshield.DefaultScalingFactor,
	}
}

// Difficulty is ScoreToDifficulty with the calibrator's parameters.
func (c Calibrator) Difficulty(score uint64) (uint64, error) {
	return ScoreToDifficulty(score, c.Base, c.ScalingFactor)
}

// ScoreToDifficulty maps a human-likelihood score (0 = bot, 99 = human) to
// (99-score)² * scalingFactor + base. Scores above 99 are rejected. The
// arithmetic saturates at math.MaxUint64 instead of wrapping.
func ScoreToDifficulty(score, base, scalingFactor uint64) (uint64, error) {
	if score > ironshield.MaxBotScore {
		return 0, fmt.Errorf("%w: %d > %d", ErrScoreOutOfRange, score, ironshield.MaxBotScore)
	}

	inverted := ironshield.MaxBotScore - score
	result := saturatingMul(saturatingMul(inverted, inverted), scalingFactor)
	return saturatingAdd(result, base), nil
}

// ToThreshold converts an expected attempt count into a threshold such that
// a uniformly distributed digest falls below it with probability of roughly
// 1/difficulty.
//
// The most significant set bit of the result is bit 256-B (counted from the
// least significant bit), where B is the bit length of difficulty, and every
// byte after the one holding that bit is 0xff. This approximates
// 2^256/difficulty and can be off by up to a factor of two between powers of
// two. math.MaxUint64 is the saturation value of ScoreToDifficulty and maps to
// the unsolvable all-zero threshold.
//
// ToThreshold panics when difficulty is zero. Callers must never feed it
// untrusted input.
func ToThreshold(difficulty uint64) Threshold {
	switch difficulty {
	case 0:
		panic("difficulty: ToThreshold called with zero difficulty")
	case 1:
		return Max
	case math.MaxUint64:
		return Threshold{}
	}

	var result Threshold

	bitLen := bits.Len64(difficulty)
	if bitLen > Size*8 {
		return result
	}

	pos := Size*8 - bitLen
	idx := Size - 1 - pos/8
	result[idx] = 1 << (pos % 8)
	for i := idx + 1; i < Size; i++ {
		result[i] = 0xff
	}

	return result
}

// RecommendedAttempts is three times the difficulty, saturating. Treat it as
// a planning upper bound, the expected count is the difficulty itself.
func RecommendedAttempts(difficulty uint64) uint64 {
	return saturatingMul(difficulty, 3)
}

func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}
