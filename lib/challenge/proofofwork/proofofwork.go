package proofofwork

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/uvensys/ironshield"
	chall "github.com/uvensys/ironshield/lib/challenge"
)

const (
	MethodThreshold = "threshold"
	MethodLegacy    = "legacy"
)

func init() {
	chall.Register(MethodThreshold, &Impl{Algorithm: MethodThreshold})
	chall.Register(MethodLegacy, &Impl{Algorithm: MethodLegacy})
}

// Impl validates solutions sent in the four X-IronShield request headers.
//
// "threshold" expects the nonce to bring SHA-256(seed || nonce) under the
// signed threshold. "legacy" expects hex(SHA-256("<challenge>:<nonce>")) to
// start with LegacyZeros(threshold) zeros, where <challenge> is the header
// value exactly as issued.
type Impl struct {
	Algorithm string
}

func (i *Impl) DifficultyHeader(c *chall.Challenge) string {
	if i.Algorithm == MethodLegacy {
		return strconv.Itoa(LegacyZeros(c.Threshold))
	}

	return c.Threshold.String()
}

func (i *Impl) Validate(r *http.Request, lg *slog.Logger, in *chall.ValidateInput) (*chall.Challenge, error) {
	fields := map[string]string{}
	for _, name := range []string{
		ironshield.ChallengeHeader,
		ironshield.NonceHeader,
		ironshield.TimestampHeader,
		ironshield.DifficultyHeader,
	} {
		val := r.Header.Get(name)
		if val == "" {
			return nil, fail(fmt.Errorf("%w %s", chall.ErrMissingField, name))
		}
		fields[name] = val
	}

	raw := fields[ironshield.ChallengeHeader]
	c, err := chall.Parse(raw)
	if err != nil {
		return nil, fail(err)
	}

	nonceStr := fields[ironshield.NonceHeader]
	nonce, err := strconv.ParseInt(nonceStr, 10, 64)
	if err != nil {
		return nil, fail(fmt.Errorf("%w: nonce: %w", chall.ErrInvalidFormat, err))
	}

	timestamp, err := strconv.ParseInt(fields[ironshield.TimestampHeader], 10, 64)
	if err != nil {
		return nil, fail(fmt.Errorf("%w: timestamp: %w", chall.ErrInvalidFormat, err))
	}

	if timestamp != c.CreatedTime {
		return nil, fail(fmt.Errorf("%w: timestamp %d does not match challenge created_time %d", chall.ErrFailed, timestamp, c.CreatedTime))
	}

	if got, want := fields[ironshield.DifficultyHeader], i.DifficultyHeader(c); got != want {
		return nil, fail(fmt.Errorf("%w: difficulty %q does not match challenge %q", chall.ErrFailed, got, want))
	}

	switch i.Algorithm {
	case MethodLegacy:
		if err := in.Signer.Check(c, in.Now, in.MaxAge); err != nil {
			return nil, fail(err)
		}

		if zeros := LegacyZeros(c.Threshold); !VerifySolutionLegacy(raw, nonceStr, zeros) {
			return nil, fail(fmt.Errorf("%w: wanted %d leading zeros but got %s", chall.ErrFailed, zeros, LegacyHash(raw, nonceStr)))
		}
	default:
		if err := Check(in.Signer, c, c.Respond(nonce), in.Now, in.MaxAge); err != nil {
			return nil, fail(err)
		}
	}

	elapsed := in.Now.UnixMilli() - c.CreatedTime
	lg.Debug("challenge took", "elapsedTime", elapsed, "method", i.Algorithm)
	chall.TimeTaken.WithLabelValues(i.Algorithm).Observe(float64(elapsed))

	return c, nil
}

func fail(err error) error {
	return chall.NewError("validate", chall.PublicFailure, err)
}
