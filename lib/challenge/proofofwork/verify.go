package proofofwork

import (
	"fmt"
	"time"

	chall "github.com/uvensys/ironshield/lib/challenge"
)

// VerifySolution reports whether nonce solves c. It only checks the hash;
// signature and freshness are Check's job.
func VerifySolution(c *chall.Challenge, nonce int64) bool {
	seed, err := c.Seed()
	if err != nil {
		return false
	}

	return c.Threshold.Admits(Hash(seed, nonce))
}

// Check runs every test a response must pass: it must answer c, c must be
// signed by signer and no older than maxAge, and the solution must satisfy
// the threshold.
func Check(signer *chall.Signer, c *chall.Challenge, resp chall.Response, now time.Time, maxAge time.Duration) error {
	if resp.ChallengeSignature != c.ChallengeSignature {
		return chall.ErrWrongChallenge
	}

	if err := signer.Check(c, now, maxAge); err != nil {
		return err
	}

	if !VerifySolution(c, resp.Solution) {
		return fmt.Errorf("%w: nonce %d does not meet threshold %s", chall.ErrFailed, resp.Solution, c.Threshold)
	}

	return nil
}
