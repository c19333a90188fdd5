package lib

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/uvensys/ironshield/lib/challenge"
	"github.com/uvensys/ironshield/lib/challenge/difficulty"
	"github.com/uvensys/ironshield/lib/challenge/proofofwork"
	"github.com/uvensys/ironshield/lib/policy/config"
	"github.com/uvensys/ironshield/lib/token"
)

// Gate is everything a hosting shell needs from IronShield.
type Gate interface {
	IssueChallenge(siteID string, score uint64) (*challenge.Challenge, error)
	VerifySolution(c *challenge.Challenge, resp challenge.Response) bool
	IssueToken(challengeSignature challenge.Signature) *token.Token
	VerifyToken(t *token.Token) bool
}

var _ Gate = (*Core)(nil)

// Core implements Gate with one signing key. It keeps no per-challenge
// state, so one Core may serve any number of goroutines.
type Core struct {
	signer        *challenge.Signer
	calibrator    difficulty.Calibrator
	maxAge        time.Duration
	tokenValidity time.Duration

	// Now is the clock every timestamp is read from.
	Now func() time.Time
}

func NewCore(signer *challenge.Signer, cfg *config.Config) *Core {
	return &Core{
		signer: signer,
		calibrator: difficulty.Calibrator{
			Base:          cfg.Difficulty.Base,
			ScalingFactor: cfg.Difficulty.ScalingFactor,
		},
		maxAge:        cfg.MaxChallengeAge,
		tokenValidity: cfg.TokenValidity,
		Now:           time.Now,
	}
}

func (c *Core) Signer() *challenge.Signer {
	return c.signer
}

func (c *Core) MaxAge() time.Duration {
	return c.maxAge
}

// IssueChallenge signs a fresh challenge for siteID whose difficulty follows
// from the bot score.
func (c *Core) IssueChallenge(siteID string, score uint64) (*challenge.Challenge, error) {
	d, err := c.calibrator.Difficulty(score)
	if err != nil {
		return nil, fmt.Errorf("lib: can't calibrate difficulty: %w", err)
	}

	result, err := c.signer.Issue(siteID, difficulty.ToThreshold(d), c.Now())
	if err != nil {
		return nil, fmt.Errorf("lib: can't issue challenge: %w", err)
	}

	challengesIssued.Inc()
	slog.Debug("issued challenge", "site", siteID, "score", score, "difficulty", d, "expected_attempts", difficulty.RecommendedAttempts(d))
	return result, nil
}

func (c *Core) VerifySolution(ch *challenge.Challenge, resp challenge.Response) bool {
	return c.Verify(ch, resp) == nil
}

// Verify is VerifySolution with the reason for a rejection.
func (c *Core) Verify(ch *challenge.Challenge, resp challenge.Response) error {
	return proofofwork.Check(c.signer, ch, resp, c.Now(), c.maxAge)
}

func (c *Core) IssueToken(challengeSignature challenge.Signature) *token.Token {
	tokensIssued.Inc()
	return token.Issue(c.signer, challengeSignature, c.tokenValidity, c.Now())
}

func (c *Core) VerifyToken(t *token.Token) bool {
	return c.CheckToken(t) == nil
}

// CheckToken is VerifyToken with the reason for a rejection. Only tokens
// signed by this Core's key are accepted.
func (c *Core) CheckToken(t *token.Token) error {
	return t.VerifyWith(c.signer.PublicKey(), c.Now())
}
