// Package ironshield contains the version number and protocol constants of
// the IronShield proof-of-work gate.
package ironshield

import "time"

// Version is the current version of IronShield.
//
// This variable is set at build time using the -X linker flag. If not set,
// it defaults to "devel".
var Version = "devel"

// CookieName is the name of the cookie that carries the bypass token.
var CookieName = "ironshield_token"

// BasePrefix is a global prefix for all IronShield endpoints. Can be empty to
// mount at the root.
var BasePrefix = ""

// Protocol header names. The four challenge slots must all be present for a
// request to count as a solution attempt.
const (
	ChallengeHeader  = "X-IronShield-Challenge"
	NonceHeader      = "X-IronShield-Nonce"
	TimestampHeader  = "X-IronShield-Timestamp"
	DifficultyHeader = "X-IronShield-Difficulty"
	TokenHeader      = "X-IronShield-Token"
	StatusHeader     = "X-IronShield-Status"
	BotScoreHeader   = "X-IronShield-Bot-Score"
)

// APIPrefix is the prefix that all IronShield API endpoints live under.
const APIPrefix = "/.ironshield/api/"

const (
	// ChallengeTTL is the distance between a challenge's created and
	// expiration timestamps.
	ChallengeTTL = 30 * time.Second

	// MaxChallengeAge is how old a challenge may be when its solution is
	// submitted.
	MaxChallengeAge = 60 * time.Second

	// DefaultTokenValidity is how long a bypass token is honored.
	DefaultTokenValidity = 15 * time.Minute

	// DefaultBaseDifficulty is the difficulty handed to the most human-like
	// traffic.
	DefaultBaseDifficulty uint64 = 10_000

	// DefaultScalingFactor multiplies the squared inverted bot score.
	DefaultScalingFactor uint64 = 1040

	// MaxBotScore is the most human-like bot score.
	MaxBotScore uint64 = 99

	// DefaultBotScore is assumed when the edge did not attach a score.
	DefaultBotScore uint64 = 50

	// DefaultMaxAttempts bounds nonce search. It is below the ~8.4M expected
	// attempts of a score 0 challenge at the default calibration, so solvers
	// without an explicit limit raise it to RecommendedAttempts.
	DefaultMaxAttempts int64 = 10_000_000

	// DefaultChunkSize is the number of nonces a parallel worker scans
	// between checks of the shared found flag.
	DefaultChunkSize int64 = 10_000
)
