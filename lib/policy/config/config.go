package config

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/uvensys/ironshield"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var (
	ErrMustHaveAlgorithm       = errors.New("config: must have algorithm name set")
	ErrBaseDifficultyTooLow    = errors.New("config.Difficulty: base is too low (must be >= 1)")
	ErrDefaultScoreOutOfRange  = errors.New("config.Difficulty: default_score must be between 0 and 99")
	ErrMustHaveScoreHeader     = errors.New("config.Difficulty: must set score_header")
	ErrInvalidDuration         = errors.New("config: invalid duration")
	ErrDurationMustBePositive  = errors.New("config: duration must be positive")
	ErrMaxAttemptsTooLow       = errors.New("config.Solver: max_attempts must be >= 1")
	ErrChunkSizeTooLow         = errors.New("config.Solver: chunk_size must be >= 1")
	ErrWorkersNegative         = errors.New("config.Solver: workers must be >= 0 (0 means one per CPU)")
	ErrStatusCodeNotValid      = errors.New("config.StatusCode: status code not valid, must be between 100 and 599")
	ErrSigningKeyMustHaveName  = errors.New("config.SigningKey: must set name")
	ErrSiteIDContainsSeparator = errors.New("config: site_id may not contain '|'")
)

const DefaultAlgorithm = "threshold"

type Difficulty struct {
	Base          uint64 `json:"base"`
	ScalingFactor uint64 `json:"scaling_factor"`
	DefaultScore  uint64 `json:"default_score"`
	ScoreHeader   string `json:"score_header"`
}

func (d Difficulty) Valid() error {
	var errs []error

	if d.Base < 1 {
		errs = append(errs, ErrBaseDifficultyTooLow)
	}

	if d.DefaultScore > ironshield.MaxBotScore {
		errs = append(errs, fmt.Errorf("%w, got: %d", ErrDefaultScoreOutOfRange, d.DefaultScore))
	}

	if d.ScoreHeader == "" {
		errs = append(errs, ErrMustHaveScoreHeader)
	}

	if len(errs) != 0 {
		return fmt.Errorf("config: difficulty is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

type Solver struct {
	MaxAttempts int64 `json:"max_attempts"`
	ChunkSize   int64 `json:"chunk_size"`
	Workers     int   `json:"workers"`
}

func (s Solver) Valid() error {
	var errs []error

	if s.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w, got: %d", ErrMaxAttemptsTooLow, s.MaxAttempts))
	}

	if s.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("%w, got: %d", ErrChunkSizeTooLow, s.ChunkSize))
	}

	if s.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w, got: %d", ErrWorkersNegative, s.Workers))
	}

	if len(errs) != 0 {
		return fmt.Errorf("config: solver is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

type StatusCodes struct {
	Challenge int `json:"CHALLENGE"`
	Deny      int `json:"DENY"`
}

func (sc StatusCodes) Valid() error {
	var errs []error

	if sc.Challenge < 100 || sc.Challenge > 599 {
		errs = append(errs, fmt.Errorf("%w: challenge is %d", ErrStatusCodeNotValid, sc.Challenge))
	}

	if sc.Deny < 100 || sc.Deny > 599 {
		errs = append(errs, fmt.Errorf("%w: deny is %d", ErrStatusCodeNotValid, sc.Deny))
	}

	if len(errs) != 0 {
		return fmt.Errorf("status codes not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

type fileChallenge struct {
	MaxAge     string `json:"max_age"`
	BindSiteID bool   `json:"bind_site_id"`
}

type fileToken struct {
	Validity string `json:"validity"`
}

type fileSigningKey struct {
	Name string `json:"name"`
	TTL  string `json:"ttl"`
}

type fileConfig struct {
	SiteID      string         `json:"site_id"`
	Algorithm   string         `json:"algorithm"`
	Difficulty  Difficulty     `json:"difficulty"`
	Challenge   fileChallenge  `json:"challenge"`
	Token       fileToken      `json:"token"`
	Solver      Solver         `json:"solver"`
	StatusCodes StatusCodes    `json:"status_codes"`
	Store       Store          `json:"store"`
	SigningKey  fileSigningKey `json:"signing_key"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Algorithm: DefaultAlgorithm,
		Difficulty: Difficulty{
			Base:          ironshield.DefaultBaseDifficulty,
			ScalingFactor: ironshield.DefaultScalingFactor,
			DefaultScore:  ironshield.DefaultBotScore,
			ScoreHeader:   ironshield.BotScoreHeader,
		},
		Challenge: fileChallenge{
			MaxAge: ironshield.MaxChallengeAge.String(),
		},
		Token: fileToken{
			Validity: ironshield.DefaultTokenValidity.String(),
		},
		Solver: Solver{
			MaxAttempts: ironshield.DefaultMaxAttempts,
			ChunkSize:   ironshield.DefaultChunkSize,
		},
		StatusCodes: StatusCodes{
			Challenge: http.StatusOK,
			Deny:      http.StatusForbidden,
		},
		Store: Store{
			Backend: "memory",
		},
		SigningKey: fileSigningKey{
			Name: "default",
			TTL:  (365 * 24 * time.Hour).String(),
		},
	}
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	result, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidDuration, field, err)
	}

	if result <= 0 {
		return 0, fmt.Errorf("%w: %s is %s", ErrDurationMustBePositive, field, result)
	}

	return result, nil
}

func (c *fileConfig) Valid() error {
	var errs []error

	if c.Algorithm == "" {
		errs = append(errs, ErrMustHaveAlgorithm)
	}

	for _, r := range c.SiteID {
		if r == '|' {
			errs = append(errs, ErrSiteIDContainsSeparator)
			break
		}
	}

	if err := c.Difficulty.Valid(); err != nil {
		errs = append(errs, err)
	}

	for field, value := range map[string]string{
		"challenge.max_age": c.Challenge.MaxAge,
		"token.validity":    c.Token.Validity,
		"signing_key.ttl":   c.SigningKey.TTL,
	} {
		if _, err := parsePositiveDuration(field, value); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.Solver.Valid(); err != nil {
		errs = append(errs, err)
	}

	if err := c.StatusCodes.Valid(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, err)
	}

	if c.SigningKey.Name == "" {
		errs = append(errs, ErrSigningKeyMustHaveName)
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

// Load parses a YAML (or JSON) gate configuration. Fields left out keep their
// built-in defaults.
func Load(fin io.Reader, fname string) (*Config, error) {
	c := defaultFileConfig()

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't parse config YAML %s: %w", fname, err)
	}

	if err := c.Valid(); err != nil {
		return nil, fmt.Errorf("config %s: %w", fname, err)
	}

	// Durations were checked by Valid.
	maxAge, _ := parsePositiveDuration("challenge.max_age", c.Challenge.MaxAge)
	validity, _ := parsePositiveDuration("token.validity", c.Token.Validity)
	keyTTL, _ := parsePositiveDuration("signing_key.ttl", c.SigningKey.TTL)

	return &Config{
		SiteID:          c.SiteID,
		Algorithm:       c.Algorithm,
		Difficulty:      c.Difficulty,
		MaxChallengeAge: maxAge,
		BindSiteID:      c.Challenge.BindSiteID,
		TokenValidity:   validity,
		Solver:          c.Solver,
		StatusCodes:     c.StatusCodes,
		Store:           c.Store,
		SigningKeyName:  c.SigningKey.Name,
		SigningKeyTTL:   keyTTL,
	}, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := defaultFileConfig()
	maxAge, _ := time.ParseDuration(c.Challenge.MaxAge)
	validity, _ := time.ParseDuration(c.Token.Validity)
	keyTTL, _ := time.ParseDuration(c.SigningKey.TTL)

	return &Config{
		Algorithm:       c.Algorithm,
		Difficulty:      c.Difficulty,
		MaxChallengeAge: maxAge,
		TokenValidity:   validity,
		Solver:          c.Solver,
		StatusCodes:     c.StatusCodes,
		Store:           c.Store,
		SigningKeyName:  c.SigningKey.Name,
		SigningKeyTTL:   keyTTL,
	}
}

type Config struct {
	SiteID          string
	Algorithm       string
	Difficulty      Difficulty
	MaxChallengeAge time.Duration
	BindSiteID      bool
	TokenValidity   time.Duration
	Solver          Solver
	StatusCodes     StatusCodes
	Store           Store
	SigningKeyName  string
	SigningKeyTTL   time.Duration
}
