package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/uvensys/ironshield"
)

func TestConfigValidKnownGood(t *testing.T) {
	finfos, err := os.ReadDir("testdata/good")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			fin, err := os.Open(filepath.Join("testdata", "good", st.Name()))
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			if _, err := Load(fin, st.Name()); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestConfigValidBad(t *testing.T) {
	finfos, err := os.ReadDir("testdata/bad")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			fin, err := os.Open(filepath.Join("testdata", "bad", st.Name()))
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			if _, err := Load(fin, st.Name()); err == nil {
				t.Fatal("config should not be valid")
			} else {
				t.Log(err)
			}
		})
	}
}

func TestLoadFull(t *testing.T) {
	fin, err := os.Open("testdata/good/full.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	c, err := Load(fin, "full.yaml")
	if err != nil {
		t.Fatal(err)
	}

	want := Config{
		SiteID:    "shop.example.com",
		Algorithm: "legacy",
		Difficulty: Difficulty{
			Base:          20_000,
			ScalingFactor: 2_000,
			DefaultScore:  75,
			ScoreHeader:   "X-Bot-Score",
		},
		MaxChallengeAge: 45 * time.Second,
		BindSiteID:      true,
		TokenValidity:   time.Hour,
		Solver:          Solver{MaxAttempts: 5_000_000, ChunkSize: 2048, Workers: 4},
		StatusCodes:     StatusCodes{Challenge: 401, Deny: 403},
		Store:           Store{Backend: "memory"},
		SigningKeyName:  "shop",
		SigningKeyTTL:   720 * time.Hour,
	}

	if !reflect.DeepEqual(*c, want) {
		t.Errorf("wrong config loaded:\nwant: %+v\ngot:  %+v", want, *c)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	c, err := Load(strings.NewReader("difficulty:\n  base: 1\n"), "partial.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if c.Difficulty.Base != 1 {
		t.Errorf("base: wanted 1, got %d", c.Difficulty.Base)
	}

	if c.Difficulty.ScalingFactor != ironshield.DefaultScalingFactor {
		t.Errorf("scaling factor should keep its default, got %d", c.Difficulty.ScalingFactor)
	}

	if c.MaxChallengeAge != ironshield.MaxChallengeAge {
		t.Errorf("max age should keep its default, got %s", c.MaxChallengeAge)
	}

	if c.Store.Backend != "memory" {
		t.Errorf("store should default to memory, got %q", c.Store.Backend)
	}
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(strings.NewReader(""), "empty.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if d := Default(); !reflect.DeepEqual(c, d) {
		t.Errorf("empty file should load the defaults:\nwant: %+v\ngot:  %+v", *d, *c)
	}
}

func TestLoadErrors(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		err   error
	}{
		{"no-algorithm", `algorithm: ""`, ErrMustHaveAlgorithm},
		{"zero-base", "difficulty:\n  base: 0", ErrBaseDifficultyTooLow},
		{"score", "difficulty:\n  default_score: 100", ErrDefaultScoreOutOfRange},
		{"no-score-header", "difficulty:\n  score_header: \"\"", ErrMustHaveScoreHeader},
		{"bad-duration", "token:\n  validity: soon", ErrInvalidDuration},
		{"zero-duration", "challenge:\n  max_age: 0s", ErrDurationMustBePositive},
		{"workers", "solver:\n  workers: -2", ErrWorkersNegative},
		{"status", "status_codes:\n  DENY: 99", ErrStatusCodeNotValid},
		{"store", "store:\n  backend: \"\"", ErrNoStoreBackend},
		{"key-name", "signing_key:\n  name: \"\"", ErrSigningKeyMustHaveName},
		{"site-id", `site_id: "x|y"`, ErrSiteIDContainsSeparator},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.input), tt.name); !errors.Is(err, tt.err) {
				t.Errorf("wanted %v, got %v", tt.err, err)
			}
		})
	}
}
