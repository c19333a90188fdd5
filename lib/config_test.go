package lib

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/uvensys/ironshield/lib/policy/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := LoadConfigOrDefault("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Algorithm != config.DefaultAlgorithm {
		t.Errorf("wanted algorithm %q, got: %q", config.DefaultAlgorithm, cfg.Algorithm)
	}
}

func TestInvalidChallengeMethod(t *testing.T) {
	if _, err := LoadConfigOrDefault("testdata/invalid-challenge-method.yaml"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("wanted error %v but got %v", ErrUnknownAlgorithm, err)
	}
}

func TestMissingConfig(t *testing.T) {
	if _, err := LoadConfigOrDefault("testdata/does-not-exist.yaml"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("wanted error %v but got %v", os.ErrNotExist, err)
	}
}

func TestBadConfigs(t *testing.T) {
	finfos, err := os.ReadDir("policy/config/testdata/bad")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			if _, err := LoadConfigOrDefault(filepath.Join("policy", "config", "testdata", "bad", st.Name())); err == nil {
				t.Fatal("config loaded but should have failed")
			} else {
				t.Log(err)
			}
		})
	}
}

func TestGoodConfigs(t *testing.T) {
	finfos, err := os.ReadDir("policy/config/testdata/good")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			if _, err := LoadConfigOrDefault(filepath.Join("policy", "config", "testdata", "good", st.Name())); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestNewUnknownAlgorithm(t *testing.T) {
	cfg := testConfig()
	cfg.Algorithm = "sha3"

	if _, err := New(Options{Config: cfg}); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("wanted error %v but got %v", ErrUnknownAlgorithm, err)
	}
}
