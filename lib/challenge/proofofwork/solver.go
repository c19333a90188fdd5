package proofofwork

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/uvensys/ironshield"
	chall "github.com/uvensys/ironshield/lib/challenge"
	"golang.org/x/sync/errgroup"
)

var (
	ErrExhausted          = errors.New("proofofwork: no solution within the attempt budget")
	ErrInvalidMaxAttempts = errors.New("proofofwork: max attempts must be positive")
	ErrInvalidChunkSize   = errors.New("proofofwork: chunk size must be positive")
	ErrInvalidWorkers     = errors.New("proofofwork: worker count must be positive")
)

// Config bounds a solver run.
type Config struct {
	MaxAttempts int64 // nonces 0 through MaxAttempts-1 are tried
	ChunkSize   int64 // nonces hashed between cancellation checks
	Workers     int   // goroutines used by SolveParallel
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: ironshield.DefaultMaxAttempts,
		ChunkSize:   ironshield.DefaultChunkSize,
		Workers:     runtime.NumCPU(),
	}
}

func (c Config) Valid() error {
	var errs []error

	if c.MaxAttempts <= 0 {
		errs = append(errs, ErrInvalidMaxAttempts)
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, ErrInvalidChunkSize)
	}

	if c.Workers <= 0 {
		errs = append(errs, ErrInvalidWorkers)
	} else if c.ChunkSize > math.MaxInt64/int64(c.Workers) {
		errs = append(errs, fmt.Errorf("%w: %d workers of %d nonces overflows", ErrInvalidChunkSize, c.Workers, c.ChunkSize))
	}

	if len(errs) != 0 {
		return fmt.Errorf("proofofwork: invalid config: %w", errors.Join(errs...))
	}

	return nil
}

// Solve searches nonces in ascending order and returns the first one whose
// digest falls below the challenge threshold.
func Solve(ctx context.Context, c *chall.Challenge, cfg Config) (chall.Response, error) {
	if err := cfg.Valid(); err != nil {
		return chall.Response{}, err
	}

	seed, err := c.Seed()
	if err != nil {
		return chall.Response{}, err
	}

	hs := newHasher(seed)
	for start := int64(0); start < cfg.MaxAttempts; {
		if err := ctx.Err(); err != nil {
			return chall.Response{}, err
		}

		end := start + min(cfg.ChunkSize, cfg.MaxAttempts-start)
		for nonce := start; nonce < end; nonce++ {
			if c.Threshold.Admits(hs.sum(nonce)) {
				solutionsFound.WithLabelValues("sequential").Inc()
				return c.Respond(nonce), nil
			}
		}
		start = end
	}

	return chall.Response{}, ErrExhausted
}

// SolveParallel splits the nonce space into chunks dealt round-robin to
// cfg.Workers goroutines. The first worker to find a solution wins and the
// rest stop at their next chunk boundary, so the returned nonce is valid but
// not necessarily the smallest.
func SolveParallel(ctx context.Context, c *chall.Challenge, cfg Config) (chall.Response, error) {
	if err := cfg.Valid(); err != nil {
		return chall.Response{}, err
	}

	seed, err := c.Seed()
	if err != nil {
		return chall.Response{}, err
	}

	var (
		found  atomic.Bool
		winner atomic.Int64
		stride = int64(cfg.Workers) * cfg.ChunkSize
	)

	g, gCtx := errgroup.WithContext(ctx)
	for w := range cfg.Workers {
		g.Go(func() error {
			hs := newHasher(seed)
			start := int64(w) * cfg.ChunkSize

			for start < cfg.MaxAttempts {
				if found.Load() {
					return nil
				}

				if err := gCtx.Err(); err != nil {
					return err
				}

				end := start + min(cfg.ChunkSize, cfg.MaxAttempts-start)
				for nonce := start; nonce < end; nonce++ {
					if c.Threshold.Admits(hs.sum(nonce)) {
						if found.CompareAndSwap(false, true) {
							winner.Store(nonce)
						}
						return nil
					}
				}

				if start > cfg.MaxAttempts-stride {
					return nil
				}
				start += stride
			}

			return nil
		})
	}

	err = g.Wait()
	if found.Load() {
		solutionsFound.WithLabelValues("parallel").Inc()
		return c.Respond(winner.Load()), nil
	}

	if err != nil {
		return chall.Response{}, err
	}

	return chall.Response{}, ErrExhausted
}
