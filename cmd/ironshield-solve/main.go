package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/uvensys/ironshield"
	"github.com/uvensys/ironshield/internal"
	libironshield "github.com/uvensys/ironshield/lib"
	"github.com/uvensys/ironshield/lib/challenge"
	"github.com/uvensys/ironshield/lib/challenge/difficulty"
	"github.com/uvensys/ironshield/lib/challenge/proofofwork"
	"sigs.k8s.io/yaml"
)

var (
	challengeFlag = flag.String("challenge", "", "encoded challenge to solve (use - for stdin)")
	configFname   = flag.String("config-fname", "", "if set, take solver limits from this IronShield config file")
	gateURL       = flag.String("url", "", "if set, fetch a challenge from this IronShield-protected URL instead")
	submit        = flag.Bool("submit", false, "send the solution back to -url and print the bypass token")
	legacy        = flag.Bool("legacy", false, "solve with the leading-zero compatibility scheme")
	zeros         = flag.Int("zeros", -1, "leading zeros for -legacy, defaults to the count derived from the challenge threshold")
	maxAttempts   = flag.Int64("max-attempts", ironshield.DefaultMaxAttempts, "give up after this many nonces, overrides the config file; without either it is raised to fit the challenge")
	chunkSize     = flag.Int64("chunk-size", ironshield.DefaultChunkSize, "nonces a worker scans between checks for a winner, overrides the config file")
	workers       = flag.Int("workers", 0, "number of solver goroutines, 0 means one per CPU, overrides the config file")
	timeout       = flag.Duration("timeout", 0, "if set, abort solving after this long")
	outputFormat  = flag.String("format", "text", "output format: text, json or yaml")
	slogLevel     = flag.String("slog-level", "WARN", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	versionFlag   = flag.Bool("version", false, "print IronShield version")
)

type result struct {
	RequestID  string `json:"request_id"`
	Solution   int64  `json:"solution"`
	Response   string `json:"response"`
	Difficulty string `json:"difficulty"`
	Elapsed    string `json:"elapsed"`
	Token      string `json:"token,omitempty"`
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s [options] -challenge <encoded challenge>\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintln(os.Stderr, "  # Solve a challenge copied from the X-IronShield-Challenge header")
		fmt.Fprintln(os.Stderr, "  ironshield-solve -challenge ZGVhZGJlZWZ8...")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "  # Fetch, solve and submit against a running gate")
		fmt.Fprintln(os.Stderr, "  ironshield-solve -url https://shop.example/ -submit -format json")
		os.Exit(2)
	}
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("IronShield", ironshield.Version)
		return
	}

	if len(flag.Args()) > 0 || (*challengeFlag == "") == (*gateURL == "") || (*submit && *gateURL == "") {
		flag.Usage()
	}

	internal.InitSlog(*slogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	requestID := uuid.Must(uuid.NewV7()).String()
	lg := slog.With("request_id", requestID)

	issued := http.Header{}
	switch {
	case *gateURL != "":
		var err error
		issued, err = fetchChallenge(ctx, *gateURL)
		if err != nil {
			log.Fatalf("can't fetch challenge: %v", err)
		}
	case *challengeFlag == "-":
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			log.Fatalf("can't read challenge from stdin: %v", err)
		}
		issued.Set(ironshield.ChallengeHeader, strings.TrimSpace(line))
	default:
		issued.Set(ironshield.ChallengeHeader, strings.TrimSpace(*challengeFlag))
	}

	raw := issued.Get(ironshield.ChallengeHeader)
	c, err := challenge.Parse(raw)
	if err != nil {
		log.Fatalf("can't decode challenge: %v", err)
	}

	lg.Debug("solving", "site", c.SiteID, "threshold", c.Threshold, "expires_in", c.TimeUntilExpiration())
	if c.IsExpired() {
		lg.Warn("challenge has already expired, the gate may reject the solution", "expired", -c.TimeUntilExpiration())
	}

	cfg, explicit, err := solverConfig()
	if err != nil {
		log.Fatal(err)
	}
	if !explicit {
		cfg.MaxAttempts = attemptBudget(cfg.MaxAttempts, c.Threshold)
	}
	lg.Debug("solver limits", "max_attempts", cfg.MaxAttempts, "chunk_size", cfg.ChunkSize, "workers", cfg.Workers)

	start := time.Now()
	var resp challenge.Response
	var diff string

	if *legacy {
		want := *zeros
		if want < 0 {
			want = proofofwork.LegacyZeros(c.Threshold)
		}

		nonce, err := proofofwork.SolveLegacy(ctx, raw, want, cfg.MaxAttempts)
		if err != nil {
			log.Fatalf("can't solve challenge: %v", err)
		}
		resp, diff = c.Respond(nonce), strconv.Itoa(want)
	} else {
		resp, err = proofofwork.SolveParallel(ctx, c, cfg)
		if err != nil {
			log.Fatalf("can't solve challenge: %v", err)
		}
		diff = c.Threshold.String()
	}

	out := result{
		RequestID:  requestID,
		Solution:   resp.Solution,
		Response:   resp.Encode(),
		Difficulty: diff,
		Elapsed:    time.Since(start).Round(time.Millisecond).String(),
	}
	lg.Debug("solved", "solution", out.Solution, "elapsed", out.Elapsed)

	if *submit {
		issued.Set(ironshield.DifficultyHeader, diff)
		out.Token, err = submitSolution(ctx, *gateURL, issued, c, resp.Solution)
		if err != nil {
			log.Fatalf("can't submit solution: %v", err)
		}
	}

	if err := write(os.Stdout, out); err != nil {
		log.Fatal(err)
	}
}

// solverConfig starts from the config file's solver section and applies any
// limits given as flags or environment variables on top. explicit reports
// whether the attempt ceiling came from either of them.
func solverConfig() (result proofofwork.Config, explicit bool, err error) {
	result = proofofwork.DefaultConfig()

	if *configFname != "" {
		explicit = true

		cfg, err := libironshield.LoadConfigOrDefault(*configFname)
		if err != nil {
			return result, explicit, fmt.Errorf("can't parse config file: %w", err)
		}

		result.MaxAttempts = cfg.Solver.MaxAttempts
		result.ChunkSize = cfg.Solver.ChunkSize
		if cfg.Solver.Workers > 0 {
			result.Workers = cfg.Solver.Workers
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-attempts":
			explicit = true
			result.MaxAttempts = *maxAttempts
		case "chunk-size":
			result.ChunkSize = *chunkSize
		case "workers":
			if *workers > 0 {
				result.Workers = *workers
			}
		}
	})

	return result, explicit, result.Valid()
}

// attemptBudget raises floor to the recommended attempt count for th.
func attemptBudget(floor int64, th difficulty.Threshold) int64 {
	want := difficulty.RecommendedAttempts(th.ExpectedAttempts())
	if want > math.MaxInt64 {
		return math.MaxInt64
	}

	return max(floor, int64(want))
}

func fetchChallenge(ctx context.Context, target string) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.Header.Get(ironshield.ChallengeHeader) == "" {
		return nil, fmt.Errorf("%s did not send a %s header (status %d)", target, ironshield.ChallengeHeader, resp.StatusCode)
	}

	return resp.Header, nil
}

func submitSolution(ctx context.Context, target string, issued http.Header, c *challenge.Challenge, nonce int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set(ironshield.ChallengeHeader, issued.Get(ironshield.ChallengeHeader))
	req.Header.Set(ironshield.TimestampHeader, strconv.FormatInt(c.CreatedTime, 10))
	req.Header.Set(ironshield.DifficultyHeader, issued.Get(ironshield.DifficultyHeader))
	req.Header.Set(ironshield.NonceHeader, strconv.FormatInt(nonce, 10))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	tok := resp.Header.Get(ironshield.TokenHeader)
	if resp.StatusCode != http.StatusOK || tok == "" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gate rejected the solution with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return tok, nil
}

func write(w io.Writer, out result) error {
	switch strings.ToLower(*outputFormat) {
	case "text":
		fmt.Fprintln(w, out.Response)
		if out.Token != "" {
			fmt.Fprintln(w, out.Token)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		data, err := yaml.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s (use text, json or yaml)", *outputFormat)
	}
}
