package lib

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/uvensys/ironshield"
	"github.com/uvensys/ironshield/data"
	"github.com/uvensys/ironshield/lib/challenge"
	"github.com/uvensys/ironshield/lib/policy/config"
	"github.com/uvensys/ironshield/lib/signingkey"

	// challenge implementations
	_ "github.com/uvensys/ironshield/lib/challenge/proofofwork"
)

var ErrUnknownAlgorithm = errors.New("lib: algorithm is not in the challenge registry")

type Options struct {
	Next                http.Handler
	Config              *config.Config
	CookieDynamicDomain bool
	CookieDomain        string
	CookieName          string
	CookiePartitioned   bool
	CookieSecure        bool
	BasePrefix          string
	ED25519PrivateKey   ed25519.PrivateKey
	StripBasePrefix     bool
}

// LoadConfigOrDefault reads the configuration in fname, or the embedded
// default when fname is empty.
func LoadConfigOrDefault(fname string) (*config.Config, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't parse config file %s: %w", fname, err)
		}
	} else {
		fname = "(data)/ironshield.yaml"
		fin, err = data.Config.Open("ironshield.yaml")
		if err != nil {
			return nil, fmt.Errorf("[unexpected] can't parse builtin config file %s: %w", fname, err)
		}
	}

	defer func(fin io.ReadCloser) {
		err := fin.Close()
		if err != nil {
			slog.Error("failed to close config file", "file", fname, "err", err)
		}
	}(fin)

	result, err := config.Load(fin, fname)
	if err != nil {
		return nil, fmt.Errorf("can't parse config file %s: %w", fname, err)
	}

	if _, ok := challenge.Get(result.Algorithm); !ok {
		return nil, fmt.Errorf("can't do final validation of IronShield config: %w %q, have %v", ErrUnknownAlgorithm, result.Algorithm, challenge.Methods())
	}

	return result, nil
}

func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}

	if opts.ED25519PrivateKey == nil {
		slog.Debug("opts.ED25519PrivateKey not set, generating a new one")
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("lib: can't generate private key: %v", err)
		}
		opts.ED25519PrivateKey = priv
	}

	impl, ok := challenge.Get(opts.Config.Algorithm)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, opts.Config.Algorithm)
	}

	ironshield.BasePrefix = opts.BasePrefix

	cookieName := ironshield.CookieName
	if opts.CookieName != "" {
		cookieName = opts.CookieName
	}

	signer := challenge.NewSigner(opts.ED25519PrivateKey, opts.Config.BindSiteID)

	result := &Server{
		next:       opts.Next,
		core:       NewCore(signer, opts.Config),
		impl:       impl,
		cfg:        opts.Config,
		opts:       opts,
		cookieName: cookieName,
	}

	slog.Debug("signing key ready", "fingerprint", signingkey.Fingerprint(opts.ED25519PrivateKey), "algorithm", opts.Config.Algorithm)

	mux := http.NewServeMux()

	// Helper to add global prefix
	registerWithPrefix := func(pattern string, handler http.Handler, method string) {
		if method != "" {
			method = method + " " // methods must end with a space to register with them
		}

		// Ensure there's no double slash when concatenating BasePrefix and pattern
		basePrefix := strings.TrimSuffix(ironshield.BasePrefix, "/")
		prefix := method + basePrefix

		// If pattern doesn't start with a slash, add one
		if !strings.HasPrefix(pattern, "/") {
			pattern = "/" + pattern
		}

		mux.Handle(prefix+pattern, handler)
	}

	registerWithPrefix(ironshield.APIPrefix+"challenge", http.HandlerFunc(result.MakeChallenge), "GET")
	registerWithPrefix(ironshield.APIPrefix+"verify", http.HandlerFunc(result.PassChallenge), "POST")
	registerWithPrefix(ironshield.APIPrefix+"check", http.HandlerFunc(result.maybeReverseProxyHttpStatusOnly), "")
	registerWithPrefix("/", http.HandlerFunc(result.maybeReverseProxyOrChallenge), "")

	result.mux = mux

	return result, nil
}
