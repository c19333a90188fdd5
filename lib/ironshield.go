// Package lib hosts the IronShield gate over HTTP.
package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/uvensys/ironshield"
	"github.com/uvensys/ironshield/internal"
	"github.com/uvensys/ironshield/lib/challenge"
	"github.com/uvensys/ironshield/lib/policy/config"
	"github.com/uvensys/ironshield/lib/token"
)

const (
	statusChallenge = "CHALLENGE"
	statusPass      = "PASS"
	statusFail      = "FAIL"

	// methodJSON labels solutions posted to the verify endpoint.
	methodJSON = "json"

	maxVerifyBody = 16 << 10
)

type Server struct {
	next       http.Handler
	mux        *http.ServeMux
	core       *Core
	impl       challenge.Impl
	cfg        *config.Config
	cookieName string
	opts       Options
}

// Core exposes the hosting-agnostic gate behind the server.
func (s *Server) Core() *Core {
	return s.core
}

// siteFor is the protected property a challenge is issued for.
func (s *Server) siteFor(r *http.Request) string {
	if s.cfg.SiteID != "" {
		return s.cfg.SiteID
	}

	return r.Host
}

// scoreFor reads the edge-supplied bot score. Missing or out of range scores
// fall back to the configured default.
func (s *Server) scoreFor(r *http.Request, lg *slog.Logger) uint64 {
	val := r.Header.Get(s.cfg.Difficulty.ScoreHeader)
	if val == "" {
		return s.cfg.Difficulty.DefaultScore
	}

	score, err := strconv.ParseUint(val, 10, 64)
	if err != nil || score > ironshield.MaxBotScore {
		lg.Debug("ignoring invalid bot score", "header", s.cfg.Difficulty.ScoreHeader, "val", val)
		return s.cfg.Difficulty.DefaultScore
	}

	return score
}

func hasSolutionAttempt(r *http.Request) bool {
	for _, name := range []string{
		ironshield.ChallengeHeader,
		ironshield.NonceHeader,
		ironshield.TimestampHeader,
		ironshield.DifficultyHeader,
	} {
		if r.Header.Get(name) == "" {
			return false
		}
	}

	return true
}

func (s *Server) maybeReverseProxyHttpStatusOnly(w http.ResponseWriter, r *http.Request) {
	s.maybeReverseProxy(w, r, true)
}

func (s *Server) maybeReverseProxyOrChallenge(w http.ResponseWriter, r *http.Request) {
	s.maybeReverseProxy(w, r, false)
}

func (s *Server) maybeReverseProxy(w http.ResponseWriter, r *http.Request, httpStatusOnly bool) {
	lg := internal.GetRequestLogger(r)

	if s.checkBypass(w, r, lg) {
		r.Header.Set(ironshield.StatusHeader, statusPass)
		if httpStatusOnly {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.ServeHTTPNext(w, r)
		return
	}

	if httpStatusOnly {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Authorization required"))
		return
	}

	if !hasSolutionAttempt(r) {
		lg.Debug("no solution attempt, issuing challenge")
		s.RenderChallenge(w, r, s.cfg.StatusCodes.Challenge)
		return
	}

	in := &challenge.ValidateInput{
		Signer: s.core.Signer(),
		MaxAge: s.core.MaxAge(),
		Now:    s.core.Now(),
	}

	c, err := s.impl.Validate(r, lg, in)
	if err == nil {
		err = s.checkSite(r, c)
	}
	if err != nil {
		s.deny(w, r, lg, s.cfg.Algorithm, err)
		return
	}

	s.grant(w, r, lg, s.cfg.Algorithm, c)
}

// checkBypass reports whether r carries a token signed by this gate. A
// rejected cookie is cleared.
func (s *Server) checkBypass(w http.ResponseWriter, r *http.Request, lg *slog.Logger) bool {
	raw, from := r.Header.Get(ironshield.TokenHeader), "header"
	if raw == "" {
		ckie, err := r.Cookie(s.cookieName)
		if err != nil {
			return false
		}
		raw, from = ckie.Value, "cookie"
	}

	t, err := token.Parse(raw)
	if err == nil {
		err = s.core.CheckToken(t)
	}

	if err != nil {
		lg.Debug("bypass token rejected", "from", from, "err", err)
		bypassHits.WithLabelValues("rejected").Inc()
		if from == "cookie" {
			s.ClearCookie(w, CookieOpts{Host: r.Host})
		}
		return false
	}

	lg.Debug("bypass token accepted", "from", from, "deadline", t.Deadline())
	bypassHits.WithLabelValues("accepted").Inc()
	return true
}

// checkSite rejects a challenge issued for another protected property. It
// only means something when the site id is covered by the signature.
func (s *Server) checkSite(r *http.Request, c *challenge.Challenge) error {
	if !s.cfg.BindSiteID {
		return nil
	}

	if site := s.siteFor(r); c.SiteID != site {
		return challenge.NewError("validate", challenge.PublicFailure, fmt.Errorf("%w: challenge is for site %q, not %q", challenge.ErrFailed, c.SiteID, site))
	}

	return nil
}

// RenderChallenge issues a challenge, sends it in the protocol headers and
// as a JSON body.
func (s *Server) RenderChallenge(w http.ResponseWriter, r *http.Request, status int) {
	lg := internal.GetRequestLogger(r)
	score := s.scoreFor(r, lg)

	c, err := s.core.IssueChallenge(s.siteFor(r), score)
	if err != nil {
		lg.Error("can't issue challenge", "err", err)
		s.respondWithError(w, r, "Internal Server Error: can't issue challenge")
		return
	}

	lg.Debug("issued challenge", "score", score, "threshold", c.Threshold, "site", c.SiteID)

	internal.NoStoreCache(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ironshield.ChallengeHeader, c.EncodeBase64())
		w.Header().Set(ironshield.TimestampHeader, strconv.FormatInt(c.CreatedTime, 10))
		w.Header().Set(ironshield.DifficultyHeader, s.impl.DifficultyHeader(c))
		w.Header().Set(ironshield.StatusHeader, statusChallenge)
		s.writeJSON(w, r, status, c)
	})).ServeHTTP(w, r)
}

// MakeChallenge is the API form of RenderChallenge and always answers 200.
func (s *Server) MakeChallenge(w http.ResponseWriter, r *http.Request) {
	s.RenderChallenge(w, r, http.StatusOK)
}

type verifyRequest struct {
	Challenge *challenge.Challenge `json:"challenge"`
	Response  *challenge.Response  `json:"response"`
}

// PassChallenge accepts a solution as JSON instead of protocol headers.
func (s *Server) PassChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVerifyBody)).Decode(&req); err != nil {
		lg.Debug("can't decode verify request", "err", err)
		s.respondWithStatus(w, r, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Challenge == nil || req.Response == nil {
		s.respondWithStatus(w, r, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := s.core.Verify(req.Challenge, *req.Response)
	if err != nil {
		err = challenge.NewError("verify", challenge.PublicFailure, err)
	} else {
		err = s.checkSite(r, req.Challenge)
	}

	if err != nil {
		s.deny(w, r, lg, methodJSON, err)
		return
	}

	s.grant(w, r, lg, methodJSON, req.Challenge)
}

func (s *Server) deny(w http.ResponseWriter, r *http.Request, lg *slog.Logger, method string, err error) {
	failedValidations.WithLabelValues(method).Inc()
	lg.Debug("challenge validate call failed", "method", method, "err", err)

	msg := challenge.PublicFailure
	var cerr *challenge.Error
	if errors.As(err, &cerr) {
		msg = cerr.PublicReason
	}

	s.ClearCookie(w, CookieOpts{Host: r.Host})
	w.Header().Set(ironshield.StatusHeader, statusFail)
	s.respondWithStatus(w, r, msg, s.cfg.StatusCodes.Deny)
}

func (s *Server) grant(w http.ResponseWriter, r *http.Request, lg *slog.Logger, method string, c *challenge.Challenge) {
	t := s.core.IssueToken(c.ChallengeSignature)
	encoded := t.EncodeBase64()

	s.SetCookie(w, CookieOpts{Value: encoded, Host: r.Host})
	w.Header().Set(ironshield.TokenHeader, encoded)
	w.Header().Set(ironshield.StatusHeader, statusPass)

	challengesValidated.WithLabelValues(method).Inc()
	lg.Debug("challenge passed", "method", method, "deadline", t.Deadline())

	internal.NoStoreCache(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, Result{
			Success: true,
			Message: "Verification successful.",
			Token:   encoded,
		})
	})).ServeHTTP(w, r)
}
