package challenge_test

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/uvensys/ironshield/lib/challenge"
	"github.com/uvensys/ironshield/lib/challenge/challengetest"
	"github.com/uvensys/ironshield/lib/challenge/difficulty"
)

func TestEncodeRoundTrip(t *testing.T) {
	signer := challengetest.Signer(t)
	c := challengetest.New(t, signer, 10_000)

	for _, cs := range []struct {
		name   string
		encode func(*challenge.Challenge) string
		decode func(string) (*challenge.Challenge, error)
	}{
		{"canonical", (*challenge.Challenge).Encode, challenge.Decode},
		{"base64", (*challenge.Challenge).EncodeBase64, challenge.DecodeBase64},
		{"parse-canonical", (*challenge.Challenge).Encode, challenge.Parse},
		{"parse-base64", (*challenge.Challenge).EncodeBase64, challenge.Parse},
	} {
		t.Run(cs.name, func(t *testing.T) {
			got, err := cs.decode(cs.encode(c))
			if err != nil {
				t.Fatalf("can't decode: %v", err)
			}

			if *got != *c {
				t.Errorf("round trip changed challenge:\nwant: %+v\ngot:  %+v", c, got)
			}

			if err := signer.Verify(got); err != nil {
				t.Errorf("decoded challenge no longer verifies: %v", err)
			}
		})
	}
}

func TestEncodeBase64IsHeaderSafe(t *testing.T) {
	c := challengetest.New(t, challengetest.Signer(t), 10_000)

	if strings.ContainsAny(c.EncodeBase64(), "+/=|") {
		t.Errorf("base64 form contains characters unsafe for headers: %s", c.EncodeBase64())
	}
}

func TestDecodeErrors(t *testing.T) {
	c := challengetest.New(t, challengetest.Signer(t), 10_000)
	fields := strings.Split(c.Encode(), "|")

	with := func(idx int, val string) string {
		result := append([]string(nil), fields...)
		result[idx] = val
		return strings.Join(result, "|")
	}

	for _, cs := range []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too-few-fields", strings.Join(fields[:6], "|")},
		{"too-many-fields", c.Encode() + "|extra"},
		{"empty-seed", with(0, "")},
		{"non-hex-seed", with(0, "taco")},
		{"short-seed", with(0, "abcd")},
		{"long-seed", with(0, fields[0]+"0011223344556677")},
		{"bad-created", with(1, "yesterday")},
		{"bad-expiration", with(2, "1.5")},
		{"short-threshold", with(4, "00ff")},
		{"non-hex-threshold", with(4, strings.Repeat("zz", 32))},
		{"short-public-key", with(5, strings.Repeat("ab", 31))},
		{"long-signature", with(6, strings.Repeat("ab", 65))},
	} {
		t.Run(cs.name, func(t *testing.T) {
			if _, err := challenge.Decode(cs.input); !errors.Is(err, challenge.ErrInvalidFormat) {
				t.Errorf("wanted %v, got %v", challenge.ErrInvalidFormat, err)
			}
		})
	}

	t.Run("bad-base64", func(t *testing.T) {
		if _, err := challenge.DecodeBase64("!!!"); !errors.Is(err, challenge.ErrInvalidFormat) {
			t.Errorf("wanted %v, got %v", challenge.ErrInvalidFormat, err)
		}
	})
}

func TestResponseEncoding(t *testing.T) {
	c := challengetest.New(t, challengetest.Signer(t), 10_000)
	resp := c.Respond(-42)

	got, err := challenge.DecodeResponse(resp.Encode())
	if err != nil {
		t.Fatalf("can't decode response: %v", err)
	}

	if got != resp {
		t.Errorf("wanted %+v, got %+v", resp, got)
	}

	for _, input := range []string{
		"",
		"abcd",
		resp.Encode() + "|1",
		"zz|1",
		strings.Split(resp.Encode(), "|")[0] + "|nonce",
	} {
		if _, err := challenge.DecodeResponse(input); !errors.Is(err, challenge.ErrInvalidFormat) {
			t.Errorf("DecodeResponse(%q): wanted %v, got %v", input, challenge.ErrInvalidFormat, err)
		}
	}
}

func TestJSON(t *testing.T) {
	c := challengetest.New(t, challengetest.Signer(t), 10_000)

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}

	sig, err := base64.StdEncoding.DecodeString(raw["challenge_signature"].(string))
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
	if len(sig) != 64 {
		t.Errorf("signature should encode 64 raw bytes, got %d", len(sig))
	}

	if raw["threshold"] != c.Threshold.String() {
		t.Errorf("threshold should be hex %s, got %v", c.Threshold, raw["threshold"])
	}

	var got challenge.Challenge
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got != *c {
		t.Errorf("json round trip changed challenge")
	}

	var pk challenge.PublicKey
	if err := json.Unmarshal([]byte(`"AAAA"`), &pk); !errors.Is(err, challenge.ErrInvalidFormat) {
		t.Errorf("short public key: wanted %v, got %v", challenge.ErrInvalidFormat, err)
	}
}

func TestSignerVerify(t *testing.T) {
	signer := challengetest.Signer(t)

	for _, cs := range []struct {
		name   string
		mutate func(c *challenge.Challenge)
		err    error
	}{
		{
			name:   "untouched",
			mutate: func(c *challenge.Challenge) {},
		},
		{
			name:   "seed",
			mutate: func(c *challenge.Challenge) { c.RandomSeed = flipFirstNibble(c.RandomSeed) },
			err:    challenge.ErrBadSignature,
		},
		{
			name:   "created-time",
			mutate: func(c *challenge.Challenge) { c.CreatedTime++ },
			err:    challenge.ErrBadSignature,
		},
		{
			name:   "expiration-time",
			mutate: func(c *challenge.Challenge) { c.ExpirationTime += 60_000 },
			err:    challenge.ErrBadSignature,
		},
		{
			name:   "threshold",
			mutate: func(c *challenge.Challenge) { c.Threshold = difficulty.Max },
			err:    challenge.ErrBadSignature,
		},
		{
			name:   "signature",
			mutate: func(c *challenge.Challenge) { c.ChallengeSignature[0] ^= 0x01 },
			err:    challenge.ErrBadSignature,
		},
		{
			name:   "foreign-key",
			mutate: func(c *challenge.Challenge) { c.IssuerPublicKey = challengetest.Signer(t).PublicKey() },
			err:    challenge.ErrBadSignature,
		},
		{
			name:   "non-hex-seed",
			mutate: func(c *challenge.Challenge) { c.RandomSeed = "taco" },
			err:    challenge.ErrInvalidFormat,
		},
	} {
		t.Run(cs.name, func(t *testing.T) {
			c := challengetest.New(t, signer, 10_000)
			cs.mutate(c)

			if err := signer.Verify(c); !errors.Is(err, cs.err) {
				t.Errorf("wanted %v, got %v", cs.err, err)
			}
		})
	}
}

func flipFirstNibble(s string) string {
	if s[0] == '0' {
		return "1" + s[1:]
	}
	return "0" + s[1:]
}

func TestForeignSignerRejected(t *testing.T) {
	c := challengetest.New(t, challengetest.Signer(t), 10_000)

	if err := challengetest.Signer(t).Verify(c); !errors.Is(err, challenge.ErrBadSignature) {
		t.Errorf("a gate must not accept another gate's challenge, got %v", err)
	}
}

func TestSiteIDBinding(t *testing.T) {
	unbound := challengetest.Signer(t)
	c := challengetest.New(t, unbound, 10_000)
	c.SiteID = "other.example"

	if err := unbound.Verify(c); err != nil {
		t.Errorf("site_id is not signed by default, got %v", err)
	}

	bound := challengetest.Signer(t)
	bound.BindSiteID = true
	c = challengetest.New(t, bound, 10_000)
	if err := bound.Verify(c); err != nil {
		t.Fatalf("bound challenge should verify: %v", err)
	}

	c.SiteID = "other.example"
	if err := bound.Verify(c); !errors.Is(err, challenge.ErrBadSignature) {
		t.Errorf("moving a bound challenge between sites should fail, got %v", err)
	}
}

// shiftIntoSeed moves the first eight signed bytes after the seed into the
// seed and realigns every later field, keeping the signed byte sequence of a
// site-bound challenge intact.
func shiftIntoSeed(t *testing.T, c *challenge.Challenge) *challenge.Challenge {
	t.Helper()

	seed, err := hex.DecodeString(c.RandomSeed)
	if err != nil {
		t.Fatal(err)
	}

	result := *c
	result.RandomSeed = hex.EncodeToString(binary.BigEndian.AppendUint64(seed, uint64(c.CreatedTime)))
	result.CreatedTime = c.ExpirationTime
	result.ExpirationTime = int64(binary.BigEndian.Uint64(c.Threshold[:8]))
	copy(result.Threshold[:], c.Threshold[8:])
	copy(result.Threshold[difficulty.Size-8:], c.SiteID[:8])
	result.SiteID = c.SiteID[8:]

	return &result
}

func TestSiteBoundChallengeCannotBeRealigned(t *testing.T) {
	signer := challengetest.Signer(t)
	signer.BindSiteID = true

	c, err := signer.Issue("shop.example.com", difficulty.ToThreshold(10_000), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	forged := shiftIntoSeed(t, c)

	if forged.Threshold.ExpectedAttempts() >= c.Threshold.ExpectedAttempts() {
		t.Fatalf("realigned threshold %s should be easier than %s", forged.Threshold, c.Threshold)
	}

	if err := signer.Verify(forged); err == nil {
		t.Fatal("realigned challenge verifies under the gate key")
	} else if !errors.Is(err, challenge.ErrInvalidFormat) {
		t.Errorf("wanted %v, got %v", challenge.ErrInvalidFormat, err)
	}

	if _, err := challenge.Decode(forged.Encode()); !errors.Is(err, challenge.ErrInvalidFormat) {
		t.Errorf("decoding a realigned challenge: wanted %v, got %v", challenge.ErrInvalidFormat, err)
	}

	if err := signer.Check(forged, time.Now(), time.Minute); err == nil {
		t.Error("realigned challenge passes the freshness check")
	}
}

func TestIssueRejectsSeparatorInSiteID(t *testing.T) {
	signer := challengetest.Signer(t)

	if _, err := signer.Issue("a|b", difficulty.Max, time.Now()); !errors.Is(err, challenge.ErrInvalidFormat) {
		t.Errorf("wanted %v, got %v", challenge.ErrInvalidFormat, err)
	}
}

func TestIssueLifetime(t *testing.T) {
	signer := challengetest.Signer(t)
	now := time.UnixMilli(1_700_000_000_000)

	c, err := signer.Issue("example.com", difficulty.ToThreshold(10_000), now)
	if err != nil {
		t.Fatal(err)
	}

	if c.CreatedTime != now.UnixMilli() {
		t.Errorf("created_time: wanted %d, got %d", now.UnixMilli(), c.CreatedTime)
	}

	if got := c.ExpirationTime - c.CreatedTime; got != 30_000 {
		t.Errorf("lifetime: wanted 30000ms, got %dms", got)
	}

	if len(c.RandomSeed) != 2*challenge.SeedSize {
		t.Errorf("seed should be %d hex characters, got %q", 2*challenge.SeedSize, c.RandomSeed)
	}

	if c.IssuerPublicKey != signer.PublicKey() {
		t.Error("challenge should carry the signer's public key")
	}

	if !c.IsExpired() {
		t.Error("a challenge issued in 2023 should be expired")
	}

	if c.TimeUntilExpiration() >= 0 {
		t.Errorf("expired challenge should have negative time until expiration, got %s", c.TimeUntilExpiration())
	}

	fresh := challengetest.New(t, signer, 10_000)
	if fresh.IsExpired() {
		t.Error("freshly issued challenge should not be expired")
	}

	if left := fresh.TimeUntilExpiration(); left <= 0 || left > 30*time.Second {
		t.Errorf("fresh challenge should expire within 30s, got %s", left)
	}
}

func TestCheckFreshness(t *testing.T) {
	signer := challengetest.Signer(t)
	c := challengetest.New(t, signer, 10_000)
	created := c.Created()

	for _, cs := range []struct {
		name string
		now  time.Time
		err  error
	}{
		{"immediately", created, nil},
		{"59s", created.Add(59 * time.Second), nil},
		{"boundary", created.Add(60 * time.Second), nil},
		{"61s", created.Add(61 * time.Second), challenge.ErrStale},
		// Timestamps ahead of the verifier's clock are only bounded by the
		// signature, not by the freshness window.
		{"future-created-time", created.Add(-time.Hour), nil},
	} {
		t.Run(cs.name, func(t *testing.T) {
			if err := signer.Check(c, cs.now, time.Minute); !errors.Is(err, cs.err) {
				t.Errorf("wanted %v, got %v", cs.err, err)
			}
		})
	}
}

func TestSignablePayload(t *testing.T) {
	c := challengetest.New(t, challengetest.Signer(t), 10_000)

	unbound, err := challenge.SignablePayload(c, false)
	if err != nil {
		t.Fatal(err)
	}

	if want := challenge.SeedSize + 8 + 8 + difficulty.Size; len(unbound) != want {
		t.Errorf("unbound payload: wanted %d bytes, got %d", want, len(unbound))
	}

	bound, err := challenge.SignablePayload(c, true)
	if err != nil {
		t.Fatal(err)
	}

	if want := len(unbound) + 4 + len(c.SiteID); len(bound) != want {
		t.Errorf("bound payload: wanted %d bytes, got %d", want, len(bound))
	}
}

func TestErrorHidesPrivateReason(t *testing.T) {
	err := challenge.NewError("validate", challenge.PublicFailure, challenge.ErrStale)

	if !errors.Is(err, challenge.ErrStale) {
		t.Error("private reason should unwrap")
	}

	if err.PublicReason != challenge.PublicFailure {
		t.Errorf("wanted public reason %q, got %q", challenge.PublicFailure, err.PublicReason)
	}

	if err.StatusCode != 403 {
		t.Errorf("wanted status 403, got %d", err.StatusCode)
	}
}
