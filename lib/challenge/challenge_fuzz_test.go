package challenge_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/uvensys/ironshield/lib/challenge"
	"github.com/uvensys/ironshield/lib/challenge/challengetest"
)

// FuzzDecode feeds arbitrary strings to the decoders. Whatever decodes must
// survive another encode/decode cycle unchanged.
func FuzzDecode(f *testing.F) {
	c := challengetest.New(f, challengetest.Signer(f), 10_000)

	for _, input := range []string{
		c.Encode(),
		c.EncodeBase64(),
		"",
		"|||||",
		"||||||",
		strings.Replace(c.Encode(), c.SiteID, "", 1),
		strings.Replace(c.Encode(), c.RandomSeed, c.RandomSeed+"00", 1),
		strings.Replace(c.Encode(), c.RandomSeed, strings.ToUpper(c.RandomSeed), 1),
		"00112233445566778899aabbccddeeff|-1|9223372036854775807|пример|" + strings.Repeat("0", 64) + "|" + strings.Repeat("f", 64) + "|" + strings.Repeat("a", 128),
	} {
		f.Add(input)
	}

	f.Fuzz(func(t *testing.T, input string) {
		// Must not panic.
		got, err := challenge.Parse(input)
		if err != nil {
			return
		}

		again, err := challenge.Decode(got.Encode())
		if err != nil {
			t.Fatalf("re-decoding %q failed: %v", got.Encode(), err)
		}

		if *again != *got {
			t.Errorf("encode/decode is not stable:\nfirst:  %+v\nsecond: %+v", got, again)
		}

		if seed, err := got.Seed(); err != nil || len(seed) != challenge.SeedSize {
			t.Errorf("decoded challenge has seed %q (%d bytes, err %v)", got.RandomSeed, len(seed), err)
		}
	})
}

// FuzzEncodeRoundTrip builds challenges from arbitrary field values and checks
// that Decode(Encode(c)) gives c back whenever c is well formed.
func FuzzEncodeRoundTrip(f *testing.F) {
	c := challengetest.New(f, challengetest.Signer(f), 10_000)
	seed, err := c.Seed()
	if err != nil {
		f.Fatal(err)
	}

	f.Add(seed, c.CreatedTime, c.ExpirationTime, c.SiteID, c.Threshold[:], c.ChallengeSignature[:])
	f.Add([]byte{}, int64(0), int64(0), "", []byte{}, []byte{})
	f.Add(make([]byte, 24), int64(-1), int64(1<<62), "shop.example.com", make([]byte, 32), make([]byte, 64))
	f.Add(seed, c.CreatedTime, c.ExpirationTime, "a|b", c.Threshold[:], c.ChallengeSignature[:])
	f.Add(seed, c.CreatedTime, c.ExpirationTime, "中文/路径 ❤️", c.Threshold[:], c.ChallengeSignature[:])

	f.Fuzz(func(t *testing.T, seed []byte, created, expiration int64, siteID string, threshold, sig []byte) {
		in := challenge.Challenge{
			RandomSeed:      hex.EncodeToString(seed),
			CreatedTime:     created,
			ExpirationTime:  expiration,
			SiteID:          siteID,
			IssuerPublicKey: c.IssuerPublicKey,
		}
		copy(in.Threshold[:], threshold)
		copy(in.ChallengeSignature[:], sig)

		wellFormed := len(seed) == challenge.SeedSize && !strings.Contains(siteID, "|")

		for name, decode := range map[string]func() (*challenge.Challenge, error){
			"canonical": func() (*challenge.Challenge, error) { return challenge.Decode(in.Encode()) },
			"base64":    func() (*challenge.Challenge, error) { return challenge.Parse(in.EncodeBase64()) },
		} {
			got, err := decode()
			if !wellFormed {
				if err == nil {
					t.Errorf("%s: malformed challenge decoded: %+v", name, got)
				}
				continue
			}

			if err != nil {
				t.Fatalf("%s: can't decode %q: %v", name, in.Encode(), err)
			}

			if *got != in {
				t.Errorf("%s: round trip changed challenge:\nwant: %+v\ngot:  %+v", name, in, got)
			}
		}
	})
}
