package difficulty

import (
	"errors"
	"math"
	"testing"
)

func TestScoreToDifficulty(t *testing.T) {
	for _, tt := range []struct {
		name    string
		score   uint64
		base    uint64
		scaling uint64
		want    uint64
		err     error
	}{
		{name: "most human", score: 99, base: 10_000, scaling: 1040, want: 10_000},
		{name: "most bot", score: 0, base: 10_000, scaling: 1040, want: 10_203_040},
		{name: "almost bot", score: 1, base: 10_000, scaling: 1040, want: 9_998_160},
		{name: "middle", score: 50, base: 10_000, scaling: 1040, want: 2_507_040},
		{name: "no scaling", score: 0, base: 42, scaling: 0, want: 42},
		{name: "saturates", score: 0, base: 1, scaling: math.MaxUint64, want: math.MaxUint64},
		{name: "out of range", score: 100, base: 10_000, scaling: 1040, err: ErrScoreOutOfRange},
		{name: "way out of range", score: math.MaxUint64, base: 10_000, scaling: 1040, err: ErrScoreOutOfRange},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScoreToDifficulty(tt.score, tt.base, tt.scaling)
			if !errors.Is(err, tt.err) {
				t.Fatalf("wanted error %v but got %v", tt.err, err)
			}

			if got != tt.want {
				t.Errorf("ScoreToDifficulty(%d, %d, %d) = %d, want %d", tt.score, tt.base, tt.scaling, got, tt.want)
			}
		})
	}
}

func TestCalibratorDefault(t *testing.T) {
	got, err := Default().Difficulty(99)
	if err != nil {
		t.Fatal(err)
	}

	if got != 10_000 {
		t.Errorf("default calibrator gave %d for the most human score, want 10000", got)
	}
}

func TestToThreshold(t *testing.T) {
	for _, tt := range []struct {
		name       string
		difficulty uint64
		want       string
	}{
		{name: "one", difficulty: 1, want: "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "two", difficulty: 2, want: "40ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "three shares bit length with two", difficulty: 3, want: "40ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "four", difficulty: 4, want: "20ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "255", difficulty: 255, want: "01ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "256", difficulty: 256, want: "0080ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "10000", difficulty: 10_000, want: "0004ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "2^32", difficulty: 1 << 32, want: "0000000080ffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		{name: "saturated", difficulty: math.MaxUint64, want: "0000000000000000000000000000000000000000000000000000000000000000"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := ToThreshold(tt.difficulty)
			if got.String() != tt.want {
				t.Errorf("ToThreshold(%d):\nwant: %s\ngot:  %s", tt.difficulty, tt.want, got)
			}
		})
	}
}

func TestToThresholdMonotonic(t *testing.T) {
	prev := ToThreshold(1)
	for d := uint64(2); d < 1<<20; d *= 3 {
		cur := ToThreshold(d)
		if !prev.Admits(cur) && prev != cur {
			t.Errorf("threshold for %d is above the threshold for a smaller difficulty", d)
		}
		prev = cur
	}
}

func TestToThresholdZeroPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("ToThreshold(0) did not panic")
		}
	}()

	ToThreshold(0)
}

func TestRecommendedAttempts(t *testing.T) {
	for _, tt := range []struct {
		difficulty uint64
		want       uint64
	}{
		{0, 0},
		{1, 3},
		{1000, 3000},
		{50_000, 150_000},
		{math.MaxUint64 / 3, math.MaxUint64 / 3 * 3},
		{math.MaxUint64/3 + 1, math.MaxUint64},
		{math.MaxUint64, math.MaxUint64},
	} {
		if got := RecommendedAttempts(tt.difficulty); got != tt.want {
			t.Errorf("RecommendedAttempts(%d) = %d, want %d", tt.difficulty, got, tt.want)
		}
	}
}

func TestAdmits(t *testing.T) {
	th := ToThreshold(256)

	below := th
	below[31]--
	if !th.Admits(below) {
		t.Error("digest just below the threshold was rejected")
	}

	if th.Admits(th) {
		t.Error("digest equal to the threshold was accepted")
	}

	if Max.Admits(Max) {
		t.Error("all-ones digest accepted by the maximal threshold")
	}

	if (Threshold{}).Admits(Threshold{}) {
		t.Error("zero threshold accepted a digest")
	}
}

func TestParseThreshold(t *testing.T) {
	want := ToThreshold(10_000)

	got, err := ParseThreshold(want.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("round trip changed threshold: %s != %s", got, want)
	}

	for _, input := range []string{"", "zz", "00ff", want.String() + "00"} {
		if _, err := ParseThreshold(input); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("ParseThreshold(%q) returned %v, want %v", input, err, ErrInvalidThreshold)
		}
	}
}

func TestExpectedAttempts(t *testing.T) {
	for _, tt := range []struct {
		name      string
		threshold Threshold
		want      uint64
	}{
		{name: "max", threshold: Max, want: 1},
		{name: "base difficulty", threshold: ToThreshold(10_000), want: 13_107},
		{name: "most bot", threshold: ToThreshold(10_203_040), want: 8_388_608},
		{name: "zero", threshold: Threshold{}, want: math.MaxUint64},
		{name: "tiny", threshold: Threshold{Size - 1: 1}, want: math.MaxUint64},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.threshold.ExpectedAttempts(); got != tt.want {
				t.Errorf("ExpectedAttempts(%s) = %d, want %d", tt.threshold, got, tt.want)
			}
		})
	}
}
