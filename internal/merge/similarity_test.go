package merge

import (
	"math"
	"testing"
)

func TestIndelRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"张三", "张三", 1.0},
		{"张三", "张三丰", 0.8}, // 2*lcs(2) / (2+3)
		{"张三", "李四", 0.0},
		{"", "张三", 0.0},
		{"abcd", "abcd", 1.0},
		{"abcd", "abce", 0.75},
	}
	for _, tc := range cases {
		if got := indelRatio(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("indelRatio(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
	// Symmetry.
	if indelRatio("张三", "张三丰") != indelRatio("张三丰", "张三") {
		t.Error("indelRatio is not symmetric")
	}
}

func TestNameScoreContainmentGate(t *testing.T) {
	th := DefaultThresholds()

	// Two-rune containment gets no boost.
	score, contained := th.NameScore("张三", "张三丰")
	if contained {
		t.Error("two-rune containment should not be boosted")
	}
	if score >= th.Name {
		t.Errorf("score %v should stay below the name threshold", score)
	}

	// Three-rune containment is boosted to NameBoost.
	score, contained = th.NameScore("夜无疆", "夜无疆上仙")
	if !contained {
		t.Fatal("expected containment")
	}
	if score != th.NameBoost {
		t.Errorf("boosted score = %v, want %v", score, th.NameBoost)
	}

	// The boost is a floor, never a cap.
	score, _ = th.NameScore("夜无疆上", "夜无疆上仙")
	if score < th.NameBoost {
		t.Errorf("score = %v dropped below boost", score)
	}
}

func TestJaccard(t *testing.T) {
	a := map[string]struct{}{"黑发": {}, "青年": {}, "冷静": {}}
	b := map[string]struct{}{"黑发": {}, "青年": {}, "温和": {}}
	if got := jaccard(a, b); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("jaccard = %v, want 0.5", got)
	}
	if got := jaccard(a, map[string]struct{}{}); got != 0 {
		t.Errorf("jaccard with empty set = %v", got)
	}
}
