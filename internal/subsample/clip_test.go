package subsample

import (
	"math"
	"testing"

	"github.com/vid2set/vid2set/internal/dataset"
)

func spansEqual(a, b []dataset.Span) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i].Start-b[i].Start) > 1e-9 || math.Abs(a[i].End-b[i].End) > 1e-9 {
			return false
		}
	}
	return true
}

func TestPlanClips_RemainderBelowMinDropped(t *testing.T) {
	// A 12s candidate with max 10 splits into 10s + 2s; the 2s
	// remainder sits below min and is dropped.
	got := PlanClips([]dataset.Span{{Start: 0, End: 12}}, 4.0, 10.0, "all", "exact", nil)
	want := []dataset.Span{{Start: 0, End: 10}}
	if !spansEqual(got, want) {
		t.Errorf("PlanClips() = %v, want %v", got, want)
	}
}

func TestPlanClips_AllStrategyKeepsQualifyingRemainder(t *testing.T) {
	got := PlanClips([]dataset.Span{{Start: 0, End: 25}}, 4.0, 10.0, "all", "exact", nil)
	want := []dataset.Span{{Start: 0, End: 10}, {Start: 10, End: 20}, {Start: 20, End: 25}}
	if !spansEqual(got, want) {
		t.Errorf("PlanClips() = %v, want %v", got, want)
	}
}

func TestPlanClips_FirstStrategy(t *testing.T) {
	got := PlanClips([]dataset.Span{{Start: 2, End: 27}}, 4.0, 10.0, "first", "exact", nil)
	want := []dataset.Span{{Start: 2, End: 12}}
	if !spansEqual(got, want) {
		t.Errorf("PlanClips() = %v, want %v", got, want)
	}
}

func TestPlanClips_ShortCandidateDropped(t *testing.T) {
	got := PlanClips([]dataset.Span{{Start: 0, End: 3}}, 4.0, 10.0, "all", "exact", nil)
	if len(got) != 0 {
		t.Errorf("PlanClips() = %v, want no clips", got)
	}
}

func TestPlanClips_LengthInvariant(t *testing.T) {
	candidates := []dataset.Span{{Start: 0, End: 7}, {Start: 7, End: 40}, {Start: 40, End: 41}}
	minLen, maxLen := 4.0, 10.0

	clips := PlanClips(candidates, minLen, maxLen, "all", "exact", nil)
	for i, c := range clips {
		if c.Duration() > maxLen+1e-9 {
			t.Errorf("clip %d duration %v exceeds max", i, c.Duration())
		}
		if c.Duration() < minLen-1e-9 {
			t.Errorf("clip %d duration %v below min", i, c.Duration())
		}
	}
}

func TestPlanClips_KeyframeSnapping(t *testing.T) {
	keyframes := []float64{0, 2.5, 5, 7.5, 10}

	got := PlanClips([]dataset.Span{{Start: 3, End: 9}}, 1.0, 10.0, "all", "keyframe_adjusted", keyframes)
	want := []dataset.Span{{Start: 2.5, End: 7.5}}
	if !spansEqual(got, want) {
		t.Errorf("PlanClips() = %v, want %v", got, want)
	}
}

func TestPlanClips_SnapNeverAfterBoundary(t *testing.T) {
	keyframes := []float64{0, 1.9, 4.1, 6.3, 8.8}
	candidates := []dataset.Span{{Start: 0, End: 9.5}}

	exact := PlanClips(candidates, 2.0, 5.0, "all", "exact", nil)
	snapped := PlanClips(candidates, 2.0, 5.0, "all", "keyframe_adjusted", keyframes)

	if len(snapped) == 0 {
		t.Fatal("no snapped clips")
	}
	for i, s := range snapped {
		if s.Start > exact[i].Start {
			t.Errorf("clip %d start %v is after the unadjusted start %v", i, s.Start, exact[i].Start)
		}
		kfOK := false
		for _, kf := range keyframes {
			if kf == s.Start {
				kfOK = true
			}
		}
		if !kfOK {
			t.Errorf("clip %d start %v is not a keyframe", i, s.Start)
		}
	}
}

func TestSnapDown(t *testing.T) {
	kf := []float64{0, 2, 4, 6}
	tests := []struct {
		t    float64
		want float64
		ok   bool
	}{
		{0, 0, true},
		{1.5, 0, true},
		{2, 2, true},
		{5.9, 4, true},
		{100, 6, true},
		{-1, 0, false},
	}
	for _, tt := range tests {
		got, ok := snapDown(kf, tt.t)
		if got != tt.want || ok != tt.ok {
			t.Errorf("snapDown(%v) = %v,%v want %v,%v", tt.t, got, ok, tt.want, tt.ok)
		}
	}
}
