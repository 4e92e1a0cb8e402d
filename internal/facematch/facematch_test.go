package facematch

import (
	"math"
	"testing"

	"github.com/andresmejia3/facefolio/internal/types"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a    types.Embedding
		b    types.Embedding
		want float64
	}{
		{"Identical vectors", types.Embedding{0.1, 0.2, 0.3}, types.Embedding{0.1, 0.2, 0.3}, 0},
		{"Unit apart", types.Embedding{0, 0}, types.Embedding{1, 0}, 1},
		{"3-4-5 triangle", types.Embedding{0, 0}, types.Embedding{3, 4}, 5},
		{"Empty vectors", types.Embedding{}, types.Embedding{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Distance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistance_LengthMismatch(t *testing.T) {
	if d := Distance(types.Embedding{1, 2}, types.Embedding{1}); !math.IsInf(d, 1) {
		t.Errorf("expected +Inf for mismatched lengths, got %v", d)
	}
	if FirstMatch([]types.Embedding{{1}}, types.Embedding{1, 2}, 100) != -1 {
		t.Error("mismatched lengths must never match")
	}
}

func TestDistance_Symmetric(t *testing.T) {
	vecs := []types.Embedding{
		{0.12, -0.5, 0.33, 0.9},
		{-0.7, 0.01, 0.44, -0.2},
		{0, 0, 0, 0},
		{1e-9, 3.5, -2.25, 0.125},
	}
	for i := range vecs {
		for j := range vecs {
			if Distance(vecs[i], vecs[j]) != Distance(vecs[j], vecs[i]) {
				t.Errorf("Distance(%d,%d) != Distance(%d,%d)", i, j, j, i)
			}
		}
	}
}

func TestSelfMatch(t *testing.T) {
	v := types.Embedding{0.31, -0.02, 0.77}
	if d := Distance(v, v); d != 0 {
		t.Fatalf("distance to self = %v, want exactly 0", d)
	}
	for _, tol := range []float64{0, 0.1, 0.6} {
		if m := CompareFaces([]types.Embedding{v}, v, tol); !m[0] {
			t.Errorf("self should match at tolerance %v", tol)
		}
	}
}

func TestCompareFaces_EmptyCandidates(t *testing.T) {
	got := CompareFaces(nil, types.Embedding{1, 2, 3}, DefaultTolerance)
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if idx := FirstMatch(nil, types.Embedding{1, 2, 3}, DefaultTolerance); idx != -1 {
		t.Errorf("expected -1, got %d", idx)
	}
}

func TestCompareFaces_ToleranceInclusive(t *testing.T) {
	candidates := []types.Embedding{{0.5, 0}, {0.6, 0}, {0.7, 0}}
	got := CompareFaces(candidates, types.Embedding{0, 0}, 0.6)
	want := []bool{true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("match[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFirstMatch_EarliestWins(t *testing.T) {
	// Candidate 1 is nearer, but candidate 0 was registered first.
	candidates := []types.Embedding{{0.5, 0}, {0.1, 0}, {5, 5}}
	if got := FirstMatch(candidates, types.Embedding{0, 0}, 0.6); got != 0 {
		t.Errorf("FirstMatch() = %d, want 0", got)
	}
	if got := FirstMatch(candidates, types.Embedding{0, 0}, 0.3); got != 1 {
		t.Errorf("FirstMatch() with stricter tolerance = %d, want 1", got)
	}
}
