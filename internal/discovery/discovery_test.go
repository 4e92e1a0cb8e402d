package discovery

import (
	"errors"
	"fmt"
	"testing"

	"github.com/andresmejia3/facefolio/internal/embedder/embeddertest"
	"github.com/andresmejia3/facefolio/internal/types"
)

func TestObserve_FivePhotos(t *testing.T) {
	var portraits []int
	d := New(0.6, func(id Identity) (string, error) {
		portraits = append(portraits, id.Index)
		return fmt.Sprintf("person_%d.png", id.Index), nil
	})

	photos := []struct {
		path  string
		faces []types.FaceResult
	}{
		{"1.jpg", []types.FaceResult{embeddertest.Face(10, 10, 50, 0, 0)}},
		{"2.jpg", nil},
		{"3.jpg", []types.FaceResult{embeddertest.Face(30, 5, 60, 0.1, 0.05)}},
		{"4.jpg", nil},
		{"5.jpg", []types.FaceResult{embeddertest.Face(0, 0, 40, 3, 3)}},
	}
	for _, p := range photos {
		if _, err := d.Observe(p.path, p.faces); err != nil {
			t.Fatalf("Observe(%s) failed: %v", p.path, err)
		}
	}

	ids := d.Identities()
	if len(ids) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(ids))
	}
	if len(portraits) != 2 || portraits[0] != 0 || portraits[1] != 1 {
		t.Errorf("portrait hook calls = %v, want [0 1]", portraits)
	}
	if ids[0].Source != "1.jpg" || ids[1].Source != "5.jpg" {
		t.Errorf("identity sources = %s, %s", ids[0].Source, ids[1].Source)
	}
	if ids[1].Portrait != "person_1.png" {
		t.Errorf("portrait path not recorded: %q", ids[1].Portrait)
	}
	if n := len(d.Observations()); n != 3 {
		t.Errorf("expected 3 observations, got %d", n)
	}
}

func TestObserve_RepresentativeIsFixed(t *testing.T) {
	d := New(0.6, nil)
	d.Observe("a.jpg", []types.FaceResult{embeddertest.Face(0, 0, 10, 0, 0)})
	// Within tolerance of the first face; must not move the representative.
	d.Observe("b.jpg", []types.FaceResult{embeddertest.Face(0, 0, 10, 0.5, 0)})
	// 0.5 from b, 1.0 from a: a fresh identity, since only a is a representative.
	created, _ := d.Observe("c.jpg", []types.FaceResult{embeddertest.Face(0, 0, 10, 1.0, 0)})

	if len(created) != 1 || created[0] != 1 {
		t.Fatalf("expected identity 1 to be created, got %v", created)
	}
	if rep := d.Identities()[0].Representative; rep[0] != 0 || rep[1] != 0 {
		t.Errorf("representative changed: %v", rep)
	}
}

func TestObserve_FirstClusterWins(t *testing.T) {
	d := New(0.6, nil)
	d.Observe("a.jpg", []types.FaceResult{embeddertest.Face(0, 0, 10, 0, 0)})
	d.Observe("b.jpg", []types.FaceResult{embeddertest.Face(0, 0, 10, 1, 0)})
	// 0.55 from identity 0, 0.45 from identity 1: joins 0, creates nothing.
	created, _ := d.Observe("c.jpg", []types.FaceResult{embeddertest.Face(0, 0, 10, 0.55, 0)})

	if len(created) != 0 {
		t.Errorf("unexpected new identity %v", created)
	}
	if len(d.Identities()) != 2 {
		t.Errorf("expected 2 identities, got %d", len(d.Identities()))
	}
}

func TestObserve_SeveralFacesInOnePhoto(t *testing.T) {
	d := New(0.6, nil)
	created, err := d.Observe("group.jpg", []types.FaceResult{
		embeddertest.Face(0, 0, 10, 0, 0),
		embeddertest.Face(20, 0, 10, 5, 5),
		embeddertest.Face(40, 0, 10, 0.1, 0), // same as the first face
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 2 || created[0] != 0 || created[1] != 1 {
		t.Errorf("created = %v, want [0 1]", created)
	}
	ids := d.Identities()
	if ids[1].Loc.Left != 20 {
		t.Errorf("identity 1 box = %+v", ids[1].Loc)
	}
}

func TestObserve_ToleranceMonotonic(t *testing.T) {
	// Points on a line with uneven gaps.
	xs := []float64{0, 0.3, 0.45, 1.1, 1.25, 2.0, 2.05, 3.3, 0.9, 1.7, 2.6, 4}
	faces := make([][]types.FaceResult, len(xs))
	for i, x := range xs {
		faces[i] = []types.FaceResult{embeddertest.Face(0, 0, 10, x, x/3)}
	}

	count := func(tol float64) int {
		d := New(tol, nil)
		for i, f := range faces {
			d.Observe(fmt.Sprintf("%02d.jpg", i), f)
		}
		return len(d.Identities())
	}

	tolerances := []float64{0, 0.1, 0.2, 0.35, 0.5, 0.6, 0.8, 1, 1.5, 3, 10}
	prev := count(tolerances[0])
	for _, tol := range tolerances[1:] {
		n := count(tol)
		if n > prev {
			t.Errorf("tolerance %v produced %d identities, more than %d at a stricter tolerance", tol, n, prev)
		}
		prev = n
	}
	if count(0) != len(xs) {
		t.Errorf("zero tolerance should keep every distinct face apart")
	}
	if count(10) != 1 {
		t.Errorf("huge tolerance should collapse to one identity")
	}
}

func TestObserve_HookError(t *testing.T) {
	boom := errors.New("read-only file system")
	d := New(0.6, func(Identity) (string, error) { return "", boom })

	created, err := d.Observe("a.jpg", []types.FaceResult{embeddertest.Face(0, 0, 10, 0)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if len(created) != 1 || len(d.Identities()) != 1 {
		t.Error("identity must still be recorded when the hook fails")
	}
}
