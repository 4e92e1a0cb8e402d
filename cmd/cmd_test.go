package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facefolio/internal/archive"
	"github.com/andresmejia3/facefolio/internal/config"
	"github.com/andresmejia3/facefolio/internal/discovery"
	"github.com/andresmejia3/facefolio/internal/store"
	"github.com/andresmejia3/facefolio/internal/types"
	"github.com/spf13/cobra"
)

// testCmd mimics the flag set of sort/discover so Changed() can be exercised.
func testCmd(t *testing.T, set map[string]string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().Float64("tolerance", 0, "")
	c.Flags().Int("padding", -1, "")
	for k, v := range set {
		if err := c.Flags().Set(k, v); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func withDefaultConfig(t *testing.T) {
	t.Helper()
	old := Cfg
	Cfg = config.Default()
	t.Cleanup(func() { Cfg = old })
}

func TestFmtTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{65, "00:01:05"},
		{3661, "01:01:01"},
	}

	for _, tt := range tests {
		if got := fmtTime(tt.seconds); got != tt.want {
			t.Errorf("fmtTime(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestValidateSortFlags(t *testing.T) {
	withDefaultConfig(t)

	refs := t.TempDir()
	input := t.TempDir()
	zipFile := filepath.Join(t.TempDir(), "photos.zip")
	if err := os.WriteFile(zipFile, []byte("PK"), 0644); err != nil {
		t.Fatal(err)
	}
	plainFile := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(plainFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		opts    Options
		set     map[string]string
		wantErr bool
	}{
		{
			name: "Valid options",
			opts: Options{RefDir: refs, InputPath: input},
		},
		{
			name: "Zip input",
			opts: Options{RefDir: refs, InputPath: zipFile},
		},
		{
			name:    "Missing refs",
			opts:    Options{InputPath: input},
			wantErr: true,
		},
		{
			name:    "Refs is a file",
			opts:    Options{RefDir: plainFile, InputPath: input},
			wantErr: true,
		},
		{
			name:    "Input does not exist",
			opts:    Options{RefDir: refs, InputPath: "nonexistent"},
			wantErr: true,
		},
		{
			name:    "Input is a plain image",
			opts:    Options{RefDir: refs, InputPath: plainFile},
			wantErr: true,
		},
		{
			name:    "Negative tolerance",
			opts:    Options{RefDir: refs, InputPath: input, Tolerance: -0.1},
			set:     map[string]string{"tolerance": "-0.1"},
			wantErr: true,
		},
		{
			name:    "Negative engines",
			opts:    Options{RefDir: refs, InputPath: input, NumEngines: -1},
			wantErr: true,
		},
		{
			name:    "Zip output without extension",
			opts:    Options{RefDir: refs, InputPath: input, ZipPath: "out.tar"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if err := validateSortFlags(testCmd(t, tt.set), &opts); (err != nil) != tt.wantErr {
				t.Errorf("validateSortFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSortFlags_Defaults(t *testing.T) {
	withDefaultConfig(t)
	Cfg.Matching.ReferenceTolerance = 0.45
	Cfg.Engine.Count = 3

	opts := Options{RefDir: t.TempDir(), InputPath: t.TempDir()}
	if err := validateSortFlags(testCmd(t, nil), &opts); err != nil {
		t.Fatal(err)
	}
	if opts.Tolerance != 0.45 {
		t.Errorf("tolerance = %v, want config value 0.45", opts.Tolerance)
	}
	if opts.NumEngines != 3 {
		t.Errorf("engines = %d, want 3", opts.NumEngines)
	}
	if opts.OutputDir != Cfg.OutputDir {
		t.Errorf("output = %q, want %q", opts.OutputDir, Cfg.OutputDir)
	}

	// An explicit zero tolerance is kept (exact matches only).
	opts = Options{RefDir: t.TempDir(), InputPath: t.TempDir()}
	if err := validateSortFlags(testCmd(t, map[string]string{"tolerance": "0"}), &opts); err != nil {
		t.Fatal(err)
	}
	if opts.Tolerance != 0 {
		t.Errorf("explicit tolerance overridden: %v", opts.Tolerance)
	}
}

func TestValidateDiscoverFlags(t *testing.T) {
	withDefaultConfig(t)
	Cfg.Matching.DiscoveryTolerance = 0.5

	opts := Options{InputPath: t.TempDir()}
	if err := validateDiscoverFlags(testCmd(t, nil), &opts); err != nil {
		t.Fatal(err)
	}
	if opts.Tolerance != 0.5 {
		t.Errorf("tolerance = %v, want 0.5", opts.Tolerance)
	}
	if opts.Padding != Cfg.Portrait.Padding {
		t.Errorf("padding = %d, want %d", opts.Padding, Cfg.Portrait.Padding)
	}

	opts = Options{InputPath: t.TempDir(), Padding: -5}
	if err := validateDiscoverFlags(testCmd(t, map[string]string{"padding": "-5"}), &opts); err == nil {
		t.Error("expected error for negative padding")
	}

	opts = Options{}
	if err := validateDiscoverFlags(testCmd(t, nil), &opts); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestParseLabelArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantIndex int
		wantName  string
		wantErr   bool
	}{
		{"Simple", []string{"0", "alice"}, 0, "alice", false},
		{"Trimmed", []string{"3", "  bob "}, 3, "bob", false},
		{"Blank clears", []string{"2", "   "}, 2, "", false},
		{"Not a number", []string{"x", "alice"}, 0, "", true},
		{"Negative", []string{"-1", "alice"}, 0, "", true},
		{"Path separator", []string{"1", "a/b"}, 0, "", true},
		{"Dot dot", []string{"1", ".."}, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, name, err := parseLabelArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLabelArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if index != tt.wantIndex || name != tt.wantName {
				t.Errorf("parseLabelArgs() = (%d, %q), want (%d, %q)", index, name, tt.wantIndex, tt.wantName)
			}
		})
	}
}

func sampleRun() *store.Run {
	return &store.Run{
		ID:        "run-1",
		Tolerance: 0.6,
		Identities: []discovery.Identity{
			{Index: 0, Representative: types.Embedding{0, 0}, Name: "alice", Portrait: "portraits/person_0.png"},
			{Index: 1, Representative: types.Embedding{5, 5}},
		},
		Observations: []types.Observation{
			{Path: "a.jpg", Vec: types.Embedding{0.1, 0}},
			{Path: "a.jpg", Vec: types.Embedding{5, 5.1}},
			{Path: "b.jpg", Vec: types.Embedding{0, 0.2}},
			// Same person twice in one photo counts once.
			{Path: "b.jpg", Vec: types.Embedding{0.05, 0}},
			{Path: "c.jpg", Vec: types.Embedding{5.2, 5}},
		},
	}
}

func TestPhotoCounts(t *testing.T) {
	counts := photoCounts(sampleRun())
	if counts[0] != 2 {
		t.Errorf("identity 0 photos = %d, want 2", counts[0])
	}
	if counts[1] != 2 {
		t.Errorf("identity 1 photos = %d, want 2", counts[1])
	}
}

func TestPrintIdentities(t *testing.T) {
	run := sampleRun()
	var buf bytes.Buffer
	printIdentities(&buf, run, photoCounts(run))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got:\n%s", buf.String())
	}
	if f := strings.Fields(lines[2]); f[0] != "0" || f[1] != "alice" || f[2] != "2" || f[3] != "portraits/person_0.png" {
		t.Errorf("unexpected row for identity 0: %q", lines[2])
	}
	if f := strings.Fields(lines[3]); f[1] != "-" || f[3] != "(none)" {
		t.Errorf("unnamed identity should show placeholders: %q", lines[3])
	}
}

func TestPrintAssignment_Empty(t *testing.T) {
	var buf bytes.Buffer
	printAssignment(&buf, nil, func(string) int { return 0 })
	if !strings.Contains(buf.String(), "No photos") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestOpenStore_FileFallback(t *testing.T) {
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()

	ctx := context.Background()
	s, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	if _, ok := s.(*store.FileStore); !ok {
		t.Fatalf("expected *store.FileStore without a database URL, got %T", s)
	}
	if err := s.SaveRun(ctx, sampleRun()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(runsDir(cfg), "run-1", "run.json")); err != nil {
		t.Errorf("run file not written under the workdir: %v", err)
	}
}

func TestRunSort_FailureRemovesExtractedInput(t *testing.T) {
	withDefaultConfig(t)
	root := t.TempDir()
	Cfg.WorkDir = filepath.Join(root, "work")
	Cfg.Engine.Python = filepath.Join(root, "no-such-python")

	photos := filepath.Join(root, "photos")
	refs := filepath.Join(root, "refs")
	for _, p := range []string{filepath.Join(photos, "a.jpg"), filepath.Join(refs, "Alice.jpg")} {
		os.MkdirAll(filepath.Dir(p), 0755)
		if err := os.WriteFile(p, []byte("jpeg"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	zipPath := filepath.Join(root, "photos.zip")
	if _, err := archive.CreateZip(photos, zipPath); err != nil {
		t.Fatal(err)
	}

	// Silence the error box
	oldStderr := os.Stderr
	devNull, _ := os.Open(os.DevNull)
	os.Stderr = devNull
	err := runSort(context.Background(), Options{
		RefDir:     refs,
		InputPath:  zipPath,
		OutputDir:  filepath.Join(root, "out"),
		NumEngines: 1,
		Tolerance:  0.6,
	})
	os.Stderr = oldStderr
	devNull.Close()

	if err == nil {
		t.Fatal("expected engine startup to fail")
	}
	entries, _ := os.ReadDir(Cfg.WorkDir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "extract-") {
			t.Errorf("extracted input left behind: %s", e.Name())
		}
	}
}
