package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func seedTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, rel := range paths {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGlobDoubleStar(t *testing.T) {
	cfg, root := testConfig(t)
	seedTree(t, root, "a.go", "pkg/b.go", "pkg/deep/c.go", "pkg/deep/d.txt")

	res := run(t, NewGlobTool(cfg), `{"pattern":"**/*.go"}`)
	if !res.Success {
		t.Fatalf("glob failed: %s", res.Error)
	}
	matches := res.Data["matches"].([]string)
	want := []string{"a.go", "pkg/b.go", "pkg/deep/c.go"}
	if len(matches) != len(want) {
		t.Fatalf("matches = %v, want %v", matches, want)
	}
	for i := range want {
		if matches[i] != want[i] {
			t.Errorf("matches[%d] = %q, want %q (sorted)", i, matches[i], want[i])
		}
	}
}

func TestGlobBraceExpansion(t *testing.T) {
	cfg, root := testConfig(t)
	seedTree(t, root, "doc.md", "main.go", "notes.txt")

	res := run(t, NewGlobTool(cfg), `{"pattern":"*.{go,md}"}`)
	matches := res.Data["matches"].([]string)
	if len(matches) != 2 || matches[0] != "doc.md" || matches[1] != "main.go" {
		t.Errorf("matches = %v", matches)
	}
}

func TestGlobSkipsIgnoredDirs(t *testing.T) {
	cfg, root := testConfig(t)
	seedTree(t, root, "keep.go", "node_modules/dep/skip.go", ".git/hooks/skip.go")

	res := run(t, NewGlobTool(cfg), `{"pattern":"**/*.go"}`)
	matches := res.Data["matches"].([]string)
	if len(matches) != 1 || matches[0] != "keep.go" {
		t.Errorf("matches = %v", matches)
	}
}

func TestExpandBraces(t *testing.T) {
	tests := []struct {
		pattern string
		want    int
	}{
		{"*.go", 1},
		{"*.{go,md}", 2},
		{"{a,b}/{c,d}.txt", 4},
		{"x{a,{b,c}}y", 3},
	}
	for _, tt := range tests {
		if got := expandBraces(tt.pattern); len(got) != tt.want {
			t.Errorf("expandBraces(%q) = %v, want %d patterns", tt.pattern, got, tt.want)
		}
	}
}
