package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

func testConfig(t *testing.T) (Config, string) {
	t.Helper()
	root := t.TempDir()
	return Config{Workspace: tools.NewWorkspace(root)}, root
}

func run(t *testing.T, tool tools.Tool, params string) *models.ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("%s returned Go error: %v", tool.Name(), err)
	}
	return res
}

func TestReadNumbersLines(t *testing.T) {
	cfg, root := testConfig(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo\nthree"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := run(t, NewReadTool(cfg), `{"file_path":"a.txt"}`)
	if !res.Success {
		t.Fatalf("read failed: %s", res.Error)
	}
	if !strings.Contains(res.Text, "1\tone") || !strings.Contains(res.Text, "3\tthree") {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestReadOffsetLimit(t *testing.T) {
	cfg, root := testConfig(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo\nthree\nfour"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := run(t, NewReadTool(cfg), `{"file_path":"a.txt","offset":1,"limit":2}`)
	if !res.Success {
		t.Fatalf("read failed: %s", res.Error)
	}
	if strings.Contains(res.Text, "one") || !strings.Contains(res.Text, "two") ||
		!strings.Contains(res.Text, "three") || strings.Contains(res.Text, "four") {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Meta["truncated"] != true {
		t.Errorf("expected truncated meta, got %v", res.Meta)
	}
}

func TestReadErrors(t *testing.T) {
	cfg, root := testConfig(t)
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "empty.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name, params, wantErr string
	}{
		{"missing", `{"file_path":"nope.txt"}`, "not found"},
		{"directory", `{"file_path":"dir"}`, "directory"},
		{"empty", `{"file_path":"empty.txt"}`, "empty"},
		{"traversal", `{"file_path":"../secret"}`, "outside the workspace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, NewReadTool(cfg), tt.params)
			if res.Success {
				t.Fatalf("expected failure")
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("Error = %q, want substring %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestReadImageReturnsInlineContent(t *testing.T) {
	cfg, root := testConfig(t)
	if err := os.WriteFile(filepath.Join(root, "pic.png"), []byte{0x89, 0x50, 0x4e, 0x47}, 0o644); err != nil {
		t.Fatal(err)
	}

	res := run(t, NewReadTool(cfg), `{"file_path":"pic.png"}`)
	if !res.Success {
		t.Fatalf("read failed: %s", res.Error)
	}
	if !strings.Contains(res.Text, "sandbox:///pic.png") {
		t.Errorf("Text missing sandbox url: %q", res.Text)
	}
	if len(res.LLMContent) != 2 {
		t.Fatalf("LLMContent blocks = %d, want 2", len(res.LLMContent))
	}
	if !strings.HasPrefix(res.LLMContent[1].URL, "data:image/png;base64,") {
		t.Errorf("image block URL = %q", res.LLMContent[1].URL)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	cfg, _ := testConfig(t)
	content := "héllo wörld\nline twö"

	params, _ := json.Marshal(map[string]any{"file_path": "deep/nested/out.txt", "content": content})
	res := run(t, NewWriteTool(cfg), string(params))
	if !res.Success {
		t.Fatalf("write failed: %s", res.Error)
	}
	if got := res.Data["chars_written"]; got != len([]rune(content)) {
		t.Errorf("chars_written = %v, want %d", got, len([]rune(content)))
	}

	read := run(t, NewReadTool(cfg), `{"file_path":"deep/nested/out.txt"}`)
	if !read.Success {
		t.Fatalf("read failed: %s", read.Error)
	}
	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(read.Text, line) {
			t.Errorf("round trip lost %q", line)
		}
	}
}

func TestEditUniqueMatch(t *testing.T) {
	cfg, root := testConfig(t)
	path := filepath.Join(root, "a.go")
	if err := os.WriteFile(path, []byte("func main() {\n\told()\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := run(t, NewEditTool(cfg), `{"file_path":"a.go","old_string":"old()","new_string":"new()"}`)
	if !res.Success {
		t.Fatalf("edit failed: %s", res.Error)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "new()") || strings.Contains(string(data), "old()") {
		t.Errorf("file = %q", data)
	}
}

func TestEditAmbiguousWithoutReplaceAll(t *testing.T) {
	cfg, root := testConfig(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x x x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := run(t, NewEditTool(cfg), `{"file_path":"a.txt","old_string":"x","new_string":"y"}`)
	if res.Success {
		t.Fatalf("ambiguous edit succeeded")
	}
	if !strings.Contains(res.Error, "3") {
		t.Errorf("Error should report the match count: %q", res.Error)
	}
}

func TestEditReplaceAllClearsEveryMatch(t *testing.T) {
	cfg, root := testConfig(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x y x y x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := run(t, NewEditTool(cfg), `{"file_path":"a.txt","old_string":"x","new_string":"z","replace_all":true}`)
	if !res.Success {
		t.Fatalf("edit failed: %s", res.Error)
	}
	if res.Data["replacements"] != 3 {
		t.Errorf("replacements = %v", res.Data["replacements"])
	}

	grep := run(t, NewGrepTool(cfg), `{"pattern":"x","path":"a.txt"}`)
	if mc := grep.Meta["match_count"]; mc != 0 {
		t.Errorf("grep found %v matches after replace_all", mc)
	}
}

func TestEditMissingOldString(t *testing.T) {
	cfg, root := testConfig(t)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := run(t, NewEditTool(cfg), `{"file_path":"a.txt","old_string":"absent","new_string":"y"}`)
	if res.Success || !strings.Contains(res.Error, "not found") {
		t.Errorf("result = %+v", res)
	}
}
