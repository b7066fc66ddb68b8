package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// WriteTool writes file contents inside the workspace, creating parent
// directories and replacing the target atomically via rename.
type WriteTool struct {
	ws tools.Workspace
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{ws: cfg.Workspace}
}

type writeInput struct {
	FilePath string `json:"file_path" jsonschema:"description=Path to write (relative to the workspace)"`
	Content  string `json:"content" jsonschema:"description=Full file contents"`
}

func (t *WriteTool) Name() string { return "write" }

func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace, creating parent directories and replacing any existing file."
}

func (t *WriteTool) Schema() json.RawMessage {
	return tools.SchemaFor(&writeInput{})
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input writeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := t.ws.Resolve(input.FilePath)
	if err != nil {
		return models.ErrorResult(t.Name(), err.Error()), nil
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("create directory: %v", err)), nil
	}

	// Write to a temp file in the same directory, then rename, so readers
	// never observe a partial file.
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("create temp file: %v", err)), nil
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(input.Content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return models.ErrorResult(t.Name(), fmt.Sprintf("write file: %v", err)), nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return models.ErrorResult(t.Name(), fmt.Sprintf("close file: %v", err)), nil
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return models.ErrorResult(t.Name(), fmt.Sprintf("chmod file: %v", err)), nil
	}
	if err := os.Rename(tmpName, resolved); err != nil {
		os.Remove(tmpName)
		return models.ErrorResult(t.Name(), fmt.Sprintf("replace file: %v", err)), nil
	}

	chars := len([]rune(input.Content))
	return models.OkResult(t.Name(),
		fmt.Sprintf("Wrote %d characters to %s", chars, input.FilePath),
		map[string]any{
			"path":          input.FilePath,
			"chars_written": chars,
		}), nil
}
