package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// EditTool applies an exact-match find/replace edit to a workspace file.
type EditTool struct {
	ws tools.Workspace
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{ws: cfg.Workspace}
}

type editInput struct {
	FilePath   string `json:"file_path" jsonschema:"description=Path to edit (relative to the workspace)"`
	OldString  string `json:"old_string" jsonschema:"description=Exact text to replace"`
	NewString  string `json:"new_string" jsonschema:"description=Replacement text"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of requiring a unique match"`
}

func (t *EditTool) Name() string { return "edit" }

func (t *EditTool) Description() string {
	return "Replace an exact string in a workspace file. Fails when the string is absent, or ambiguous without replace_all."
}

func (t *EditTool) Schema() json.RawMessage {
	return tools.SchemaFor(&editInput{})
}

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input editInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.OldString == "" {
		return models.ErrorResult(t.Name(), "old_string is required"), nil
	}
	if input.OldString == input.NewString {
		return models.ErrorResult(t.Name(), "old_string and new_string are identical"), nil
	}

	resolved, err := t.ws.Resolve(input.FilePath)
	if err != nil {
		return models.ErrorResult(t.Name(), err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrorResult(t.Name(), "file not found: "+input.FilePath), nil
		}
		return models.ErrorResult(t.Name(), fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	count := strings.Count(content, input.OldString)
	if count == 0 {
		return models.ErrorResult(t.Name(), "old_string not found in "+input.FilePath), nil
	}

	var replacements int
	if input.ReplaceAll {
		content = strings.ReplaceAll(content, input.OldString, input.NewString)
		replacements = count
	} else {
		if count > 1 {
			return models.ErrorResult(t.Name(), fmt.Sprintf("old_string matches %d times in %s; pass replace_all or disambiguate", count, input.FilePath)), nil
		}
		content = strings.Replace(content, input.OldString, input.NewString, 1)
		replacements = 1
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("write file: %v", err)), nil
	}

	return models.OkResult(t.Name(),
		fmt.Sprintf("Applied %d replacement(s) in %s", replacements, input.FilePath),
		map[string]any{
			"path":         input.FilePath,
			"replacements": replacements,
		}), nil
}
