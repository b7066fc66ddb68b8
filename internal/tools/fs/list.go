package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

const maxListEntries = 2000

// ListTool enumerates the workspace tree breadth-first.
type ListTool struct {
	ws tools.Workspace
}

// NewListTool creates a list tool scoped to the workspace.
func NewListTool(cfg Config) *ListTool {
	return &ListTool{ws: cfg.Workspace}
}

type listInput struct {
	Path   string   `json:"path,omitempty" jsonschema:"description=Directory to list (default: workspace root)"`
	Depth  int      `json:"depth,omitempty" jsonschema:"description=Maximum depth to descend (default 2)"`
	Ignore []string `json:"ignore,omitempty" jsonschema:"description=Additional directory names to skip"`
}

type listEntry struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"`
	Depth int    `json:"depth"`
}

func (t *ListTool) Name() string { return "list" }

func (t *ListTool) Description() string {
	return "List the workspace tree breadth-first with per-entry type, size, and mtime."
}

func (t *ListTool) Schema() json.RawMessage {
	return tools.SchemaFor(&listInput{})
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input listInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Path == "" {
		input.Path = "."
	}
	if input.Depth <= 0 {
		input.Depth = 2
	}

	root, err := t.ws.Resolve(input.Path)
	if err != nil {
		return models.ErrorResult(t.Name(), err.Error()), nil
	}
	if info, err := os.Stat(root); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("stat path: %v", err)), nil
	} else if !info.IsDir() {
		return models.ErrorResult(t.Name(), input.Path+" is not a directory"), nil
	}

	skip := make(map[string]bool, len(input.Ignore))
	for _, name := range input.Ignore {
		skip[name] = true
	}

	type queued struct {
		abs   string
		depth int
	}
	queue := []queued{{abs: root, depth: 0}}
	var entries []listEntry
	capped := false

	for len(queue) > 0 && !capped {
		if ctx.Err() != nil {
			return models.ErrorResult(t.Name(), "list cancelled"), nil
		}
		next := queue[0]
		queue = queue[1:]

		children, err := os.ReadDir(next.abs)
		if err != nil {
			continue
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })

		for _, child := range children {
			name := child.Name()
			if child.IsDir() && (tools.IgnoredDirs[name] || skip[name]) {
				continue
			}
			abs := filepath.Join(next.abs, name)
			info, err := child.Info()
			if err != nil {
				continue
			}
			kind := "file"
			if child.IsDir() {
				kind = "dir"
			}
			entries = append(entries, listEntry{
				Path:  t.ws.Rel(abs),
				Name:  name,
				Type:  kind,
				Size:  info.Size(),
				MTime: info.ModTime().Unix(),
				Depth: next.depth + 1,
			})
			if len(entries) >= maxListEntries {
				capped = true
				break
			}
			if child.IsDir() && next.depth+1 < input.Depth {
				queue = append(queue, queued{abs: abs, depth: next.depth + 1})
			}
		}
	}

	var b strings.Builder
	for _, e := range entries {
		indent := strings.Repeat("  ", e.Depth-1)
		suffix := ""
		if e.Type == "dir" {
			suffix = "/"
		}
		fmt.Fprintf(&b, "%s%s%s\n", indent, e.Name, suffix)
	}
	text := b.String()
	if text == "" {
		text = "(empty directory)"
	}

	data := make([]any, 0, len(entries))
	for _, e := range entries {
		data = append(data, e)
	}
	result := models.OkResult(t.Name(), text, map[string]any{
		"path":    input.Path,
		"entries": data,
	}).WithMeta("entry_count", len(entries))
	if capped {
		result.WithMeta("truncated", true)
	}
	return result, nil
}
