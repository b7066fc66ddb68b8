package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

const binaryProbeSize = 8 * 1024

// GrepTool searches workspace text files with a regular expression.
type GrepTool struct {
	ws tools.Workspace
}

// NewGrepTool creates a grep tool scoped to the workspace.
func NewGrepTool(cfg Config) *GrepTool {
	return &GrepTool{ws: cfg.Workspace}
}

type grepInput struct {
	Pattern    string `json:"pattern" jsonschema:"description=Regular expression to search for"`
	Path       string `json:"path,omitempty" jsonschema:"description=File or directory to search (default: workspace root)"`
	GlobFilter string `json:"glob_filter,omitempty" jsonschema:"description=Glob restricting which files are searched"`
	Context    int    `json:"context,omitempty" jsonschema:"description=Lines of context before and after each match"`
}

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Search workspace text files with a regular expression, emitting file:line:content entries. Binary files are skipped."
}

func (t *GrepTool) Schema() json.RawMessage {
	return tools.SchemaFor(&grepInput{})
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input grepInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Pattern == "" {
		return models.ErrorResult(t.Name(), "pattern is required"), nil
	}
	if input.Context < 0 {
		input.Context = 0
	}

	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	base := input.Path
	if base == "" {
		base = "."
	}
	root, err := t.ws.Resolve(base)
	if err != nil {
		return models.ErrorResult(t.Name(), err.Error()), nil
	}

	var files []string
	info, err := os.Stat(root)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("stat path: %v", err)), nil
	}
	if info.IsDir() {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if tools.IgnoredDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if input.GlobFilter != "" && !matchGlob(filepath.ToSlash(input.GlobFilter), filepath.ToSlash(filepath.Base(path))) {
				rel, relErr := filepath.Rel(root, path)
				if relErr != nil || !matchGlob(filepath.ToSlash(input.GlobFilter), filepath.ToSlash(rel)) {
					return nil
				}
			}
			files = append(files, path)
			return nil
		})
		sort.Strings(files)
	} else {
		files = []string{root}
	}

	var out strings.Builder
	matches := 0
	truncated := false

scan:
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if isBinary(data) {
			continue
		}
		rel := t.ws.Rel(path)
		lines := strings.Split(string(data), "\n")

		var matched []int
		for i, line := range lines {
			if re.MatchString(line) {
				matched = append(matched, i)
			}
		}
		if len(matched) == 0 {
			continue
		}
		matches += len(matched)

		for _, group := range groupWithContext(matched, input.Context, len(lines)) {
			if out.Len() > 0 && input.Context > 0 {
				out.WriteString("--\n")
			}
			for i := group.start; i <= group.end; i++ {
				fmt.Fprintf(&out, "%s:%d:%s\n", rel, i+1, lines[i])
				if out.Len() >= tools.GrepOutputCap {
					truncated = true
					break scan
				}
			}
		}
	}

	text := out.String()
	if truncated {
		text, _ = tools.Truncate(text, tools.GrepOutputCap)
	}
	if text == "" {
		text = "No matches for " + input.Pattern
	}

	result := models.OkResult(t.Name(), text, map[string]any{
		"pattern": input.Pattern,
	}).WithMeta("match_count", matches)
	if truncated {
		result.WithMeta("truncated", true)
	}
	return result, nil
}

// isBinary probes the first 8 KiB for a NUL byte.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

type lineRange struct {
	start, end int
}

// groupWithContext expands match line indexes by context lines and
// coalesces overlapping ranges.
func groupWithContext(matched []int, context, total int) []lineRange {
	var groups []lineRange
	for _, idx := range matched {
		start := idx - context
		if start < 0 {
			start = 0
		}
		end := idx + context
		if end >= total {
			end = total - 1
		}
		if n := len(groups); n > 0 && start <= groups[n-1].end+1 {
			if end > groups[n-1].end {
				groups[n-1].end = end
			}
			continue
		}
		groups = append(groups, lineRange{start: start, end: end})
	}
	return groups
}
