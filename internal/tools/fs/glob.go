package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

const maxGlobMatches = 1000

// GlobTool matches workspace files against glob patterns with ** and brace
// expansion support.
type GlobTool struct {
	ws tools.Workspace
}

// NewGlobTool creates a glob tool scoped to the workspace.
func NewGlobTool(cfg Config) *GlobTool {
	return &GlobTool{ws: cfg.Workspace}
}

type globInput struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern; supports ** and brace expansion like *.{go,md}"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search in (default: workspace root)"`
}

func (t *GlobTool) Name() string { return "glob" }

func (t *GlobTool) Description() string {
	return "Find workspace files matching a glob pattern. Supports ** for recursive matching and {a,b} brace expansion."
}

func (t *GlobTool) Schema() json.RawMessage {
	return tools.SchemaFor(&globInput{})
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input globInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return models.ErrorResult(t.Name(), "pattern is required"), nil
	}

	base := input.Path
	if base == "" {
		base = "."
	}
	root, err := t.ws.Resolve(base)
	if err != nil {
		return models.ErrorResult(t.Name(), err.Error()), nil
	}

	patterns := expandBraces(filepath.ToSlash(input.Pattern))
	seen := make(map[string]bool)
	capped := false

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
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
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if matchGlob(pattern, rel) {
				if len(seen) >= maxGlobMatches {
					capped = true
					return fs.SkipAll
				}
				seen[rel] = true
				break
			}
		}
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return models.ErrorResult(t.Name(), "glob cancelled"), nil
	}

	matches := make([]string, 0, len(seen))
	for rel := range seen {
		matches = append(matches, rel)
	}
	sort.Strings(matches)

	text := strings.Join(matches, "\n")
	if text == "" {
		text = "No files matched " + input.Pattern
	}
	result := models.OkResult(t.Name(), text, map[string]any{
		"pattern": input.Pattern,
		"matches": matches,
	}).WithMeta("match_count", len(matches))
	if capped {
		result.WithMeta("truncated", true)
	}
	return result, nil
}

// expandBraces recursively expands the first {a,b,...} group of pattern.
// Nested groups expand inside out; a pattern without braces returns as-is.
func expandBraces(pattern string) []string {
	open := -1
	depth := 0
	for i, r := range pattern {
		switch r {
		case '{':
			if depth == 0 {
				open = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && open >= 0 {
				var out []string
				prefix, body, suffix := pattern[:open], pattern[open+1:i], pattern[i+1:]
				for _, alt := range splitAlternatives(body) {
					out = append(out, expandBraces(prefix+alt+suffix)...)
				}
				return out
			}
		}
	}
	return []string{pattern}
}

// splitAlternatives splits a brace body on top-level commas.
func splitAlternatives(body string) []string {
	var alts []string
	depth, start := 0, 0
	for i, r := range body {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				alts = append(alts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(alts, body[start:])
}

// matchGlob matches a slash-separated relative path against a pattern
// where ** spans any number of path segments.
func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(pattern[1:], name) {
			return true
		}
		return len(name) > 0 && matchSegments(pattern, name[1:])
	}
	if len(name) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], name[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], name[1:])
}
