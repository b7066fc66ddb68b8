// Package fs implements the workspace filesystem tools: read, write, edit,
// glob, grep, and list. Every tool resolves its paths through the shared
// workspace resolver and reports failures as result envelopes.
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

// Config carries the workspace shared by the filesystem tools.
type Config struct {
	Workspace tools.Workspace
}

const (
	defaultReadLimit = 2000
	maxReadBytes     = 5 << 20
)

// ReadTool reads text files with line numbers, returns images as inline
// multimodal content, and audio/video as sandbox references.
type ReadTool struct {
	ws tools.Workspace
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	return &ReadTool{ws: cfg.Workspace}
}

type readInput struct {
	FilePath string `json:"file_path" jsonschema:"description=Path to the file (relative to the workspace)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"description=Lines to skip before reading (0-based)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum lines to return (default 2000)"`
}

func (t *ReadTool) Name() string { return "read" }

func (t *ReadTool) Description() string {
	return "Read a file from the workspace. Text files return line-numbered content; images return inline content; audio and video return sandbox references."
}

func (t *ReadTool) Schema() json.RawMessage {
	return tools.SchemaFor(&readInput{})
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input readInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Offset < 0 {
		return models.ErrorResult(t.Name(), "offset must be >= 0"), nil
	}
	if input.Limit <= 0 {
		input.Limit = defaultReadLimit
	}

	resolved, err := t.ws.Resolve(input.FilePath)
	if err != nil {
		return models.ErrorResult(t.Name(), err.Error()), nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrorResult(t.Name(), "file not found: "+input.FilePath), nil
		}
		return models.ErrorResult(t.Name(), fmt.Sprintf("stat file: %v", err)), nil
	}
	if info.IsDir() {
		return models.ErrorResult(t.Name(), input.FilePath+" is a directory"), nil
	}

	if kind, ok := tools.MediaKindFor(resolved); ok {
		return t.readMedia(resolved, input.FilePath, kind, info.Size())
	}

	if info.Size() == 0 {
		return models.ErrorResult(t.Name(), "file is empty: "+input.FilePath), nil
	}
	if info.Size() > maxReadBytes {
		return models.ErrorResult(t.Name(), fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), maxReadBytes)), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("read file: %v", err)), nil
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)
	if input.Offset >= total {
		return models.ErrorResult(t.Name(), fmt.Sprintf("offset %d is past the end of the file (%d lines)", input.Offset, total)), nil
	}
	end := input.Offset + input.Limit
	if end > total {
		end = total
	}

	var b strings.Builder
	for i := input.Offset; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}

	result := models.OkResult(t.Name(), b.String(), map[string]any{
		"path":        input.FilePath,
		"offset":      input.Offset,
		"lines":       end - input.Offset,
		"total_lines": total,
	})
	if end < total {
		result.WithMeta("truncated", true)
	}
	return result, nil
}

func (t *ReadTool) readMedia(resolved, requested string, kind tools.MediaKind, size int64) (*models.ToolResult, error) {
	sandboxURL := t.ws.SandboxURL(resolved)

	if kind == tools.MediaImage {
		if size > tools.MaxImageBytes {
			return models.ErrorResult(t.Name(), fmt.Sprintf("image too large: %d bytes (max %d)", size, tools.MaxImageBytes)), nil
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return models.ErrorResult(t.Name(), fmt.Sprintf("read image: %v", err)), nil
		}
		text := fmt.Sprintf("Image %s (%d bytes): %s", requested, size, sandboxURL)
		result := models.OkResult(t.Name(), text, map[string]any{
			"path":  requested,
			"media": []any{map[string]any{"kind": string(kind), "url": sandboxURL}},
		})
		result.LLMContent = []models.LLMBlock{
			{Type: "text", Text: text},
			{Type: "image", URL: tools.DataURI(tools.MimeFor(resolved), data)},
		}
		return result, nil
	}

	if size > tools.MaxAVBytes {
		return models.ErrorResult(t.Name(), fmt.Sprintf("media too large: %d bytes (max %d)", size, tools.MaxAVBytes)), nil
	}
	text := fmt.Sprintf("%s file %s (%d bytes): %s", string(kind), requested, size, sandboxURL)
	return models.OkResult(t.Name(), text, map[string]any{
		"path":  requested,
		"media": []any{map[string]any{"kind": string(kind), "url": sandboxURL}},
	}), nil
}
