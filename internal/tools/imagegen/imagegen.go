// Package imagegen saves images produced by a provider-specific backend
// into the workspace.
package imagegen

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

const outputDir = "generated_images"

// Image is one generated image returned by a backend.
type Image struct {
	Data []byte
	Ext  string
}

// Backend produces images for a prompt. Implementations wrap a concrete
// provider image API.
type Backend interface {
	Generate(ctx context.Context, prompt string, count int) ([]Image, error)
}

// Config carries the image tool dependencies.
type Config struct {
	Workspace tools.Workspace
	Backend   Backend
}

// Tool generates images and persists them under generated_images/.
type Tool struct {
	ws      tools.Workspace
	backend Backend
}

// NewTool creates an image_generation tool.
func NewTool(cfg Config) *Tool {
	return &Tool{ws: cfg.Workspace, backend: cfg.Backend}
}

type genInput struct {
	Prompt string `json:"prompt" jsonschema:"description=Text description of the image to generate"`
	Count  int    `json:"count,omitempty" jsonschema:"description=Number of images to generate (default 1)"`
}

func (t *Tool) Name() string { return "image_generation" }

func (t *Tool) Description() string {
	return "Generate images from a text prompt and save them into the workspace."
}

func (t *Tool) Schema() json.RawMessage {
	return tools.SchemaFor(&genInput{})
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input genInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return models.ErrorResult(t.Name(), "prompt is required"), nil
	}
	if input.Count <= 0 {
		input.Count = 1
	}
	if t.backend == nil {
		return models.ErrorResult(t.Name(), "image generation is not configured for this provider"), nil
	}

	images, err := t.backend.Generate(ctx, input.Prompt, input.Count)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("generate images: %v", err)), nil
	}
	if len(images) == 0 {
		return models.ErrorResult(t.Name(), "backend returned no images"), nil
	}

	dir := filepath.Join(t.ws.Root, outputDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("create output directory: %v", err)), nil
	}

	stamp := time.Now().UnixMilli()
	sum := md5.Sum([]byte(input.Prompt))
	hash := hex.EncodeToString(sum[:])[:8]

	var refs []string
	for i, img := range images {
		ext := strings.TrimPrefix(img.Ext, ".")
		if ext == "" {
			ext = "png"
		}
		name := fmt.Sprintf("%d_%s_%d.%s", stamp, hash, i, ext)
		abs := filepath.Join(dir, name)
		if err := os.WriteFile(abs, img.Data, 0o644); err != nil {
			return models.ErrorResult(t.Name(), fmt.Sprintf("save image: %v", err)), nil
		}
		refs = append(refs, t.ws.SandboxURL(abs))
	}

	text := fmt.Sprintf("Generated %d image(s):\n%s", len(refs), strings.Join(refs, "\n"))
	return models.OkResult(t.Name(), text, map[string]any{
		"prompt": input.Prompt,
		"images": refs,
	}), nil
}
