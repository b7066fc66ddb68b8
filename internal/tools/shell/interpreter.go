package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// InterpreterTool writes a Python or JavaScript snippet to a temp file in
// the workspace and runs it. Media files created by the run are reported
// back as sandbox references.
type InterpreterTool struct {
	ws tools.Workspace
}

// NewInterpreterTool creates a code_interpreter tool rooted at the workspace.
func NewInterpreterTool(cfg Config) *InterpreterTool {
	return &InterpreterTool{ws: cfg.Workspace}
}

type interpreterInput struct {
	Language string `json:"language" jsonschema:"description=Interpreter language: python or javascript"`
	Code     string `json:"code" jsonschema:"description=Source code to execute"`
	Timeout  int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds (default 30)"`
}

type interpreterRuntime struct {
	ext     string
	command string
}

var runtimes = map[string]interpreterRuntime{
	"python":     {ext: ".py", command: "python3"},
	"javascript": {ext: ".js", command: "node"},
	"js":         {ext: ".js", command: "node"},
}

func (t *InterpreterTool) Name() string { return "code_interpreter" }

func (t *InterpreterTool) Description() string {
	return "Execute a Python or JavaScript snippet in the workspace. Newly created media files are listed as sandbox references."
}

func (t *InterpreterTool) Schema() json.RawMessage {
	return tools.SchemaFor(&interpreterInput{})
}

func (t *InterpreterTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input interpreterInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Code == "" {
		return models.ErrorResult(t.Name(), "code is required"), nil
	}
	runtime, ok := runtimes[strings.ToLower(strings.TrimSpace(input.Language))]
	if !ok {
		return models.ErrorResult(t.Name(), fmt.Sprintf("unsupported language %q (want python or javascript)", input.Language)), nil
	}
	if input.Timeout <= 0 {
		input.Timeout = defaultTimeoutSecs
	}

	scanner := tools.MediaScanner{Workspace: t.ws}
	before := scanner.Snapshot()

	tmp, err := os.CreateTemp(t.ws.Root, "snippet-*"+runtime.ext)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("create script file: %v", err)), nil
	}
	scriptPath := tmp.Name()
	defer os.Remove(scriptPath)
	if _, err := tmp.WriteString(input.Code); err != nil {
		tmp.Close()
		return models.ErrorResult(t.Name(), fmt.Sprintf("write script file: %v", err)), nil
	}
	if err := tmp.Close(); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("write script file: %v", err)), nil
	}

	command := runtime.command + " " + shellQuote(filepath.Base(scriptPath))
	res := runCommand(ctx, t.ws, command, time.Duration(input.Timeout)*time.Second)

	text := res.combined()
	text, truncated := tools.Truncate(text, tools.ShellOutputCap)
	if text == "" {
		text = fmt.Sprintf("(no output, exit code %d)", res.exitCode)
	}

	media := scanner.NewSince(before)
	refs := make([]string, 0, len(media))
	for _, rel := range media {
		refs = append(refs, "sandbox:///"+rel)
	}
	if len(refs) > 0 {
		text += "\n\nGenerated media:\n" + strings.Join(refs, "\n")
	}

	result := &models.ToolResult{
		Kind:    t.Name(),
		Success: res.exitCode == 0 && !res.timedOut,
		Text:    text,
		Data: map[string]any{
			"exit_code": res.exitCode,
			"stdout":    res.stdout,
			"stderr":    res.stderr,
			"media":     refs,
		},
		Meta: map[string]any{},
	}
	if res.timedOut {
		result.Error = fmt.Sprintf("execution timed out after %ds", input.Timeout)
		result.WithMeta("timed_out", true)
	} else if res.exitCode != 0 {
		result.Error = fmt.Sprintf("interpreter exited with code %d", res.exitCode)
	}
	if truncated {
		result.WithMeta("truncated", true)
	}
	return result, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
