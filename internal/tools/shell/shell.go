// Package shell executes commands and short scripts inside the workspace.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

const defaultTimeoutSecs = 30

// Config carries the dependencies shared by the shell-family tools.
type Config struct {
	Workspace tools.Workspace
}

// ShellTool runs a command in the workspace root and captures its output.
type ShellTool struct {
	ws tools.Workspace
}

// NewShellTool creates a shell tool rooted at the workspace.
func NewShellTool(cfg Config) *ShellTool {
	return &ShellTool{ws: cfg.Workspace}
}

type shellInput struct {
	Command string `json:"command" jsonschema:"description=Shell command to run in the workspace root"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds (default 30)"`
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Run a shell command in the workspace root. Captures stdout and stderr; combined output is truncated past the cap."
}

func (t *ShellTool) Schema() json.RawMessage {
	return tools.SchemaFor(&shellInput{})
}

func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input shellInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Command == "" {
		return models.ErrorResult(t.Name(), "command is required"), nil
	}
	if input.Timeout <= 0 {
		input.Timeout = defaultTimeoutSecs
	}

	res := runCommand(ctx, t.ws, input.Command, time.Duration(input.Timeout)*time.Second)

	text := res.combined()
	text, truncated := tools.Truncate(text, tools.ShellOutputCap)
	if text == "" {
		text = fmt.Sprintf("(no output, exit code %d)", res.exitCode)
	}

	result := &models.ToolResult{
		Kind:    t.Name(),
		Success: res.exitCode == 0 && !res.timedOut,
		Text:    text,
		Data: map[string]any{
			"exit_code": res.exitCode,
			"stdout":    res.stdout,
			"stderr":    res.stderr,
		},
		Meta: map[string]any{},
	}
	if res.timedOut {
		result.Error = fmt.Sprintf("command timed out after %ds", input.Timeout)
		result.WithMeta("timed_out", true)
	} else if res.exitCode != 0 {
		result.Error = fmt.Sprintf("command exited with code %d", res.exitCode)
	}
	if truncated {
		result.WithMeta("truncated", true)
	}
	return result, nil
}

type commandResult struct {
	stdout, stderr string
	exitCode       int
	timedOut       bool
}

func (r commandResult) combined() string {
	if r.stdout != "" && r.stderr != "" {
		return r.stdout + "\n" + r.stderr
	}
	return r.stdout + r.stderr
}

// runCommand executes command via the system shell with the workspace root
// as working directory.
func runCommand(ctx context.Context, ws tools.Workspace, command string, timeout time.Duration) commandResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "bash", "-c", command)
	cmd.Dir = ws.Root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{stdout: stdout.String(), stderr: stderr.String()}
	switch {
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		res.timedOut = true
		res.exitCode = -1
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
		} else {
			res.exitCode = -1
			res.stderr = err.Error()
		}
	}
	return res
}
