package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// TaskTool exposes the subagent runner to the model as the "task" tool. The
// child's stream events are forwarded to the sink so controllers can render
// subagent progress live.
type TaskTool struct {
	runner *Runner
	sink   EventSink
}

// NewTaskTool creates the task tool. A nil sink discards child events.
func NewTaskTool(runner *Runner, sink EventSink) *TaskTool {
	return &TaskTool{runner: runner, sink: sink}
}

type taskInput struct {
	SubagentType string `json:"subagent_type" jsonschema:"description=Kind of subagent to launch. Only explore is supported"`
	Description  string `json:"description" jsonschema:"description=Short label for what the subagent is asked to do"`
	Prompt       string `json:"prompt" jsonschema:"description=Full instructions for the subagent"`
}

func (t *TaskTool) Name() string { return "task" }

func (t *TaskTool) Description() string {
	return "Delegate an exploration question to a read-only subagent. " +
		"The subagent investigates with the read-only tools and returns a summary plus a trace of what it did."
}

func (t *TaskTool) Schema() json.RawMessage {
	return tools.SchemaFor(&taskInput{})
}

func (t *TaskTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input taskInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Prompt == "" {
		return models.ErrorResult(t.Name(), "prompt is required"), nil
	}
	if input.SubagentType == "" {
		input.SubagentType = TypeExplore
	}
	return t.runner.Run(ctx, input.SubagentType, input.Description, input.Prompt, t.sink), nil
}
