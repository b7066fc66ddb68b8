package question

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

// Sink delivers a questionnaire to the user, typically as a question event
// on the control channel.
type Sink func(ctx context.Context, q models.Questionnaire) error

// Config carries the question tool dependencies.
type Config struct {
	Broker *Broker
	Sink   Sink
}

// Tool asks the user a questionnaire and waits for the answers.
type Tool struct {
	broker *Broker
	sink   Sink
}

// NewTool creates a question tool.
func NewTool(cfg Config) *Tool {
	return &Tool{broker: cfg.Broker, sink: cfg.Sink}
}

type questionInput struct {
	Title     string            `json:"title,omitempty" jsonschema:"description=Questionnaire title shown to the user"`
	Questions []models.Question `json:"questions" jsonschema:"description=Questions to ask"`
}

func (t *Tool) Name() string { return "question" }

func (t *Tool) Description() string {
	return "Ask the user one or more questions and wait for their answers."
}

func (t *Tool) Schema() json.RawMessage {
	return tools.SchemaFor(&questionInput{})
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input questionInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(input.Questions) == 0 {
		return models.ErrorResult(t.Name(), "at least one question is required"), nil
	}
	if t.sink == nil || t.broker == nil {
		return models.ErrorResult(t.Name(), "question delivery is not configured"), nil
	}

	for i := range input.Questions {
		if input.Questions[i].ID == "" {
			input.Questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}

	q := models.Questionnaire{
		ID:        uuid.NewString(),
		Title:     input.Title,
		Questions: input.Questions,
	}
	if err := t.sink(ctx, q); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("deliver questionnaire: %v", err)), nil
	}

	answers, err := t.broker.Await(ctx, q.ID)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("await answers: %v", err)), nil
	}

	byID := make(map[string][]string, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = a.Values
	}
	var b strings.Builder
	for _, question := range input.Questions {
		values := byID[question.ID]
		answer := "(no answer)"
		if len(values) > 0 {
			answer = strings.Join(values, ", ")
		}
		fmt.Fprintf(&b, "%s: %s\n", question.Question, answer)
	}

	return models.OkResult(t.Name(), strings.TrimRight(b.String(), "\n"), map[string]any{
		"questionnaire_id": q.ID,
		"answers":          answers,
	}), nil
}
