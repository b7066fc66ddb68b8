package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/loopkit/loopd/pkg/models"
)

// googleStreamer adapts the Gemini API to the Streamer contract.
type googleStreamer struct {
	opts Options
}

func newGoogleStreamer(opts Options) *googleStreamer {
	return &googleStreamer{opts: opts.withDefaults()}
}

func (s *googleStreamer) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  s.opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.opts.Endpoint != "" {
		clientCfg.HTTPOptions.BaseURL = s.opts.Endpoint
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}

	contents := googleContents(req.Messages)
	config := s.buildConfig(req)

	chunks := make(chan *Chunk)
	go func() {
		defer close(chunks)
		s.pump(ctx, client, req.Model, contents, config, chunks)
	}()
	return chunks, nil
}

func (s *googleStreamer) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			var schema map[string]any
			if err := json.Unmarshal(spec.Schema, &schema); err != nil {
				continue
			}
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:                 spec.Name,
				Description:          spec.Description,
				ParametersJsonSchema: schema,
			})
		}
		if len(declarations) > 0 {
			config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
		}
	}
	if req.DeepThinking {
		budget := int32(maxInt(req.ThinkingBudget-1, 0))
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  &budget,
		}
	}
	return config
}

func (s *googleStreamer) pump(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig, chunks chan<- *Chunk) {
	usage := &models.TokenUsage{}
	nextTool := 0

	for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			chunks <- &Chunk{Err: fmt.Errorf("google: %w", err)}
			return
		}
		if resp.UsageMetadata != nil {
			usage.Prompt = int(resp.UsageMetadata.PromptTokenCount)
			usage.Completion = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						args = []byte("{}")
					}
					idx := nextTool
					nextTool++
					chunks <- &Chunk{ToolCalls: []ToolCallChunk{{
						Index: &idx,
						ID:    googleToolCallID(part.FunctionCall.Name),
						Name:  part.FunctionCall.Name,
						Args:  string(args),
					}}}

				case part.Thought && part.Text != "":
					chunks <- &Chunk{Blocks: []map[string]any{{
						"type":     "thinking",
						"thinking": part.Text,
					}}}

				case part.Text != "":
					chunks <- &Chunk{Content: part.Text}
				}
			}
		}
	}
	chunks <- &Chunk{Usage: usage}
}

// googleContents converts loop history to Gemini content. System entries
// travel separately as the system instruction. Tool replies become function
// response parts keyed by the original call's tool name.
func googleContents(history []models.Message) []*genai.Content {
	nameByID := make(map[string]string)
	for _, msg := range history {
		for _, call := range msg.ToolCalls {
			nameByID[call.ID] = call.Name
		}
	}

	var out []*genai.Content
	for _, msg := range history {
		content := &genai.Content{}
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleAssistant:
			content.Role = genai.RoleModel
			if text := msg.Text(); text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: text})
			}
			for _, call := range msg.ToolCalls {
				args := call.Args
				if args == nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: call.Name, Args: args},
				})
			}

		case models.RoleTool:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     nameByID[msg.ToolCallID],
					Response: map[string]any{"output": toolReplyText(msg.Content)},
				},
			})

		default:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Text()})
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

// googleToolCallID synthesizes a call id; Gemini does not assign one.
func googleToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}
