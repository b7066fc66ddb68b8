package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/loopkit/loopd/pkg/models"
)

// openaiStreamer adapts the OpenAI chat completions API (and compatible
// gateways) to the Streamer contract.
type openaiStreamer struct {
	client *openai.Client
	opts   Options
}

func newOpenAIStreamer(opts Options) *openaiStreamer {
	opts = opts.withDefaults()
	cfg := openai.DefaultConfig(opts.APIKey)
	if strings.TrimSpace(opts.Endpoint) != "" {
		cfg.BaseURL = opts.Endpoint
	}
	return &openaiStreamer{client: openai.NewClientWithConfig(cfg), opts: opts}
}

func (s *openaiStreamer) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            openaiMessages(req),
		Stream:              true,
		StreamOptions:       &openai.StreamOptions{IncludeUsage: true},
		MaxCompletionTokens: req.MaxTokens,
	}
	for _, spec := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(spec.Schema),
			},
		})
	}
	if req.DeepThinking {
		chatReq.ReasoningEffort = "high"
	}

	chunks := make(chan *Chunk)
	go func() {
		defer close(chunks)

		stream, err := retryStream(ctx, s.opts, func() (*openai.ChatCompletionStream, error) {
			return s.client.CreateChatCompletionStream(ctx, chatReq)
		})
		if err != nil {
			chunks <- &Chunk{Err: fmt.Errorf("openai: %w", err)}
			return
		}
		defer stream.Close()
		s.pump(stream, chunks)
	}()
	return chunks, nil
}

func (s *openaiStreamer) pump(stream *openai.ChatCompletionStream, chunks chan<- *Chunk) {
	var usage *models.TokenUsage

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			chunks <- &Chunk{Usage: usage}
			return
		}
		if err != nil {
			chunks <- &Chunk{Err: fmt.Errorf("openai: %w", err)}
			return
		}

		if resp.Usage != nil {
			usage = &models.TokenUsage{
				Prompt:     resp.Usage.PromptTokens,
				Completion: resp.Usage.CompletionTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		out := &Chunk{Content: delta.Content}
		for _, tc := range delta.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCallChunk{
				Index: tc.Index,
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Args:  tc.Function.Arguments,
			})
		}
		if out.Content != "" || len(out.ToolCalls) > 0 {
			chunks <- out
		}
	}
}

// openaiMessages converts loop history to chat-completion messages. The
// system prompt leads; assistant tool calls and tool replies keep their
// call ids so multi-turn tool use replays correctly.
func openaiMessages(req *Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text(),
			}
			for _, call := range msg.ToolCalls {
				args := call.ArgsRaw
				if args == "" {
					if encoded, err := json.Marshal(call.Args); err == nil {
						args = string(encoded)
					}
				}
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			out = append(out, m)

		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    toolReplyText(msg.Content),
				ToolCallID: msg.ToolCallID,
			})

		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Text(),
			})
		}
	}
	return out
}

// toolReplyText flattens a tool reply to plain text for providers whose tool
// role accepts only strings. Multimodal block lists keep their text blocks;
// image blocks reduce to a placeholder so the model still sees that the tool
// attached one.
func toolReplyText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, entry := range v {
			block, ok := asLLMBlock(entry)
			if !ok {
				continue
			}
			line := block.Text
			if line == "" && block.Type == "image" {
				line = "[image attached]"
			}
			if line == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line)
		}
		return b.String()
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// asLLMBlock views one reply entry as an LLM content block. Entries arrive
// as typed blocks from a live tool result, or as generic maps when history
// has round-tripped through JSON.
func asLLMBlock(entry any) (models.LLMBlock, bool) {
	switch v := entry.(type) {
	case models.LLMBlock:
		return v, true
	case map[string]any:
		var block models.LLMBlock
		block.Type, _ = v["type"].(string)
		block.Text, _ = v["text"].(string)
		block.URL, _ = v["url"].(string)
		if block.Type == "" && block.Text == "" && block.URL == "" {
			return models.LLMBlock{}, false
		}
		return block, true
	default:
		return models.LLMBlock{}, false
	}
}
