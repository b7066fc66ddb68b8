package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/loopkit/loopd/pkg/models"
)

// anthropicStreamer adapts the Anthropic Messages API to the Streamer
// contract.
type anthropicStreamer struct {
	client anthropic.Client
	opts   Options
}

func newAnthropicStreamer(opts Options) *anthropicStreamer {
	opts = opts.withDefaults()
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if strings.TrimSpace(opts.Endpoint) != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.Endpoint))
	}
	return &anthropicStreamer{client: anthropic.NewClient(reqOpts...), opts: opts}
}

func (s *anthropicStreamer) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	params, err := s.buildParams(req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *Chunk)
	go func() {
		defer close(chunks)

		stream, err := retryStream(ctx, s.opts, func() (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
			st := s.client.Messages.NewStreaming(ctx, params)
			if err := st.Err(); err != nil {
				return nil, err
			}
			return st, nil
		})
		if err != nil {
			chunks <- &Chunk{Err: fmt.Errorf("anthropic: %w", err)}
			return
		}
		s.pump(stream, chunks)
	}()
	return chunks, nil
}

func (s *anthropicStreamer) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	messages, err := anthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	for _, spec := range req.Tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: invalid schema for tool %s: %w", spec.Name, err)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		params.Tools = append(params.Tools, tool)
	}
	if req.DeepThinking {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(maxInt(req.ThinkingBudget-1, 0)))
	}
	return params, nil
}

func (s *anthropicStreamer) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *Chunk) {
	usage := &models.TokenUsage{}
	toolIndex := make(map[int64]int)
	nextTool := 0

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage.Prompt = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			start := event.AsContentBlockStart()
			if start.ContentBlock.Type == "tool_use" {
				use := start.ContentBlock.AsToolUse()
				idx := nextTool
				nextTool++
				toolIndex[start.Index] = idx
				chunks <- &Chunk{ToolCalls: []ToolCallChunk{{
					Index: &idx,
					ID:    use.ID,
					Name:  use.Name,
				}}}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta()
			switch delta.Delta.Type {
			case "text_delta":
				if delta.Delta.Text != "" {
					chunks <- &Chunk{Content: delta.Delta.Text}
				}
			case "thinking_delta":
				if delta.Delta.Thinking != "" {
					chunks <- &Chunk{Blocks: []map[string]any{{
						"type":     "thinking",
						"thinking": delta.Delta.Thinking,
					}}}
				}
			case "input_json_delta":
				if delta.Delta.PartialJSON != "" {
					if idx, ok := toolIndex[delta.Index]; ok {
						i := idx
						chunks <- &Chunk{ToolCalls: []ToolCallChunk{{
							Index: &i,
							Args:  delta.Delta.PartialJSON,
						}}}
					}
				}
			}

		case "message_delta":
			d := event.AsMessageDelta()
			if d.Usage.OutputTokens > 0 {
				usage.Completion = int(d.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- &Chunk{Usage: usage}
			return
		}
	}
	if err := stream.Err(); err != nil {
		chunks <- &Chunk{Err: fmt.Errorf("anthropic: %w", err)}
	}
}

// anthropicMessages converts loop history to Anthropic message params.
// System entries are omitted; they travel in params.System. Tool replies
// become user messages carrying a tool_result block.
func anthropicMessages(history []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if text := msg.Text(); text != "" {
				content = append(content, anthropic.NewTextBlock(text))
			}
			for _, call := range msg.ToolCalls {
				input := call.Args
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(content...))

		case models.RoleTool:
			block := anthropic.ToolResultBlockParam{
				ToolUseID: msg.ToolCallID,
				Content:   anthropicToolResultContent(msg.Content),
			}
			out = append(out, anthropic.NewUserMessage(
				anthropic.ContentBlockParamUnion{OfToolResult: &block},
			))

		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text())))
		}
	}
	return out, nil
}

// anthropicToolResultContent converts a tool reply into tool_result content
// blocks. Multimodal replies keep their text blocks and carry images as
// base64 sources decoded from the data URI.
func anthropicToolResultContent(content any) []anthropic.ToolResultBlockParamContentUnion {
	switch v := content.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []anthropic.ToolResultBlockParamContentUnion{
			{OfText: &anthropic.TextBlockParam{Text: v}},
		}
	case []any:
		var blocks []anthropic.ToolResultBlockParamContentUnion
		for _, entry := range v {
			block, ok := asLLMBlock(entry)
			if !ok {
				continue
			}
			if converted := anthropicResultBlock(block); converted != nil {
				blocks = append(blocks, *converted)
			}
		}
		return blocks
	default:
		if text := toolReplyText(content); text != "" {
			return []anthropic.ToolResultBlockParamContentUnion{
				{OfText: &anthropic.TextBlockParam{Text: text}},
			}
		}
		return nil
	}
}

func anthropicResultBlock(block models.LLMBlock) *anthropic.ToolResultBlockParamContentUnion {
	if block.Type == "image" {
		img := anthropicImageBlock(block.URL)
		if img == nil {
			return nil
		}
		return &anthropic.ToolResultBlockParamContentUnion{OfImage: img}
	}
	if block.Text == "" {
		return nil
	}
	return &anthropic.ToolResultBlockParamContentUnion{
		OfText: &anthropic.TextBlockParam{Text: block.Text},
	}
}

func anthropicImageBlock(url string) *anthropic.ImageBlockParam {
	if mediaType, data, ok := parseDataURL(url); ok {
		mt, supported := anthropicMediaType(mediaType)
		if !supported {
			return nil
		}
		return &anthropic.ImageBlockParam{
			Source: anthropic.ImageBlockParamSourceUnion{
				OfBase64: &anthropic.Base64ImageSourceParam{Data: data, MediaType: mt},
			},
		}
	}
	if url == "" {
		return nil
	}
	return &anthropic.ImageBlockParam{
		Source: anthropic.ImageBlockParamSourceUnion{
			OfURL: &anthropic.URLImageSourceParam{URL: url},
		},
	}
}

func anthropicMediaType(mediaType string) (anthropic.Base64ImageSourceMediaType, bool) {
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return anthropic.Base64ImageSourceMediaTypeImageJPEG, true
	case "image/png":
		return anthropic.Base64ImageSourceMediaTypeImagePNG, true
	case "image/gif":
		return anthropic.Base64ImageSourceMediaTypeImageGIF, true
	case "image/webp":
		return anthropic.Base64ImageSourceMediaTypeImageWebP, true
	}
	return "", false
}

// parseDataURL splits a data:<mime>;base64,<data> URI.
func parseDataURL(raw string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(raw, "data:") {
		return "", "", false
	}
	meta, payload, found := strings.Cut(raw[len("data:"):], ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		return "", "", false
	}
	return mediaType, payload, true
}
