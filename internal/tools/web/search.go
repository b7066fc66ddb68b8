package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

const (
	defaultSearchEndpoint = "https://search.loopkit.dev/mcp"
	searchTimeout         = 30 * time.Second
)

// SearchTool queries the search backend over a JSON-RPC call answered as a
// server-sent event stream.
type SearchTool struct {
	client   *http.Client
	endpoint string
}

// NewSearchTool creates a web_search tool.
func NewSearchTool(cfg Config) *SearchTool {
	endpoint := cfg.SearchEndpoint
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	return &SearchTool{client: cfg.client(), endpoint: endpoint}
}

type searchInput struct {
	Query string `json:"query" jsonschema:"description=Search query"`
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int            `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type rpcResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the web and return the top results as text."
}

func (t *SearchTool) Schema() json.RawMessage {
	return tools.SchemaFor(&searchInput{})
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input searchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return models.ErrorResult(t.Name(), "query is required"), nil
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params: map[string]any{
			"name":      "web_search",
			"arguments": map[string]any{"query": input.Query},
		},
	})
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("encode request: %v", err)), nil
	}

	cctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("build request: %v", err)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("search request: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ErrorResult(t.Name(), fmt.Sprintf("search backend returned status %d", resp.StatusCode)), nil
	}

	text, err := firstEventText(resp.Body)
	if err != nil {
		return models.ErrorResult(t.Name(), err.Error()), nil
	}
	return models.OkResult(t.Name(), text, map[string]any{"query": input.Query}), nil
}

// firstEventText scans an SSE stream for the first JSON-RPC response whose
// result carries a text content block.
func firstEventText(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var rpc rpcResponse
		if err := json.Unmarshal([]byte(data), &rpc); err != nil {
			continue
		}
		if rpc.Error != nil {
			return "", fmt.Errorf("search backend error: %s", rpc.Error.Message)
		}
		for _, block := range rpc.Result.Content {
			if block.Text != "" {
				return block.Text, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read search stream: %v", err)
	}
	return "", fmt.Errorf("search backend returned no results")
}
