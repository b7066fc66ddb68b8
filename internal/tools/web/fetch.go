// Package web provides the network-facing tools: page fetch and search.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/loopkit/loopd/internal/tools"
	"github.com/loopkit/loopd/pkg/models"
)

const (
	fetchTimeout  = 30 * time.Second
	maxFetchBytes = 10 << 20
)

// Config carries the shared dependencies of the web tools.
type Config struct {
	// Client is used for all outbound requests. Defaults to a client with
	// the fetch timeout.
	Client *http.Client

	// SearchEndpoint overrides the default search backend URL.
	SearchEndpoint string
}

func (c Config) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: fetchTimeout}
}

// FetchTool retrieves a URL and reduces HTML bodies to readable text.
type FetchTool struct {
	client *http.Client
}

// NewFetchTool creates a web_fetch tool.
func NewFetchTool(cfg Config) *FetchTool {
	return &FetchTool{client: cfg.client()}
}

type fetchInput struct {
	URL       string `json:"url" jsonschema:"description=URL to fetch"`
	MaxLength int    `json:"max_length,omitempty" jsonschema:"description=Maximum characters of body to return"`
}

func (t *FetchTool) Name() string { return "web_fetch" }

func (t *FetchTool) Description() string {
	return "Fetch a URL. HTML pages are reduced to their readable text; other bodies are returned as-is."
}

func (t *FetchTool) Schema() json.RawMessage {
	return tools.SchemaFor(&fetchInput{})
}

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input fetchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	target, err := url.Parse(strings.TrimSpace(input.URL))
	if err != nil || target.Host == "" {
		return models.ErrorResult(t.Name(), fmt.Sprintf("invalid url %q", input.URL)), nil
	}
	if target.Scheme != "https" {
		return models.ErrorResult(t.Name(), fmt.Sprintf("unsupported scheme %q; only https is allowed", target.Scheme)), nil
	}

	cctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("build request: %v", err)), nil
	}
	req.Header.Set("User-Agent", "loopd/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("fetch %s: %v", target.Host, err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return models.ErrorResult(t.Name(), fmt.Sprintf("fetch %s: status %d", target.Host, resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return models.ErrorResult(t.Name(), fmt.Sprintf("read body: %v", err)), nil
	}

	contentType := resp.Header.Get("Content-Type")
	text := string(body)
	if strings.HasPrefix(contentType, "text/html") {
		text = htmlToText(text, target)
	}

	truncated := false
	if input.MaxLength > 0 {
		text, truncated = tools.Truncate(text, input.MaxLength)
	}

	result := models.OkResult(t.Name(), text, map[string]any{
		"url":          target.String(),
		"status":       resp.StatusCode,
		"content_type": contentType,
	})
	if truncated {
		result.WithMeta("truncated", true)
	}
	return result, nil
}

// htmlToText reduces an HTML document to readable text. Readability
// extraction is tried first; documents it cannot handle fall back to a
// plain text-node walk.
func htmlToText(raw string, base *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(raw), base)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent)
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				b.WriteString(trimmed)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String())
}
