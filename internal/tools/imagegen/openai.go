package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend generates images through the OpenAI images API.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates a backend for the given credentials. An empty
// baseURL uses the public API endpoint.
func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg)}
}

func (b *OpenAIBackend) Generate(ctx context.Context, prompt string, count int) ([]Image, error) {
	resp, err := b.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		N:              count,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}

	images := make([]Image, 0, len(resp.Data))
	for _, item := range resp.Data {
		raw, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		images = append(images, Image{Data: raw, Ext: "png"})
	}
	return images, nil
}
