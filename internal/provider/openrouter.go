package provider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/model"
	"github.com/tastebase/capture-cli/pkg/openrouter"
)

const openRouterMaxTokens = 2048

// OpenRouterProvider extracts structured records through OpenRouter-hosted
// vision models. It is the cheap alternative to the Anthropic provider and
// shares the same instruction profiles.
type OpenRouterProvider struct {
	client openrouter.Client
	model  string
}

// NewOpenRouterProvider creates an OpenRouterProvider. A nil client marks
// the provider unavailable.
func NewOpenRouterProvider(client openrouter.Client, modelID string) *OpenRouterProvider {
	return &OpenRouterProvider{client: client, model: modelID}
}

// Name implements Provider.
func (p *OpenRouterProvider) Name() string { return "openrouter" }

// Available implements Provider.
func (p *OpenRouterProvider) Available() bool { return p.client != nil }

// Extract implements Provider.
func (p *OpenRouterProvider) Extract(ctx context.Context, img Image, domain model.Domain, profile Profile) (*model.StructuredRecord, *model.ProviderMetadata, error) {
	if len(img.JPEG) == 0 {
		return nil, nil, newError(p.Name(), ReasonEmptyImage, nil)
	}

	temp := 0.0
	req := openrouter.VisionRequest{
		Model:       p.model,
		System:      profile.Instructions,
		Prompt:      profile.UserPrompt,
		ImageJPEG:   img.JPEG,
		MaxTokens:   openRouterMaxTokens,
		Temperature: &temp,
	}

	start := time.Now()
	resp, err := p.client.CreateVisionCompletion(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, nil, newError(p.Name(), classifyCallError(ctx, err), err)
	}

	meta := &model.ProviderMetadata{
		Provider:         p.Name(),
		Model:            responseModel(resp.Model, p.model),
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Latency:          latency,
	}

	if looksLikeRefusal(resp.Text) {
		return nil, meta, newError(p.Name(), ReasonRefused, nil)
	}

	rec, err := decodeRecord(resp.Text, domain)
	if err != nil {
		return nil, meta, newError(p.Name(), ReasonUnparseable, err)
	}

	zap.L().Debug("openrouter extraction complete",
		zap.String("domain", string(domain)),
		zap.String("model", meta.Model),
		zap.Int("prompt_tokens", meta.PromptTokens),
		zap.Int("completion_tokens", meta.CompletionTokens),
		zap.Duration("latency", latency),
	)
	return rec, meta, nil
}
