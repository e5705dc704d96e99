package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/model"
	"github.com/tastebase/capture-cli/pkg/anthropic"
)

const anthropicMaxTokens = 2048

// AnthropicProvider extracts structured records with Claude vision models.
// The instruction profile rides as a cached system block so repeated
// extractions for the same domain reuse the prompt cache.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates an AnthropicProvider. A nil client marks the
// provider unavailable rather than failing at call time.
func NewAnthropicProvider(client anthropic.Client, modelID string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: modelID}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Available implements Provider.
func (p *AnthropicProvider) Available() bool { return p.client != nil }

// Extract implements Provider.
func (p *AnthropicProvider) Extract(ctx context.Context, img Image, domain model.Domain, profile Profile) (*model.StructuredRecord, *model.ProviderMetadata, error) {
	if len(img.JPEG) == 0 {
		return nil, nil, newError(p.Name(), ReasonEmptyImage, nil)
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   anthropicMaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(profile.Instructions, ""),
		Temperature: &temp,
		Messages: []anthropic.Message{
			{
				Role: "user",
				Parts: []anthropic.ContentPart{
					anthropic.ImagePart("image/jpeg", img.JPEG),
					anthropic.TextPart(profile.UserPrompt),
				},
			},
		},
	}

	start := time.Now()
	resp, err := p.client.CreateMessage(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, nil, newError(p.Name(), classifyCallError(ctx, err), err)
	}

	meta := &model.ProviderMetadata{
		Provider:         p.Name(),
		Model:            responseModel(resp.Model, p.model),
		PromptTokens:     int(resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		Latency:          latency,
	}

	text := resp.Text()
	if resp.StopReason == "refusal" || looksLikeRefusal(text) {
		return nil, meta, newError(p.Name(), ReasonRefused, nil)
	}

	rec, err := decodeRecord(text, domain)
	if err != nil {
		return nil, meta, newError(p.Name(), ReasonUnparseable, err)
	}

	zap.L().Debug("anthropic extraction complete",
		zap.String("domain", string(domain)),
		zap.String("model", meta.Model),
		zap.Int("prompt_tokens", meta.PromptTokens),
		zap.Int("completion_tokens", meta.CompletionTokens),
		zap.Duration("latency", latency),
	)
	return rec, meta, nil
}

// classifyCallError maps a transport-layer failure onto a reason kind.
func classifyCallError(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonTransport
}

func responseModel(got, requested string) string {
	if got != "" {
		return got
	}
	return requested
}
