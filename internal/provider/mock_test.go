package provider

import (
	"context"

	"github.com/tastebase/capture-cli/pkg/anthropic"
	"github.com/tastebase/capture-cli/pkg/openrouter"
)

// mockAnthropicClient implements anthropic.Client for testing.
type mockAnthropicClient struct {
	response *anthropic.MessageResponse
	err      error
	gotReq   *anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.gotReq = &req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

// mockOpenRouterClient implements openrouter.Client for testing.
type mockOpenRouterClient struct {
	response *openrouter.VisionResponse
	err      error
	gotReq   *openrouter.VisionRequest
}

func (m *mockOpenRouterClient) CreateVisionCompletion(_ context.Context, req openrouter.VisionRequest) (*openrouter.VisionResponse, error) {
	m.gotReq = &req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func textResponse(model, text string, inTok, outTok int64) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:      model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: inTok, OutputTokens: outTok},
	}
}

var (
	_ anthropic.Client  = (*mockAnthropicClient)(nil)
	_ openrouter.Client = (*mockOpenRouterClient)(nil)
)
