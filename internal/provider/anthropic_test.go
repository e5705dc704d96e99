package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/capture-cli/internal/model"
)

func testImage() Image {
	return Image{JPEG: []byte("\xff\xd8\xff fake jpeg"), Width: 640, Height: 480}
}

func mustProfile(t *testing.T, domain model.Domain) Profile {
	t.Helper()
	p, err := ProfileFor(domain)
	require.NoError(t, err)
	return p
}

func TestAnthropicProvider_Extract(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{
		response: textResponse("claude-haiku-4-5-20251001", "```json\n{\"dish_name\": \"Tarte Tatin\", \"instructions\": \"Caraméliser les pommes.\"}\n```", 1200, 180),
	}
	p := NewAnthropicProvider(client, "claude-haiku-4-5-20251001")

	rec, meta, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, mustProfile(t, model.DomainRecipe))
	require.NoError(t, err)

	assert.Equal(t, "Tarte Tatin", rec.Identity)
	assert.Equal(t, "anthropic", meta.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", meta.Model)
	assert.Equal(t, 1200, meta.PromptTokens)
	assert.Equal(t, 180, meta.CompletionTokens)

	require.NotNil(t, client.gotReq)
	require.Len(t, client.gotReq.Messages, 1)
	require.Len(t, client.gotReq.Messages[0].Parts, 2)
	assert.Equal(t, "image", client.gotReq.Messages[0].Parts[0].Type)
	assert.Equal(t, "image/jpeg", client.gotReq.Messages[0].Parts[0].MediaType)
	assert.Equal(t, "text", client.gotReq.Messages[0].Parts[1].Type)

	require.NotEmpty(t, client.gotReq.System)
	assert.NotNil(t, client.gotReq.System[len(client.gotReq.System)-1].CacheControl)
}

func TestAnthropicProvider_CacheTokensCounted(t *testing.T) {
	t.Parallel()

	resp := textResponse("claude-haiku-4-5-20251001", `{"dish_name": "Gratin"}`, 100, 50)
	resp.Usage.CacheCreationInputTokens = 900
	resp.Usage.CacheReadInputTokens = 300
	p := NewAnthropicProvider(&mockAnthropicClient{response: resp}, "claude-haiku-4-5-20251001")

	_, meta, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, mustProfile(t, model.DomainRecipe))
	require.NoError(t, err)
	assert.Equal(t, 1300, meta.PromptTokens)
}

func TestAnthropicProvider_EmptyImage(t *testing.T) {
	t.Parallel()

	p := NewAnthropicProvider(&mockAnthropicClient{}, "claude-haiku-4-5-20251001")
	_, _, err := p.Extract(context.Background(), Image{}, model.DomainRecipe, mustProfile(t, model.DomainRecipe))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonEmptyImage, extErr.Reason)
	assert.Equal(t, "anthropic", extErr.Provider)
}

func TestAnthropicProvider_TransportError(t *testing.T) {
	t.Parallel()

	p := NewAnthropicProvider(&mockAnthropicClient{err: errors.New("connection reset")}, "claude-haiku-4-5-20251001")
	_, _, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, mustProfile(t, model.DomainRecipe))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonTransport, extErr.Reason)
}

func TestAnthropicProvider_Timeout(t *testing.T) {
	t.Parallel()

	p := NewAnthropicProvider(&mockAnthropicClient{err: context.DeadlineExceeded}, "claude-haiku-4-5-20251001")
	_, _, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, mustProfile(t, model.DomainRecipe))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonTimeout, extErr.Reason)
}

func TestAnthropicProvider_StopReasonRefusal(t *testing.T) {
	t.Parallel()

	resp := textResponse("claude-haiku-4-5-20251001", "", 50, 5)
	resp.StopReason = "refusal"
	p := NewAnthropicProvider(&mockAnthropicClient{response: resp}, "claude-haiku-4-5-20251001")

	_, meta, err := p.Extract(context.Background(), testImage(), model.DomainWine, mustProfile(t, model.DomainWine))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonRefused, extErr.Reason)
	require.NotNil(t, meta)
	assert.Equal(t, 50, meta.PromptTokens)
}

func TestAnthropicProvider_ProseRefusal(t *testing.T) {
	t.Parallel()

	resp := textResponse("claude-haiku-4-5-20251001", "I'm sorry, but I cannot help with that request.", 50, 12)
	p := NewAnthropicProvider(&mockAnthropicClient{response: resp}, "claude-haiku-4-5-20251001")

	_, _, err := p.Extract(context.Background(), testImage(), model.DomainWine, mustProfile(t, model.DomainWine))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonRefused, extErr.Reason)
}

func TestAnthropicProvider_Unparseable(t *testing.T) {
	t.Parallel()

	resp := textResponse("claude-haiku-4-5-20251001", `{"servings": 4}`, 800, 40)
	p := NewAnthropicProvider(&mockAnthropicClient{response: resp}, "claude-haiku-4-5-20251001")

	_, meta, err := p.Extract(context.Background(), testImage(), model.DomainRecipe, mustProfile(t, model.DomainRecipe))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonUnparseable, extErr.Reason)
	require.NotNil(t, meta)
	assert.Equal(t, 800, meta.PromptTokens)
}

func TestAnthropicProvider_Available(t *testing.T) {
	t.Parallel()

	assert.True(t, NewAnthropicProvider(&mockAnthropicClient{}, "m").Available())
	assert.False(t, NewAnthropicProvider(nil, "m").Available())
}
