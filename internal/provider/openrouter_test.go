package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/capture-cli/internal/model"
	"github.com/tastebase/capture-cli/pkg/openrouter"
)

func TestOpenRouterProvider_Extract(t *testing.T) {
	t.Parallel()

	client := &mockOpenRouterClient{
		response: &openrouter.VisionResponse{
			Model:            "qwen/qwen2.5-vl-72b-instruct",
			Text:             `{"wine_name": "Barolo Cannubi", "producer": "Damilano", "vintage": 2017, "wine_type": "red"}`,
			PromptTokens:     950,
			CompletionTokens: 120,
		},
	}
	p := NewOpenRouterProvider(client, "qwen/qwen2.5-vl-72b-instruct")

	rec, meta, err := p.Extract(context.Background(), testImage(), model.DomainWine, mustProfile(t, model.DomainWine))
	require.NoError(t, err)

	assert.Equal(t, "Barolo Cannubi", rec.Identity)
	assert.Equal(t, "Damilano", rec.Wine.Producer)
	assert.Equal(t, "openrouter", meta.Provider)
	assert.Equal(t, 950, meta.PromptTokens)
	assert.Equal(t, 120, meta.CompletionTokens)

	require.NotNil(t, client.gotReq)
	assert.Equal(t, testImage().JPEG, client.gotReq.ImageJPEG)
	assert.NotEmpty(t, client.gotReq.System)
	require.NotNil(t, client.gotReq.Temperature)
	assert.Zero(t, *client.gotReq.Temperature)
}

func TestOpenRouterProvider_EmptyImage(t *testing.T) {
	t.Parallel()

	p := NewOpenRouterProvider(&mockOpenRouterClient{}, "qwen/qwen2.5-vl-72b-instruct")
	_, _, err := p.Extract(context.Background(), Image{}, model.DomainWine, mustProfile(t, model.DomainWine))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonEmptyImage, extErr.Reason)
}

func TestOpenRouterProvider_TransportError(t *testing.T) {
	t.Parallel()

	p := NewOpenRouterProvider(&mockOpenRouterClient{err: errors.New("bad gateway")}, "qwen/qwen2.5-vl-72b-instruct")
	_, _, err := p.Extract(context.Background(), testImage(), model.DomainWine, mustProfile(t, model.DomainWine))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonTransport, extErr.Reason)
	assert.Equal(t, "openrouter", extErr.Provider)
}

func TestOpenRouterProvider_Unparseable(t *testing.T) {
	t.Parallel()

	client := &mockOpenRouterClient{
		response: &openrouter.VisionResponse{Text: "The label shows a red wine from Piedmont."},
	}
	p := NewOpenRouterProvider(client, "qwen/qwen2.5-vl-72b-instruct")

	_, _, err := p.Extract(context.Background(), testImage(), model.DomainWine, mustProfile(t, model.DomainWine))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonUnparseable, extErr.Reason)
}

func TestOpenRouterProvider_Refusal(t *testing.T) {
	t.Parallel()

	client := &mockOpenRouterClient{
		response: &openrouter.VisionResponse{Text: "I'm unable to assist with identifying this content."},
	}
	p := NewOpenRouterProvider(client, "qwen/qwen2.5-vl-72b-instruct")

	_, _, err := p.Extract(context.Background(), testImage(), model.DomainWine, mustProfile(t, model.DomainWine))

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, ReasonRefused, extErr.Reason)
}
