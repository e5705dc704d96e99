// Package openrouter wraps the OpenRouter SDK behind the narrow vision
// completion interface the extraction pipeline needs.
package openrouter

import (
	"context"
	"encoding/base64"

	sdk "github.com/revrost/go-openrouter"
	"github.com/rotisserie/eris"
)

// Client defines the OpenRouter operations used by the pipeline.
type Client interface {
	CreateVisionCompletion(ctx context.Context, req VisionRequest) (*VisionResponse, error)
}

// VisionRequest submits one image plus instructions to a multimodal model.
type VisionRequest struct {
	Model       string
	System      string
	Prompt      string
	ImageJPEG   []byte // raw bytes, sent as a base64 data URL
	MaxTokens   int
	Temperature *float64
}

// VisionResponse is the model's reply with token accounting.
type VisionResponse struct {
	Model            string
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// sdkClient implements Client using revrost/go-openrouter.
type sdkClient struct {
	client *sdk.Client
}

// NewClient creates an OpenRouter client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{client: sdk.NewClient(apiKey)}
}

func (c *sdkClient) CreateVisionCompletion(ctx context.Context, req VisionRequest) (*VisionResponse, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.ImageJPEG)

	messages := make([]sdk.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, sdk.ChatCompletionMessage{
			Role:    sdk.ChatMessageRoleSystem,
			Content: sdk.Content{Text: req.System},
		})
	}
	messages = append(messages, sdk.ChatCompletionMessage{
		Role: sdk.ChatMessageRoleUser,
		Content: sdk.Content{
			Multi: []sdk.ChatMessagePart{
				{
					Type:     sdk.ChatMessagePartTypeImageURL,
					ImageURL: &sdk.ChatMessageImageURL{URL: dataURL},
				},
				{
					Type: sdk.ChatMessagePartTypeText,
					Text: req.Prompt,
				},
			},
		},
	})

	request := sdk.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: create vision completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openrouter: no completion choices returned")
	}

	return &VisionResponse{
		Model:            resp.Model,
		Text:             resp.Choices[0].Message.Content.Text,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
