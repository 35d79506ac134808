package googleai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"mediaflow/src/core/generation"
)

// Client adapts the Google GenAI SDK to the generation.Provider
// contract. Veo video models run as long-running operations (the async
// path); Imagen image models return bytes inline (the sync path).
type Client struct {
	client *genai.Client
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Start(ctx context.Context, req generation.Request) (*generation.StartResult, error) {
	switch req.Kind {
	case generation.KindImage:
		return c.generateImage(ctx, req)
	case generation.KindVideo:
		return c.startVideo(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported generation kind %q", req.Kind)
	}
}

func (c *Client) generateImage(ctx context.Context, req generation.Request) (*generation.StartResult, error) {
	resp, err := c.client.Models.GenerateImages(ctx, req.Model, req.Prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("no image returned for model %s", req.Model)
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &generation.StartResult{
		Inline: &generation.Artifact{Data: img.ImageBytes, MIME: mime},
	}, nil
}

func (c *Client) startVideo(ctx context.Context, req generation.Request) (*generation.StartResult, error) {
	op, err := c.client.Models.GenerateVideos(ctx, req.Model, req.Prompt, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}
	return &generation.StartResult{OperationID: op.Name}, nil
}

// Check performs one status call for a video operation. The handle is
// the operation name returned by Start.
func (c *Client) Check(ctx context.Context, operationID string) (*generation.CheckResult, error) {
	op := &genai.GenerateVideosOperation{Name: operationID}
	op, err := c.client.Operations.GetVideosOperation(ctx, op, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check operation %s: %w", operationID, err)
	}

	if !op.Done {
		return &generation.CheckResult{Pending: true}, nil
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return &generation.CheckResult{
			Failure: fmt.Sprintf("operation %s finished without a video", operationID),
		}, nil
	}

	video := op.Response.GeneratedVideos[0].Video
	data, err := c.client.Files.Download(ctx, video, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download video for operation %s: %w", operationID, err)
	}
	if len(data) == 0 {
		data = video.VideoBytes
	}

	mime := video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return &generation.CheckResult{
		Artifact: &generation.Artifact{Data: data, MIME: mime},
	}, nil
}
