// Package genai provides chat completion and image generation on top of the OpenAI API.
package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults applied when options are not provided.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultImageModel  = "gpt-image-1"
	DefaultTemperature = 0.9
	DefaultImageSize   = "1024x1024"
)

var (
	ErrMissingAPIKey     = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyResponse     = errors.New("empty completion content")
	ErrNoImageData       = errors.New("image response carried neither data nor url")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// imageService defines minimal interface for image generation.
type imageService interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	ImageModel  string
	ImageSize   string
	Temperature float64
	BaseURL     string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithImageModel sets the image generation model.
func WithImageModel(model string) Option {
	return func(o *Opts) { o.ImageModel = model }
}

// WithImageSize sets the generated image size, e.g. "1024x1024".
func WithImageSize(size string) Option {
	return func(o *Opts) { o.ImageSize = size }
}

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// Client wraps the OpenAI chat and image services.
type Client struct {
	chat        chatService
	images      imageService
	model       string
	imageModel  string
	imageSize   string
	temperature float64
}

// Image is a generated picture, either inline bytes or a remote URL.
type Image struct {
	Data []byte
	URL  string
}

// NewClient initializes a new GenAI client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	c := newClient(&cli.Chat.Completions, &cli.Images, cfg)
	slog.Debug("GenAI.NewClient: client initialized", "model", c.model, "image_model", c.imageModel, "temperature", c.temperature)
	return c, nil
}

func newClient(chat chatService, images imageService, cfg Opts) *Client {
	c := &Client{
		chat:        chat,
		images:      images,
		model:       cfg.Model,
		imageModel:  cfg.ImageModel,
		imageSize:   cfg.ImageSize,
		temperature: cfg.Temperature,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.imageModel == "" {
		c.imageModel = DefaultImageModel
	}
	if c.imageSize == "" {
		c.imageSize = DefaultImageSize
	}
	return c
}

// Complete runs a chat completion over messages and returns the trimmed reply text.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("GenAI.Complete: completion request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	slog.Debug("GenAI.Complete: completion succeeded", "model", c.model, "messages", len(messages), "len", len(content))
	return content, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.Complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

// GenerateImage requests a single image for prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(c.imageModel),
		Size:   openai.ImageGenerateParamsSize(c.imageSize),
		N:      openai.Int(1),
	}
	resp, err := c.images.Generate(ctx, params)
	if err != nil {
		slog.Error("GenAI.GenerateImage: image request failed", "model", c.imageModel, "error", err)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, ErrNoImageData
	}

	first := resp.Data[0]
	if first.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}
		return &Image{Data: data}, nil
	}
	if first.URL != "" {
		return &Image{URL: first.URL}, nil
	}
	return nil, ErrNoImageData
}

// Model returns the configured chat model.
func (c *Client) Model() string {
	return c.model
}
