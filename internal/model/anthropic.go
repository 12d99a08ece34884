package model

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator backs the Generator interface with the Anthropic
// Messages API. The hosted model has no toggleable adapter, so Mode is
// accepted and ignored: every call runs in base mode.
type AnthropicGenerator struct {
	messages AnthropicMessager
	model    anthropic.Model
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// NewAnthropicGeneratorFromEnv reads ANTHROPIC_API_KEY.
func NewAnthropicGeneratorFromEnv() (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &AnthropicGenerator{
		messages: newAnthropicClient(apiKey),
		model:    anthropic.ModelClaudeSonnet4_20250514,
	}, nil
}

func (a *AnthropicGenerator) Generate(ctx context.Context, image []byte, prompt string, opts GenerateOptions) (string, error) {
	if len(image) == 0 {
		image = PlaceholderImage
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temperature := 0.0
	if opts.Sampling {
		temperature = opts.Temperature
	}

	var system []anthropic.TextBlockParam
	if opts.System != "" {
		system = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	msg := anthropic.NewUserMessage(
		anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(image)),
		anthropic.NewTextBlock(prompt),
	)
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []anthropic.MessageParam{msg},
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}
