package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator backs the Generator interface with OpenAI vision chat
// completions. Like the Anthropic backend it has no adapter; Mode is
// ignored.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGeneratorFromEnv reads OPENAI_API_KEY.
func NewOpenAIGeneratorFromEnv() (*OpenAIGenerator, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY not configured")
	}
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: openai.GPT4o}, nil
}

func (o *OpenAIGenerator) Generate(ctx context.Context, image []byte, prompt string, opts GenerateOptions) (string, error) {
	if len(image) == 0 {
		image = PlaceholderImage
	}
	temperature := float32(0)
	if opts.Sampling {
		temperature = float32(opts.Temperature)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	messages := []openai.ChatCompletionMessage{}
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
				},
			},
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
		},
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
