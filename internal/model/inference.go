package model

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// InferenceClient talks to a local inference server hosting the wound
// vision-language model, the embedding model and the speech model. The
// server exposes one model instance whose fine-tuned adapter is toggled
// per request; because that toggle is process-wide state on the server,
// the client holds a lock for the duration of every generation call so
// concurrent analyses never interleave base and fine-tuned requests.
type InferenceClient struct {
	http *resty.Client

	// genMu serializes generation calls around the adapter toggle.
	genMu sync.Mutex
}

// NewInferenceClient builds a client for the given base URL, e.g.
// "http://localhost:9090".
func NewInferenceClient(baseURL string, timeout time.Duration) *InferenceClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)
	return &InferenceClient{http: c}
}

type generateRequest struct {
	ImageBase64 string  `json:"image_base64"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Sampling    bool    `json:"sampling"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Adapter     bool    `json:"adapter"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (c *InferenceClient) Generate(ctx context.Context, image []byte, prompt string, opts GenerateOptions) (string, error) {
	if len(image) == 0 {
		image = PlaceholderImage
	}
	req := generateRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Prompt:      prompt,
		System:      opts.System,
		Sampling:    opts.Sampling,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Adapter:     opts.Mode == ModeFineTuned,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 1024
	}

	c.genMu.Lock()
	defer c.genMu.Unlock()

	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/generate")
	if err != nil {
		return "", fmt.Errorf("inference generate: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("inference generate: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Text, nil
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *InferenceClient) Embed(ctx context.Context, image []byte) ([]float32, error) {
	var out embedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"image_base64": base64.StdEncoding.EncodeToString(image)}).
		SetResult(&out).
		Post("/v1/embed")
	if err != nil {
		return nil, fmt.Errorf("inference embed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference embed: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("inference embed: empty embedding")
	}
	return out.Embedding, nil
}

type zeroShotResponse struct {
	Probabilities map[string]float64 `json:"probabilities"`
}

func (c *InferenceClient) ZeroShot(ctx context.Context, image []byte, labels []string) (map[string]float64, error) {
	var out zeroShotResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"image_base64": base64.StdEncoding.EncodeToString(image),
			"labels":       labels,
		}).
		SetResult(&out).
		Post("/v1/zero-shot")
	if err != nil {
		return nil, fmt.Errorf("inference zero-shot: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference zero-shot: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Probabilities, nil
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (c *InferenceClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	var out transcribeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"audio_path": audioPath}).
		SetResult(&out).
		Post("/v1/transcribe")
	if err != nil {
		return "", fmt.Errorf("inference transcribe: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("inference transcribe: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Text, nil
}
