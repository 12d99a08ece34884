package model

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"woundchrono/internal/normalize"
	"woundchrono/internal/wat"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.14159, 0}
	out, err := DecodeEmbedding(EncodeEmbedding(in))
	if err != nil {
		t.Fatalf("DecodeEmbedding: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDecodeEmbeddingRejectsBadLength(t *testing.T) {
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("odd-length blob accepted")
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	if d := CosineDistance(a, a); d != 0 {
		t.Errorf("self distance = %v", d)
	}
	b := []float32{0, 1, 0}
	if d := CosineDistance(a, b); math.Abs(d-1) > 1e-9 {
		t.Errorf("orthogonal distance = %v, want 1", d)
	}
	if d := CosineDistance(a, []float32{0, 0, 0}); d != 0 {
		t.Errorf("zero-norm distance = %v, want 0", d)
	}
	if d := CosineDistance(a, []float32{1, 0}); d != 0 {
		t.Errorf("mismatched-length distance = %v, want 0", d)
	}
}

func TestMockDeterministic(t *testing.T) {
	m := Mock{}
	img := []byte("same image bytes")
	e1, err := m.Embed(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	e2, _ := m.Embed(context.Background(), img)
	for i := range e1 {
		if e1[i] != e2[i] {
			t.Fatal("embedding not deterministic")
		}
	}
	other, _ := m.Embed(context.Background(), []byte("different image"))
	same := true
	for i := range e1 {
		if e1[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct images produced identical embeddings")
	}
}

func TestMockZeroShotSumsToOne(t *testing.T) {
	m := Mock{}
	probs, err := m.ZeroShot(context.Background(), []byte("img"), WoundLabels)
	if err != nil {
		t.Fatal(err)
	}
	if len(probs) != len(WoundLabels) {
		t.Fatalf("got %d labels, want %d", len(probs), len(WoundLabels))
	}
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 0.01 {
		t.Errorf("probabilities sum to %v", sum)
	}
}

func TestMockGenerateRouting(t *testing.T) {
	m := Mock{}
	img := []byte("img")
	ctx := context.Background()

	raw, err := m.Generate(ctx, img, "For each item, pick the observation label that fits best.", GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := normalize.Object(raw)
	if err != nil {
		t.Fatalf("observation reply not parseable: %v", err)
	}
	if _, ok := obj["granulation"]; !ok {
		t.Errorf("observation reply missing items: %v", obj)
	}

	raw, err = m.Generate(ctx, img, "Score each item from 1 (best) to 5 (worst).", GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	obj, err = normalize.Object(raw)
	if err != nil {
		t.Fatalf("direct reply not parseable: %v", err)
	}
	res, err := wat.FromParsed(obj, wat.PolicyGeneral)
	if err != nil {
		t.Fatalf("direct reply rejected: %v", err)
	}
	if res.Items.Degenerate() {
		t.Error("mock produced a degenerate item set")
	}

	raw, err = m.Generate(ctx, img, "Report any critical findings as JSON booleans.", GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := normalize.Object(raw); err != nil {
		t.Fatalf("flag reply not parseable: %v", err)
	}

	raw, err = m.Generate(ctx, img, "Write the clinical report.", GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	obj, err = normalize.Object(raw)
	if err != nil {
		t.Fatalf("report reply not parseable: %v", err)
	}
	if s, _ := obj["summary"].(string); s == "" {
		t.Error("report reply has no summary")
	}
}

func TestInferenceClientGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "scored"})
	}))
	defer srv.Close()

	c := NewInferenceClient(srv.URL, 5*time.Second)
	text, err := c.Generate(context.Background(), []byte("img"), "prompt", GenerateOptions{
		Mode: ModeFineTuned, Sampling: true, Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "scored" {
		t.Errorf("text = %q", text)
	}
	if !got.Adapter {
		t.Error("fine-tuned mode did not request the adapter")
	}
	if !got.Sampling || got.Temperature != 0.7 {
		t.Errorf("sampling options lost: %+v", got)
	}
	if got.MaxTokens != 1024 {
		t.Errorf("default max tokens = %d", got.MaxTokens)
	}
}

func TestInferenceClientGenerateSubstitutesPlaceholder(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	c := NewInferenceClient(srv.URL, 5*time.Second)
	if _, err := c.Generate(context.Background(), nil, "arbitrate", GenerateOptions{Mode: ModeBase}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.ImageBase64 == "" {
		t.Error("nil image not replaced with the placeholder")
	}
	if got.Adapter {
		t.Error("base mode requested the adapter")
	}
}

func TestInferenceClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewInferenceClient(srv.URL, 5*time.Second)
	_, err := c.Embed(context.Background(), []byte("img"))
	if err == nil {
		t.Fatal("503 embed succeeded")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error %q does not carry the status", err)
	}
}

func TestInferenceClientEmbedRejectsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	}))
	defer srv.Close()

	c := NewInferenceClient(srv.URL, 5*time.Second)
	if _, err := c.Embed(context.Background(), []byte("img")); err == nil {
		t.Error("empty embedding accepted")
	}
}
