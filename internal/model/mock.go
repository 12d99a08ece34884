package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Mock implements all three collaborator interfaces deterministically for
// development and demos: the same image always produces the same
// embedding, probabilities and scores, and different images spread across
// the clinically plausible range.
type Mock struct{}

func hashSeed(data []byte, salt string) int64 {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(salt))
	return int64(binary.LittleEndian.Uint64(h.Sum(nil)[:8]))
}

// hashFraction derives a stable fraction in [0,1) from a seed and key.
func hashFraction(data []byte, key string) float64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%x:%s", sha256.Sum256(data), key)))
	return float64(binary.BigEndian.Uint32(sum[:4])) / float64(math.MaxUint32)
}

func (Mock) Embed(_ context.Context, image []byte) ([]float32, error) {
	rng := rand.New(rand.NewSource(hashSeed(image, "embed")))
	out := make([]float32, 768)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out, nil
}

func (Mock) ZeroShot(_ context.Context, image []byte, labels []string) (map[string]float64, error) {
	rng := rand.New(rand.NewSource(hashSeed(image, "zeroshot")))
	raw := make([]float64, len(labels))
	total := 0.0
	for i := range labels {
		raw[i] = rng.Float64()
		total += raw[i]
	}
	out := make(map[string]float64, len(labels))
	for i, label := range labels {
		out[label] = math.Round(raw[i]/total*10000) / 10000
	}
	return out, nil
}

func (Mock) Transcribe(context.Context, string) (string, error) {
	return "Patient wound appears to be improving with good granulation tissue. " +
		"Slight redness around the edges but no signs of infection. " +
		"Dressing changed, moist wound environment maintained.", nil
}

// Generate inspects the prompt to decide which structured payload the real
// model would have been asked for, and fabricates a deterministic one.
func (Mock) Generate(_ context.Context, image []byte, prompt string, _ GenerateOptions) (string, error) {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "observation label"):
		return mockObservations(image), nil
	case strings.Contains(lower, "1 (best) to 5 (worst)"):
		return mockItems(image), nil
	case strings.Contains(lower, "critical findings"):
		return `{"worms": false, "bone_exposed": false, "purulent_discharge": false, "necrosis_gt50": false, "severe_undermining": false}`, nil
	case strings.Contains(lower, "meaningful contradiction"):
		return `{"contradiction": false, "detail": null}`, nil
	case strings.Contains(lower, "nurse question"):
		return "1. Continue the current dressing regimen and reassess in 3 days.", nil
	default:
		return mockReport(image), nil
	}
}

// mockItem derives a stable item score in [1,5], biased away from uniform
// output so the degenerate check never fires on mock data.
func mockItem(image []byte, name string, i int) int {
	f := hashFraction(image, "item:"+name)
	v := 1 + int(f*5)
	if v > 5 {
		v = 5
	}
	// Nudge alternating items so all-equal collapse cannot happen.
	if i%5 == 0 && v > 1 {
		v--
	}
	return v
}

func mockItems(image []byte) string {
	names := []string{
		"size", "depth", "edges", "undermining", "necrotic_type",
		"necrotic_amount", "exudate_type", "exudate_amount", "skin_color",
		"edema", "induration", "granulation", "epithelialization",
	}
	m := map[string]int{}
	for i, n := range names {
		m[n] = mockItem(image, n, i)
	}
	blob, _ := json.Marshal(m)
	return string(blob)
}

func mockObservations(image []byte) string {
	pick := func(name string, options ...string) string {
		return options[int(hashFraction(image, "obs:"+name)*float64(len(options)))%len(options)]
	}
	m := map[string]string{
		"size":              pick("size", "lt 4 cm²", "4-16 cm²", "16.1-36 cm²"),
		"depth":             pick("depth", "partial thickness", "full thickness"),
		"edges":             pick("edges", "distinct attached", "rolled under thickened"),
		"undermining":       pick("undermining", "none", "lt 2 cm"),
		"necrotic_type":     pick("necrotic_type", "none visible", "yellow slough"),
		"necrotic_amount":   pick("necrotic_amount", "none", "<25%"),
		"exudate_type":      pick("exudate_type", "serous", "serosanguineous"),
		"exudate_amount":    pick("exudate_amount", "scant", "moderate"),
		"skin_color":        pick("skin_color", "pink normal", "bright red"),
		"edema":             pick("edema", "none", "non-pitting <4 cm"),
		"induration":        pick("induration", "none", "<2 cm"),
		"granulation":       pick("granulation", "bright red 75-100%", "bright red 50-75%"),
		"epithelialization": pick("epithelialization", "75-100%", "50-75%"),
	}
	blob, _ := json.Marshal(m)
	return string(blob)
}

func mockReport(image []byte) string {
	avg := hashFraction(image, "report-avg")
	var summary string
	switch {
	case avg >= 0.7:
		summary = "The wound is healing well with favorable indicators across all dimensions."
	case avg >= 0.4:
		summary = "The wound shows moderate healing progress with some areas requiring attention."
	default:
		summary = "The wound presents concerning indicators that require prompt clinical intervention."
	}
	m := map[string]any{
		"summary":         summary,
		"wound_status":    "Granulating wound bed with stable periwound skin.",
		"change_analysis": "Baseline assessment.",
		"interventions": []string{
			"Continue current wound care protocol.",
			"Monitor for signs of infection at each dressing change.",
		},
		"follow_up": "Schedule routine follow-up in 7-10 days.",
	}
	blob, _ := json.Marshal(m)
	return string(blob)
}
