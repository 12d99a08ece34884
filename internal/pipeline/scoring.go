package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"woundchrono/internal/model"
	"woundchrono/internal/normalize"
	"woundchrono/internal/wat"
)

// Scoring sources, recorded so degraded results stay distinguishable from
// first-choice ones downstream.
const (
	SourceObservation = "observation"
	SourceRedFlags    = "red_flags"
	SourceDirect      = "direct"
	SourceZeroShot    = "zero_shot"
	SourceNeutral     = "neutral"
)

const observationPrompt = `Wound care specialist. Describe this wound photograph by choosing one
observation label per item. Use the exact label wording where it fits; use "unknown" when the
photograph does not show the item.

Items and label vocabularies:
- size: <4 cm² | 4-16 cm² | 16.1-36 cm² | 36.1-80 cm² | >80 cm²
- depth: intact skin erythema | partial thickness | full thickness | obscured by necrosis | exposed deep tissue
- edges: indistinct diffuse | distinct attached | well defined unattached | rolled under thickened | fibrotic scarred
- undermining: none | <2 cm | 2-4 cm <50% | 2-4 cm >50% | >4 cm
- necrotic_type: none visible | white grey nonviable | yellow slough | soft black eschar | hard black eschar
- necrotic_amount: none | <25% | 25-50% | 50-75% | 75-100%
- exudate_type: none | bloody | serosanguineous | serous | purulent
- exudate_amount: none | scant | small | moderate | large
- skin_color: pink normal | bright red | white grey pallor | dark red purple | black hyperpigmented
- edema: none | non-pitting <4 cm | non-pitting >=4 cm | pitting <4 cm | crepitus or pitting >=4 cm
- induration: none | <2 cm | 2-4 cm <50% | 2-4 cm >=50% | >4 cm
- granulation: skin intact or filled | bright red 75-100% | bright red 50-75% | pink dull <=25% | none present
- epithelialization: 100% covered | 75-100% | 50-75% | 25-50% | <25%

Respond with JSON only, one observation label string per item key.`

const directScorePrompt = `Wound care specialist. Score this wound photograph on 13 assessment items.
Each item is an integer from 1 (best) to 5 (worst). Score each item independently from what you see.

Items: size, depth, edges, undermining, necrotic_type, necrotic_amount, exudate_type,
exudate_amount, skin_color, edema, induration, granulation, epithelialization.

Respond with JSON only:
{"size":3,"depth":3,"edges":3,"undermining":3,"necrotic_type":3,"necrotic_amount":3,"exudate_type":3,"exudate_amount":3,"skin_color":3,"edema":3,"induration":3,"granulation":3,"epithelialization":3}`

const redFlagPrompt = `Wound care specialist. Check this wound photograph for critical findings.
Answer strictly from what is visible.

Respond with JSON only:
{"worms": false, "bone_exposed": false, "purulent_discharge": false, "necrosis_gt50": false, "severe_undermining": false}`

// zeroShotDimensionProfiles maps each zero-shot label to approximate
// (tissue, inflammation, moisture, edge) healing scores. Probability-weighted
// blending of these profiles gives a usable estimate when every model-based
// scoring path has failed.
var zeroShotDimensionProfiles = map[string][4]float64{
	"healthy granulating wound":              {0.70, 0.70, 0.60, 0.60},
	"infected wound with purulent discharge": {0.20, 0.15, 0.30, 0.20},
	"necrotic wound tissue":                  {0.10, 0.40, 0.30, 0.25},
	"wound with fibrin slough":               {0.30, 0.50, 0.50, 0.40},
	"epithelializing wound edge":             {0.60, 0.70, 0.60, 0.75},
	"dry wound bed":                          {0.40, 0.60, 0.20, 0.40},
	"wound with excessive exudate":           {0.35, 0.35, 0.20, 0.35},
	"wound with undermined edges":            {0.30, 0.40, 0.45, 0.15},
}

// directAttempts fixes the bounded retry schedule for direct scoring:
// deterministic first, then increasingly exploratory sampling.
var directAttempts = []model.GenerateOptions{
	{Mode: model.ModeFineTuned},
	{Mode: model.ModeFineTuned, Sampling: true, Temperature: 0.7},
	{Mode: model.ModeFineTuned, Sampling: true, Temperature: 1.0},
}

// scoreWound runs the scoring fallback chain and always returns a usable
// result. The returned source names which strategy produced it; SourceNeutral
// means the whole chain failed and the caller should treat the scores as a
// placeholder.
func (a *Agent) scoreWound(ctx context.Context, image []byte, zeroShot map[string]float64) (wat.Result, wat.RedFlags, string) {
	flags := a.detectRedFlags(ctx, image)

	if res, err := a.scoreFromObservations(ctx, image, flags); err == nil {
		return res, flags, SourceObservation
	} else {
		a.log.Warn("observation scoring failed", zap.Error(err))
	}

	if flags.Any() {
		items := wat.NeutralItems()
		flags.Apply(&items)
		if !items.Degenerate() {
			return wat.NewResult(items, nil), flags, SourceRedFlags
		}
	}

	if res, err := a.scoreDirect(ctx, image); err == nil {
		return res, flags, SourceDirect
	} else {
		a.log.Warn("direct scoring failed", zap.Error(err))
	}

	if res, ok := estimateFromZeroShot(zeroShot); ok {
		return res, flags, SourceZeroShot
	}

	a.log.Error("all scoring strategies failed, persisting neutral defaults")
	return wat.NewResult(wat.NeutralItems(), nil), flags, SourceNeutral
}

// detectRedFlags is an optional step: any failure reads as no flags.
func (a *Agent) detectRedFlags(ctx context.Context, image []byte) wat.RedFlags {
	raw, err := a.gen.Generate(ctx, image, redFlagPrompt, model.GenerateOptions{Mode: model.ModeFineTuned})
	if err != nil {
		a.log.Warn("red flag detection call failed", zap.Error(err))
		return wat.RedFlags{}
	}
	obj, err := normalize.Object(raw)
	if err != nil {
		a.log.Warn("red flag reply unparseable", zap.Error(err))
		return wat.RedFlags{}
	}
	return wat.RedFlags{
		Worms:             boolField(obj, "worms"),
		BoneExposed:       boolField(obj, "bone_exposed"),
		PurulentDischarge: boolField(obj, "purulent_discharge"),
		NecrosisGT50:      boolField(obj, "necrosis_gt50"),
		SevereUndermining: boolField(obj, "severe_undermining"),
	}
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

func (a *Agent) scoreFromObservations(ctx context.Context, image []byte, flags wat.RedFlags) (wat.Result, error) {
	raw, err := a.gen.Generate(ctx, image, observationPrompt, model.GenerateOptions{Mode: model.ModeFineTuned})
	if err != nil {
		return wat.Result{}, fmt.Errorf("observation call: %w", err)
	}
	obj, err := normalize.Object(raw)
	if err != nil {
		return wat.Result{}, err
	}
	obs := observationsFromMap(obj)
	return wat.FromObservations(obs, flags)
}

func observationsFromMap(m map[string]any) wat.Observations {
	get := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	return wat.Observations{
		Size:              get("size"),
		Depth:             get("depth"),
		Edges:             get("edges"),
		Undermining:       get("undermining"),
		NecroticType:      get("necrotic_type"),
		NecroticAmount:    get("necrotic_amount"),
		ExudateType:       get("exudate_type"),
		ExudateAmount:     get("exudate_amount"),
		SkinColor:         get("skin_color"),
		Edema:             get("edema"),
		Induration:        get("induration"),
		Granulation:       get("granulation"),
		Epithelialization: get("epithelialization"),
	}
}

// scoreDirect runs the bounded multi-attempt loop and aggregates the
// non-degenerate candidates per item. Attempts are sequential so the shared
// model stays in a known mode between calls.
func (a *Agent) scoreDirect(ctx context.Context, image []byte) (wat.Result, error) {
	var candidates []wat.Items
	var lastErr error
	for i, opts := range directAttempts {
		raw, err := a.gen.Generate(ctx, image, directScorePrompt, opts)
		if err != nil {
			lastErr = fmt.Errorf("direct attempt %d: %w", i+1, err)
			continue
		}
		obj, err := normalize.Object(raw)
		if err != nil {
			lastErr = err
			continue
		}
		res, err := wat.FromParsed(obj, a.policy)
		if err != nil {
			lastErr = err
			continue
		}
		candidates = append(candidates, res.Items)
	}
	if len(candidates) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no scoring candidates")
		}
		return wat.Result{}, lastErr
	}
	return wat.Aggregate(candidates)
}

// estimateFromZeroShot blends the per-label dimension profiles by
// probability and back-derives items. A suspect near-maximum estimate is
// discarded rather than persisted.
func estimateFromZeroShot(probs map[string]float64) (wat.Result, bool) {
	var sums [4]float64
	var weight float64
	for label, prob := range probs {
		profile, ok := zeroShotDimensionProfiles[label]
		if !ok {
			continue
		}
		for i := range sums {
			sums[i] += profile[i] * prob
		}
		weight += prob
	}
	if weight < 0.01 {
		return wat.Result{}, false
	}
	dims := map[wat.Dimension]float64{
		wat.DimTissue:       sums[0] / weight,
		wat.DimInflammation: sums[1] / weight,
		wat.DimMoisture:     sums[2] / weight,
		wat.DimEdge:         sums[3] / weight,
	}
	items := wat.Estimate(dims)
	if wat.Suspect(items) {
		return wat.Result{}, false
	}
	return wat.NewResult(items, nil), true
}

// ensureItems back-fills item-level data from bare dimension scores, as
// happens when re-analyzing legacy records. All-zero dimension scores are a
// known corrupt shape; the zero-shot estimate is preferred over them.
func ensureItems(res wat.Result, dims map[wat.Dimension]float64, zeroShot map[string]float64) wat.Result {
	if res.Items.Validate() == nil && !res.Items.Degenerate() {
		return res
	}
	allZero := len(dims) > 0
	for _, v := range dims {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero || len(dims) == 0 {
		if est, ok := estimateFromZeroShot(zeroShot); ok {
			return est
		}
	}
	if len(dims) > 0 {
		items := wat.Estimate(dims)
		if !wat.Suspect(items) {
			return wat.NewResult(items, nil)
		}
	}
	return wat.NewResult(wat.NeutralItems(), nil)
}
