package wat

import "strings"

// Observations is the semantic-label parallel of Items: one label per item,
// produced when the model is asked to describe the wound rather than score
// it. Labels it cannot judge come back as "unknown".
type Observations struct {
	Size              string `json:"size"`
	Depth             string `json:"depth"`
	Edges             string `json:"edges"`
	Undermining       string `json:"undermining"`
	NecroticType      string `json:"necrotic_type"`
	NecroticAmount    string `json:"necrotic_amount"`
	ExudateType       string `json:"exudate_type"`
	ExudateAmount     string `json:"exudate_amount"`
	SkinColor         string `json:"skin_color"`
	Edema             string `json:"edema"`
	Induration        string `json:"induration"`
	Granulation       string `json:"granulation"`
	Epithelialization string `json:"epithelialization"`
}

func (o Observations) byItem() map[string]string {
	return map[string]string{
		"size":              o.Size,
		"depth":             o.Depth,
		"edges":             o.Edges,
		"undermining":       o.Undermining,
		"necrotic_type":     o.NecroticType,
		"necrotic_amount":   o.NecroticAmount,
		"exudate_type":      o.ExudateType,
		"exudate_amount":    o.ExudateAmount,
		"skin_color":        o.SkinColor,
		"edema":             o.Edema,
		"induration":        o.Induration,
		"granulation":       o.Granulation,
		"epithelialization": o.Epithelialization,
	}
}

// observationScores maps normalized labels to item scores, per item. The
// anchor labels follow the standard 13-item instrument wording.
var observationScores = map[string]map[string]int{
	"size": {
		"lt_4_cm2":    1,
		"4_16_cm2":    2,
		"16_1_36_cm2": 3,
		"36_1_80_cm2": 4,
		"gt_80_cm2":   5,
	},
	"depth": {
		"intact_skin_erythema": 1,
		"partial_thickness":    2,
		"full_thickness":       3,
		"obscured_by_necrosis": 4,
		"exposed_deep_tissue":  5,
	},
	"edges": {
		"indistinct_diffuse":      1,
		"distinct_attached":       2,
		"well_defined_unattached": 3,
		"rolled_under_thickened":  4,
		"fibrotic_scarred":        5,
	},
	"undermining": {
		"none":            1,
		"lt_2_cm":         2,
		"2_4_cm_lt_50pct": 3,
		"2_4_cm_gt_50pct": 4,
		"gt_4_cm":         5,
	},
	"necrotic_type": {
		"none_visible":         1,
		"white_grey_nonviable": 2,
		"yellow_slough":        3,
		"soft_black_eschar":    4,
		"hard_black_eschar":    5,
	},
	"necrotic_amount": {
		"none":      1,
		"lt_25pct":  2,
		"25_50pct":  3,
		"50_75pct":  4,
		"75_100pct": 5,
	},
	"exudate_type": {
		"none":            1,
		"bloody":          2,
		"serosanguineous": 3,
		"serous":          4,
		"purulent":        5,
	},
	"exudate_amount": {
		"none":     1,
		"scant":    2,
		"small":    3,
		"moderate": 4,
		"large":    5,
	},
	"skin_color": {
		"pink_normal":          1,
		"bright_red":           2,
		"white_grey_pallor":    3,
		"dark_red_purple":      4,
		"black_hyperpigmented": 5,
	},
	"edema": {
		"none":                         1,
		"non_pitting_lt_4_cm":          2,
		"non_pitting_gte_4_cm":         3,
		"pitting_lt_4_cm":              4,
		"crepitus_or_pitting_gte_4_cm": 5,
	},
	"induration": {
		"none":             1,
		"lt_2_cm":          2,
		"2_4_cm_lt_50pct":  3,
		"2_4_cm_gte_50pct": 4,
		"gt_4_cm":          5,
	},
	"granulation": {
		"skin_intact_or_filled": 1,
		"bright_red_75_100pct":  2,
		"bright_red_50_75pct":   3,
		"pink_dull_lte_25pct":   4,
		"none_present":          5,
	},
	"epithelialization": {
		"100pct_covered": 1,
		"75_100pct":      2,
		"50_75pct":       3,
		"25_50pct":       4,
		"lt_25pct":       5,
	},
}

var superscripts = strings.NewReplacer("²", "2", "³", "3")

// NormalizeLabel canonicalizes an observation label: lowercase, superscript
// digits flattened, comparison operators spelled out, percent signs folded,
// and symbol runs collapsed to single underscores.
func NormalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = superscripts.Replace(s)
	// Operators before their single-character prefixes.
	s = strings.ReplaceAll(s, ">=", " gte ")
	s = strings.ReplaceAll(s, "<=", " lte ")
	s = strings.ReplaceAll(s, "≥", " gte ")
	s = strings.ReplaceAll(s, "≤", " lte ")
	s = strings.ReplaceAll(s, ">", " gt ")
	s = strings.ReplaceAll(s, "<", " lt ")
	s = strings.ReplaceAll(s, "%", "pct")

	var b strings.Builder
	lastUnderscore := true
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// FromObservations converts a semantic observation set to item scores via
// the fixed lookup tables, then applies red-flag overrides before any
// totals are computed. Unknown or absent labels default to the neutral
// value.
func FromObservations(obs Observations, flags RedFlags) (Result, error) {
	it := NeutralItems()
	for name, label := range obs.byItem() {
		norm := NormalizeLabel(label)
		if norm == "" || norm == "unknown" {
			continue
		}
		if score, ok := observationScores[name][norm]; ok {
			fieldByName(name).set(&it, score)
		}
	}
	flags.Apply(&it)
	if it.Degenerate() {
		return Result{}, errDegenerate(it)
	}
	return NewResult(it, nil), nil
}
