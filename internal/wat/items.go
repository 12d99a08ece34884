// Package wat implements the 13-item wound assessment tool (Bates-Jensen
// style): item normalization, observation-to-score conversion, red-flag
// overrides, degenerate-output rejection, multi-sample aggregation and
// estimation from legacy dimension scores.
package wat

import (
	"fmt"
	"math"
)

const (
	// ItemMin and ItemMax bound every item score; 1 is best, 5 is worst.
	ItemMin = 1
	ItemMax = 5

	// Neutral is the fill value for items that could not be scored.
	Neutral = 3

	// TotalMin and TotalMax bound the 13-item sum.
	TotalMin = 13
	TotalMax = 65
)

// Items is the canonical 13-item severity set. Every field is an integer
// in [1,5]; 1 is best, 5 is worst.
type Items struct {
	Size              int `json:"size"`
	Depth             int `json:"depth"`
	Edges             int `json:"edges"`
	Undermining       int `json:"undermining"`
	NecroticType      int `json:"necrotic_type"`
	NecroticAmount    int `json:"necrotic_amount"`
	ExudateType       int `json:"exudate_type"`
	ExudateAmount     int `json:"exudate_amount"`
	SkinColor         int `json:"skin_color"`
	Edema             int `json:"edema"`
	Induration        int `json:"induration"`
	Granulation       int `json:"granulation"`
	Epithelialization int `json:"epithelialization"`
}

// Dimension is one of the four TIME clinical healing dimensions.
type Dimension string

const (
	DimTissue       Dimension = "tissue"
	DimInflammation Dimension = "inflammation"
	DimMoisture     Dimension = "moisture"
	DimEdge         Dimension = "edge"
)

// Dimensions lists the four dimensions in canonical order.
var Dimensions = []Dimension{DimTissue, DimInflammation, DimMoisture, DimEdge}

type fieldDef struct {
	name    string
	aliases []string
	get     func(*Items) int
	set     func(*Items, int)
}

// itemFields is the declarative registry of the 13 items. Alias matching in
// the direct-score path goes through this table, never through ad hoc string
// comparisons.
var itemFields = []fieldDef{
	{"size", []string{"wound_size", "area"},
		func(it *Items) int { return it.Size }, func(it *Items, v int) { it.Size = v }},
	{"depth", []string{"wound_depth"},
		func(it *Items) int { return it.Depth }, func(it *Items, v int) { it.Depth = v }},
	{"edges", []string{"edge", "wound_edges"},
		func(it *Items) int { return it.Edges }, func(it *Items, v int) { it.Edges = v }},
	{"undermining", []string{"tunneling", "undermining_tunneling"},
		func(it *Items) int { return it.Undermining }, func(it *Items, v int) { it.Undermining = v }},
	{"necrotic_type", []string{"necrotic_tissue_type", "necrosis_type"},
		func(it *Items) int { return it.NecroticType }, func(it *Items, v int) { it.NecroticType = v }},
	{"necrotic_amount", []string{"necrotic_tissue_amount", "necrosis_amount"},
		func(it *Items) int { return it.NecroticAmount }, func(it *Items, v int) { it.NecroticAmount = v }},
	{"exudate_type", []string{"drainage_type"},
		func(it *Items) int { return it.ExudateType }, func(it *Items, v int) { it.ExudateType = v }},
	{"exudate_amount", []string{"drainage_amount"},
		func(it *Items) int { return it.ExudateAmount }, func(it *Items, v int) { it.ExudateAmount = v }},
	{"skin_color", []string{"surrounding_skin_color", "periwound_color"},
		func(it *Items) int { return it.SkinColor }, func(it *Items, v int) { it.SkinColor = v }},
	{"edema", []string{"peripheral_edema", "tissue_edema"},
		func(it *Items) int { return it.Edema }, func(it *Items, v int) { it.Edema = v }},
	{"induration", []string{"peripheral_induration", "tissue_induration"},
		func(it *Items) int { return it.Induration }, func(it *Items, v int) { it.Induration = v }},
	{"granulation", []string{"granulation_tissue"},
		func(it *Items) int { return it.Granulation }, func(it *Items, v int) { it.Granulation = v }},
	{"epithelialization", []string{"epithelization", "epithelial_tissue"},
		func(it *Items) int { return it.Epithelialization }, func(it *Items, v int) { it.Epithelialization = v }},
}

// ItemNames returns the 13 canonical item names in registry order.
func ItemNames() []string {
	names := make([]string, len(itemFields))
	for i, f := range itemFields {
		names[i] = f.name
	}
	return names
}

// dimensionItems is the fixed WAT-to-dimension map. Size and depth are
// standalone and belong to no dimension.
var dimensionItems = map[Dimension][]string{
	DimTissue:       {"necrotic_type", "necrotic_amount", "granulation"},
	DimInflammation: {"skin_color", "edema", "induration"},
	DimMoisture:     {"exudate_type", "exudate_amount"},
	DimEdge:         {"edges", "undermining", "epithelialization"},
}

func fieldByName(name string) *fieldDef {
	for i := range itemFields {
		if itemFields[i].name == name {
			return &itemFields[i]
		}
	}
	return nil
}

// NeutralItems returns an item set with every field at the neutral value.
func NeutralItems() Items {
	var it Items
	for _, f := range itemFields {
		f.set(&it, Neutral)
	}
	return it
}

// Validate reports the first out-of-range item, if any.
func (it Items) Validate() error {
	for _, f := range itemFields {
		v := f.get(&it)
		if v < ItemMin || v > ItemMax {
			return fmt.Errorf("item %s out of range: %d", f.name, v)
		}
	}
	return nil
}

// Total is the 13-item sum, in [13,65] for a valid set.
func (it Items) Total() int {
	total := 0
	for _, f := range itemFields {
		total += f.get(&it)
	}
	return total
}

// Degenerate reports whether all 13 values are identical. Such sets are
// safety-filter or template-collapse artifacts and are never accepted as
// scoring candidates.
func (it Items) Degenerate() bool {
	first := itemFields[0].get(&it)
	for _, f := range itemFields[1:] {
		if f.get(&it) != first {
			return false
		}
	}
	return true
}

// Composite is the average of the dimension's mapped items on the 1-5 scale.
func (it Items) Composite(d Dimension) float64 {
	names := dimensionItems[d]
	sum := 0
	for _, n := range names {
		sum += fieldByName(n).get(&it)
	}
	return float64(sum) / float64(len(names))
}

// Score01 converts a 1-5 composite to a 0-1 healing score, 1 being best.
func Score01(composite float64) float64 {
	s := (5 - composite) / 4
	return math.Max(0, math.Min(1, s))
}

// DimensionScores returns the four 0-1 healing scores derived from the items.
func (it Items) DimensionScores() map[Dimension]float64 {
	out := make(map[Dimension]float64, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = Score01(it.Composite(d))
	}
	return out
}

// ToMap renders the item set keyed by canonical names.
func (it Items) ToMap() map[string]int {
	out := make(map[string]int, len(itemFields))
	for _, f := range itemFields {
		out[f.name] = f.get(&it)
	}
	return out
}

func clampItem(v int) int {
	if v < ItemMin {
		return ItemMin
	}
	if v > ItemMax {
		return ItemMax
	}
	return v
}
