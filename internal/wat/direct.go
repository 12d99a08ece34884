package wat

import (
	"fmt"
	"strconv"
	"strings"
)

// Policy tunes how tolerant direct-score normalization is: MinValid is the
// number of items a parsed mapping must supply before the remainder are
// neutral-filled.
type Policy struct {
	MinValid int
}

var (
	// PolicyGeneral accepts partially matched sets from free-form model
	// output, the pipeline's default.
	PolicyGeneral = Policy{MinValid: 10}
	// PolicyStrict accepts only a fully specified item set.
	PolicyStrict = Policy{MinValid: 13}
)

// Result is a scored item set plus derived values.
type Result struct {
	Items        Items
	Total        int
	Scores       map[Dimension]float64
	Descriptions map[Dimension]string
}

// NewResult derives totals, composites and descriptions from an item set.
// Model-supplied description text in descs wins over the templated fallback.
func NewResult(it Items, descs map[Dimension]string) Result {
	scores := it.DimensionScores()
	out := Result{
		Items:        it,
		Total:        it.Total(),
		Scores:       scores,
		Descriptions: make(map[Dimension]string, len(Dimensions)),
	}
	for _, d := range Dimensions {
		if t := strings.TrimSpace(descs[d]); t != "" {
			out.Descriptions[d] = t
			continue
		}
		out.Descriptions[d] = Describe(d, scores[d])
	}
	return out
}

// FromParsed normalizes a parsed model mapping into a canonical item set.
// Item names match case-insensitively, exact first and then with separators
// collapsed; values are coerced to integers and range-checked. When at least
// policy.MinValid items are valid the remainder are filled with the neutral
// value; otherwise the mapping is rejected.
func FromParsed(m map[string]any, policy Policy) (Result, error) {
	matched := map[string]int{}
	for key, raw := range m {
		f := matchField(key)
		if f == nil {
			continue
		}
		v, ok := coerceScore(raw)
		if !ok || v < ItemMin || v > ItemMax {
			continue
		}
		if _, dup := matched[f.name]; !dup {
			matched[f.name] = v
		}
	}
	if len(matched) < policy.MinValid {
		return Result{}, fmt.Errorf("only %d of %d items valid (minimum %d)", len(matched), len(itemFields), policy.MinValid)
	}

	it := NeutralItems()
	for name, v := range matched {
		fieldByName(name).set(&it, v)
	}
	if it.Degenerate() {
		return Result{}, fmt.Errorf("degenerate item set: all values %d", it.Size)
	}
	return NewResult(it, extractDescriptions(m)), nil
}

func matchField(key string) *fieldDef {
	k := strings.ToLower(strings.TrimSpace(key))
	for i := range itemFields {
		if k == itemFields[i].name {
			return &itemFields[i]
		}
	}
	collapsed := collapseSeparators(k)
	for i := range itemFields {
		if collapsed == collapseSeparators(itemFields[i].name) {
			return &itemFields[i]
		}
		for _, alias := range itemFields[i].aliases {
			if collapsed == collapseSeparators(alias) {
				return &itemFields[i]
			}
		}
	}
	return nil
}

func collapseSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, s)
}

func coerceScore(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		// Reject non-integral floats rather than silently rounding.
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	case map[string]any:
		// Tolerate {"score": N} wrappers.
		if inner, ok := v["score"]; ok {
			return coerceScore(inner)
		}
	}
	return 0, false
}

// extractDescriptions pulls any per-dimension narrative the model supplied,
// accepting both "<dim>_description" and a bare "<dim>" string key.
func extractDescriptions(m map[string]any) map[Dimension]string {
	out := map[Dimension]string{}
	for _, d := range Dimensions {
		if s, ok := m[string(d)+"_description"].(string); ok {
			out[d] = s
			continue
		}
		if s, ok := m[string(d)].(string); ok {
			out[d] = s
		}
	}
	return out
}
