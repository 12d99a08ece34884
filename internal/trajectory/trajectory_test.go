package trajectory

import (
	"testing"

	"woundchrono/internal/wat"
)

func dims(v float64) map[wat.Dimension]float64 {
	return map[wat.Dimension]float64{
		wat.DimTissue:       v,
		wat.DimInflammation: v,
		wat.DimMoisture:     v,
		wat.DimEdge:         v,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name           string
		current, prior map[wat.Dimension]float64
		want           Trajectory
	}{
		{"clear improvement", dims(0.7), dims(0.5), Improving},
		{"clear deterioration", dims(0.3), dims(0.5), Deteriorating},
		{"identical", dims(0.5), dims(0.5), Stable},
		{"within threshold up", dims(0.54), dims(0.5), Stable},
		{"within threshold down", dims(0.46), dims(0.5), Stable},
		{"just past threshold", dims(0.5501), dims(0.5), Improving},
		{"no overlap", dims(0.7), map[wat.Dimension]float64{}, Stable},
		{"both empty", map[wat.Dimension]float64{}, nil, Stable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.current, tc.prior); got != tc.want {
				t.Errorf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyPartialOverlap(t *testing.T) {
	current := map[wat.Dimension]float64{
		wat.DimTissue:   0.9,
		wat.DimMoisture: 0.9,
	}
	prior := map[wat.Dimension]float64{
		wat.DimTissue:       0.5,
		wat.DimInflammation: 0.1, // absent in current, must not contribute
	}
	if got := Classify(current, prior); got != Improving {
		t.Errorf("Classify = %s, want improving on the overlapping dimension", got)
	}
}
