package wat

import "math"

// SuspectTotal marks estimated item sets that are likely the all-five-worst
// safety-filter artifact. Callers discard estimates at or above it.
const SuspectTotal = 60

// severityFor maps a 0-1 healing score to a 1-5 severity anchor.
func severityFor(score01 float64) int {
	return clampItem(int(math.Round(1 + (1-score01)*4)))
}

// Estimate back-derives a plausible 13-item set from four legacy 0-1
// dimension scores. Each mapped item gets the dimension's severity anchor
// plus a fixed perturbation; the perturbations within a dimension sum to
// zero so the derived composite reproduces the input score ordering. Size
// and depth, which map to no dimension, take the rounded mean severity.
func Estimate(dims map[Dimension]float64) Items {
	sev := map[Dimension]int{}
	sum := 0
	for _, d := range Dimensions {
		v := severityFor(dims[d])
		sev[d] = v
		sum += v
	}
	mean := clampItem(int(math.Round(float64(sum) / float64(len(Dimensions)))))

	var it Items
	it.Size = mean
	it.Depth = mean

	it.NecroticType = sev[DimTissue]
	it.NecroticAmount = clampItem(sev[DimTissue] + 1)
	it.Granulation = clampItem(sev[DimTissue] - 1)

	it.SkinColor = sev[DimInflammation]
	it.Edema = clampItem(sev[DimInflammation] + 1)
	it.Induration = clampItem(sev[DimInflammation] - 1)

	it.ExudateType = sev[DimMoisture]
	it.ExudateAmount = sev[DimMoisture]

	it.Edges = sev[DimEdge]
	it.Undermining = clampItem(sev[DimEdge] - 1)
	it.Epithelialization = clampItem(sev[DimEdge] + 1)

	return it
}

// Suspect reports whether an estimated set should be treated as a scoring
// artifact rather than persisted.
func Suspect(it Items) bool {
	return it.Total() >= SuspectTotal
}
