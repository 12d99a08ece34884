package wat

// Templated per-dimension descriptions keyed by score buckets, index 0-9
// covering the 0.0-0.9 range starts. Used when the model supplies no
// narrative of its own.

var tissueLadder = [10]string{
	"necrotic eschar",
	"mostly necrotic",
	"thick slough",
	"moderate slough",
	"slough with early granulation",
	"patchy granulation",
	"predominantly granulating",
	"healthy granulation",
	"robust granulation with epithelial islands",
	"mostly epithelialized",
}

var inflammationLadder = [10]string{
	"severe infection with cellulitis",
	"severe local infection",
	"moderate infection",
	"critical colonization",
	"significant periwound erythema",
	"moderate erythema",
	"mild periwound erythema",
	"minimal inflammation",
	"trace erythema",
	"near-normal periwound skin",
}

var moistureLadder = [10]string{
	"desiccated",
	"very dry",
	"dry wound bed",
	"excessive moisture with maceration",
	"moderately excessive moisture",
	"slightly imbalanced",
	"nearly balanced",
	"adequately moist",
	"well-balanced moisture",
	"optimal moisture",
}

var edgeLadder = [10]string{
	"undermined with tunneling",
	"significant undermining",
	"rolled epibole edges",
	"thickened non-advancing edges",
	"attached but non-advancing",
	"minimally advancing",
	"slow contraction",
	"moderate contraction",
	"actively contracting",
	"strong epithelial advancement",
}

// Describe returns the templated clinical description for a dimension at a
// given 0-1 healing score.
func Describe(d Dimension, score01 float64) string {
	idx := int(score01 * 10)
	if idx < 0 {
		idx = 0
	}
	if idx > 9 {
		idx = 9
	}
	switch d {
	case DimTissue:
		return tissueLadder[idx]
	case DimInflammation:
		return inflammationLadder[idx]
	case DimMoisture:
		return moistureLadder[idx]
	case DimEdge:
		return edgeLadder[idx]
	}
	return "unknown"
}
