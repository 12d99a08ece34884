package wat

import (
	"fmt"
	"sort"
)

func errDegenerate(it Items) error {
	return fmt.Errorf("degenerate item set: all values %d", it.Size)
}

// Aggregate combines multiple independent scoring attempts into one item
// set via the per-item median, then derives totals and composites from the
// aggregate. Totals are never averaged directly. Degenerate candidates are
// rejected outright; the result is order-independent in its inputs.
func Aggregate(candidates []Items) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("no candidates to aggregate")
	}
	for _, c := range candidates {
		if c.Degenerate() {
			return Result{}, errDegenerate(c)
		}
		if err := c.Validate(); err != nil {
			return Result{}, err
		}
	}
	if len(candidates) == 1 {
		return NewResult(candidates[0], nil), nil
	}

	var agg Items
	values := make([]int, len(candidates))
	for _, f := range itemFields {
		for i := range candidates {
			values[i] = f.get(&candidates[i])
		}
		f.set(&agg, median(values))
	}
	return NewResult(agg, nil), nil
}

// median of integer item scores; for even counts the lower-middle average
// is rounded half-up so the result stays in [1,5].
func median(values []int) int {
	s := make([]int, len(values))
	copy(s, values)
	sort.Ints(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2] + 1) / 2
}
