// Package variation implements the traffic-weight normalization used by the
// variation editor and enforced before any experiment write.
package variation

import (
	"math"

	"github.com/coterie-labs/experiment-console/internal/model"
)

// Normalize returns variations with every weight clamped to >= 0 and the
// weights summing to exactly 100. The input slice is not mutated.
//
// When the clamped total is already 100 the weights pass through unchanged.
// Otherwise each weight is scaled by 100/total and rounded, except the last
// variation in list order, which absorbs the rounding residual so the sum
// lands on exactly 100. The residual going to whichever variation happens to
// be last is a deliberate tie-break inherited from the editor; callers that
// care about which arm absorbs it should order accordingly. A total of zero
// distributes floor(100/n) per variation, remainder again on the last.
//
// Normalize is idempotent: Normalize(Normalize(v)) == Normalize(v).
func Normalize(variations []model.Variation) []model.Variation {
	if len(variations) == 0 {
		return nil
	}

	out := make([]model.Variation, len(variations))
	copy(out, variations)

	total := 0
	for i := range out {
		if out[i].Weight < 0 {
			out[i].Weight = 0
		}
		total += out[i].Weight
	}

	if total == 100 {
		return out
	}

	last := len(out) - 1
	if total == 0 {
		even := 100 / len(out)
		for i := range out {
			out[i].Weight = even
		}
		out[last].Weight = 100 - even*last
		return out
	}

	factor := 100 / float64(total)
	running := 0
	for i := 0; i < last; i++ {
		out[i].Weight = int(math.Round(float64(out[i].Weight) * factor))
		running += out[i].Weight
	}
	out[last].Weight = 100 - running

	// With many near-zero weights the rounded prefix can overshoot 100,
	// which would leave the residual negative. Claw the excess back from
	// the preceding variations.
	for i := last - 1; i >= 0 && out[last].Weight < 0; i-- {
		give := min(out[i].Weight, -out[last].Weight)
		out[i].Weight -= give
		out[last].Weight += give
	}
	return out
}

// Sum returns the total weight across variations.
func Sum(variations []model.Variation) int {
	total := 0
	for _, v := range variations {
		total += v.Weight
	}
	return total
}
