package variation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coterie-labs/experiment-console/internal/model"
)

func vars(weights ...int) []model.Variation {
	out := make([]model.Variation, len(weights))
	for i, w := range weights {
		out[i] = model.Variation{ID: "v", Name: "V", Weight: w}
	}
	return out
}

func weightsOf(vs []model.Variation) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = v.Weight
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []int
	}{
		{name: "already_100", in: []int{50, 50}, want: []int{50, 50}},
		{name: "three_way_exact", in: []int{20, 30, 50}, want: []int{20, 30, 50}},
		{name: "scale_up", in: []int{25, 25}, want: []int{50, 50}},
		{name: "scale_down", in: []int{100, 100}, want: []int{50, 50}},
		{name: "rounding_residual_on_last", in: []int{1, 1, 1}, want: []int{33, 33, 34}},
		{name: "negative_clamped", in: []int{-10, 50, 50}, want: []int{0, 50, 50}},
		{name: "all_zero_even_split", in: []int{0, 0, 0}, want: []int{33, 33, 34}},
		{name: "all_negative", in: []int{-5, -5}, want: []int{50, 50}},
		{name: "single_variation", in: []int{30}, want: []int{100}},
		{name: "single_zero", in: []int{0}, want: []int{100}},
		{name: "uneven_scale", in: []int{10, 20, 40}, want: []int{14, 29, 57}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(vars(tt.in...))
			assert.Equal(t, tt.want, weightsOf(got))
			assert.Equal(t, 100, Sum(got))
		})
	}
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize([]model.Variation{}))
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := vars(25, 25)
	_ = Normalize(in)
	assert.Equal(t, []int{25, 25}, weightsOf(in))
}

func TestNormalizeInvariants(t *testing.T) {
	// Property: for arbitrary integer weights (negative, zero, huge) across
	// 1-10 variations, every output weight is >= 0 and the sum is exactly 100.
	cases := [][]int{
		{7}, {0, 0}, {-3, -7}, {1, 2, 3, 4}, {99, 1, 1},
		{1000, 1}, {1, 1000}, {-50, 200, 3}, {13, 13, 13, 13, 13, 13, 13},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{500, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	}

	for _, ws := range cases {
		got := Normalize(vars(ws...))
		require.Equal(t, 100, Sum(got), "input %v", ws)
		for _, v := range got {
			assert.GreaterOrEqual(t, v.Weight, 0, "input %v", ws)
		}

		// Idempotence: a normalized list passes through unchanged.
		again := Normalize(got)
		assert.Equal(t, weightsOf(got), weightsOf(again), "input %v", ws)
	}
}
