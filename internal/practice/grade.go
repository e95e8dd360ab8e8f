package practice

import (
	"slices"

	"github.com/pavelanni/drill/internal/model"
)

// Grade reports whether selected is exactly the set of correct choice indices of q.
// Order does not matter; a partial or padded selection is incorrect.
func Grade(q model.Question, selected []int) bool {
	got := slices.Clone(selected)
	want := slices.Clone(q.Answers)
	slices.Sort(got)
	slices.Sort(want)
	return slices.Equal(got, want)
}
