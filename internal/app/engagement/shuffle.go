package engagement

import "math/rand"

// Shuffle returns a uniformly permuted copy of list (Fisher–Yates).
// The input is never modified. A nil r uses the shared, goroutine-safe
// package source.
func Shuffle[T any](list []T, r *rand.Rand) []T {
	out := make([]T, len(list))
	copy(out, list)

	intn := rand.Intn
	if r != nil {
		intn = r.Intn
	}
	for i := len(out) - 1; i > 0; i-- {
		j := intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
