package util

import "math/rand/v2"

// IntN returns a pseudo-random number in [0, n). It panics if n <= 0.
type IntN func(n int) int

// DefaultIntN is backed by math/rand/v2.
var DefaultIntN IntN = rand.IntN

// Pick returns a uniformly random element of items using intn.
// It reports false for an empty slice. A nil intn uses DefaultIntN.
func Pick[T any](items []T, intn IntN) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	if intn == nil {
		intn = DefaultIntN
	}
	return items[intn(len(items))], true
}
