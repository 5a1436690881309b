package lottery

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// sample returns k distinct indices drawn uniformly from [0, n). It runs a partial
// Fisher–Yates shuffle, so every k-subset is equally likely and the cost is O(n) in
// memory and O(k) in swaps.
func sample(rng *rand.Rand, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

// newSecureRand seeds a PCG generator from the operating system's entropy source.
// Each draw gets its own generator so concurrent rounds share no state.
func newSecureRand() *rand.Rand {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		panic(err)
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:])))
}
