package utils

import (
	"math/rand"
	"time"
)

// RandSource is a seeded random number generator. It is not safe for
// concurrent use; callers own one source per run.
type RandSource struct {
	seed int64
	rng  *rand.Rand
}

// NewRandSource creates a new random source with the given seed.
// A zero seed picks one from the clock; Seed reports the value actually used.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with
func (r *RandSource) Seed() int64 {
	return r.seed
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// BernoulliBool returns true with probability p, false otherwise
func (r *RandSource) BernoulliBool(p float64) bool {
	return r.rng.Float64() < p
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	return min + r.rng.Float64()*(max-min)
}

// DistinctExcluding draws k distinct indices from [0, n) that differ from exclude.
// It panics when fewer than k candidates exist.
func (r *RandSource) DistinctExcluding(n, k, exclude int) []int {
	avail := n
	if exclude >= 0 && exclude < n {
		avail--
	}
	if k > avail {
		panic("utils: not enough indices to draw from")
	}
	out := make([]int, 0, k)
	for len(out) < k {
		idx := r.rng.Intn(n)
		if idx == exclude || containsInt(out, idx) {
			continue
		}
		out = append(out, idx)
	}
	return out
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
