package fem

import "math"

// spring is a nonlinear zero-length element attached between a pile node and fixed ground.
type spring interface {
	// response returns the spring force and tangent stiffness at displacement u
	response(u float64) (force, tangent float64)
}

// hyperbolicSpring is a t-z shaft spring: F = u / (1/Ke + |u|/Fult).
type hyperbolicSpring struct {
	ke   float64 // initial stiffness, N/m
	fult float64 // asymptotic force, N
}

func (s hyperbolicSpring) response(u float64) (float64, float64) {
	if s.ke <= 0 || s.fult <= 0 {
		return 0, 0
	}
	a := 1 / s.ke
	denom := a + math.Abs(u)/s.fult
	return u / denom, a / (denom * denom)
}

// bilinearSpring is the base spring: stiffness k1 up to the yield settlement, k2 beyond.
type bilinearSpring struct {
	k1    float64
	k2    float64
	yield float64
}

func (s bilinearSpring) response(u float64) (float64, float64) {
	mag := math.Abs(u)
	sign := 1.0
	if u < 0 {
		sign = -1
	}
	if mag <= s.yield {
		return s.k1 * u, s.k1
	}
	return sign * (s.k1*s.yield + s.k2*(mag-s.yield)), s.k2
}

// nodeSprings groups the springs attached to one pile node.
type nodeSprings struct {
	shaft spring
	tip   spring // base spring, set on the toe node only
}

func (n nodeSprings) response(u float64) (shaft, tip, tangent float64) {
	var fs, ks float64
	if n.shaft != nil {
		fs, ks = n.shaft.response(u)
	}
	if n.tip == nil {
		return fs, 0, ks
	}
	ft, kt := n.tip.response(u)
	return fs, ft, ks + kt
}
