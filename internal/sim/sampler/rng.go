package sampler

import "math"

// Source is a deterministic pseudo-random generator (splitmix64 core).
// The same seed always yields the same stream, across processes and
// platforms, which is what makes run fingerprints reproducible. We do not
// use math/rand here because the audit trail must not depend on the
// standard library keeping its generator stable.
type Source struct {
	state uint64

	// Box-Muller produces normals in pairs; the spare is cached so the
	// draw order stays fixed.
	hasSpare bool
	spare    float64
}

// NewSource creates a generator seeded with the given value.
func NewSource(seed int64) *Source {
	return &Source{state: uint64(seed)}
}

// Uint64 returns the next 64-bit value in the stream.
func (s *Source) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a uniform draw in [0, 1) with 53 bits of precision.
func (s *Source) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Norm returns a standard normal draw via Box-Muller.
func (s *Source) Norm() float64 {
	if s.hasSpare {
		s.hasSpare = false
		return s.spare
	}
	var u1, u2 float64
	for {
		u1 = s.Float64()
		if u1 > 0 {
			break
		}
	}
	u2 = s.Float64()
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	s.spare = r * math.Sin(theta)
	s.hasSpare = true
	return r * math.Cos(theta)
}
