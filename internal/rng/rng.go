// Package rng provides the randomness source used by every game engine.
// Outcomes are sampled from crypto/rand so shuffles, draws and crash
// points cannot be predicted from previous results.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
)

// Source is the sampling interface consumed by the engines. Tests inject
// a deterministic implementation; production code uses Crypto.
type Source interface {
	// Intn returns a uniform integer in [0, n). n must be > 0.
	Intn(n int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

// Crypto samples from crypto/rand. The zero value is ready to use.
type Crypto struct{}

// NewCrypto returns a cryptographically strong Source.
func NewCrypto() *Crypto {
	return &Crypto{}
}

// Intn returns a uniform integer in [0, n) using rejection sampling to
// avoid modulo bias.
func (c *Crypto) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("rng: Intn called with n=%d", n))
	}
	max := ^uint64(0) - (^uint64(0) % uint64(n))
	for {
		v := c.uint64()
		if v < max {
			return int(v % uint64(n))
		}
	}
}

// Float64 returns a uniform float in [0, 1) with 53 bits of precision.
func (c *Crypto) Float64() float64 {
	return float64(c.uint64()>>11) / (1 << 53)
}

func (c *Crypto) uint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform entropy source is
		// broken; continuing with weak randomness is not an option.
		panic(fmt.Sprintf("rng: crypto/rand unavailable: %v", err))
	}
	return binary.BigEndian.Uint64(buf[:])
}

// Seeded wraps math/rand behind the Source interface for deterministic
// replay in tests.
type Seeded struct {
	r *mrand.Rand
}

// NewSeeded returns a deterministic Source for the given seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{r: mrand.New(mrand.NewSource(seed))}
}

func (s *Seeded) Intn(n int) int   { return s.r.Intn(n) }
func (s *Seeded) Float64() float64 { return s.r.Float64() }

// Shuffle performs an unbiased in-place shuffle: scanning from the end,
// each position is swapped with a uniformly chosen earlier-or-equal one.
func Shuffle(src Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		swap(i, j)
	}
}

// SampleDistinct draws k distinct integers from [0, n) uniformly without
// replacement.
func SampleDistinct(src Source, n, k int) []int {
	if k > n {
		panic(fmt.Sprintf("rng: cannot sample %d distinct values from %d", k, n))
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	Shuffle(src, n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx[:k]
}
