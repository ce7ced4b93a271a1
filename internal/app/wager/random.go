package wager

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"
	"sync"

	"github.com/cashd-network/cashd/internal/domain"
)

// ─── Random Sources ─────────────────────────────────────────────────────────

// CryptoSource draws from crypto/rand. It is the production source.
type CryptoSource struct{}

var _ domain.RandomSource = CryptoSource{}

// Intn returns a uniform integer in [0, n). It panics if n <= 0 or the
// system entropy source fails.
func (CryptoSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("wager: crypto/rand: " + err.Error())
	}
	return int(v.Int64())
}

// SeededSource is a deterministic PCG-backed source. Safe for concurrent use.
type SeededSource struct {
	mu sync.Mutex
	r  *mrand.Rand
}

// NewSeededSource returns a source that yields the same sequence for the
// same seeds.
func NewSeededSource(seed1, seed2 uint64) *SeededSource {
	return &SeededSource{r: mrand.New(mrand.NewPCG(seed1, seed2))}
}

// Intn returns the next value in [0, n).
func (s *SeededSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// SequenceSource replays fixed values in order, wrapping at the end. Each
// value is reduced modulo n.
type SequenceSource struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSequenceSource returns a source replaying values. At least one value is
// required.
func NewSequenceSource(values ...int) *SequenceSource {
	if len(values) == 0 {
		values = []int{0}
	}
	return &SequenceSource{values: values}
}

// Intn returns the next scripted value.
func (s *SequenceSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	return ((v % n) + n) % n
}
