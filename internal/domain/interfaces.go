package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────

// RandomSource draws the wager outcome. Production uses a crypto/rand backed
// source; tests inject a deterministic one.
type RandomSource interface {
	// Intn returns a uniformly distributed integer in [0, n).
	Intn(n int) int
}
