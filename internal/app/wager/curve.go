package wager

// ─── Payout Curve ───────────────────────────────────────────────────────────

// Outcomes is the size of the draw space: outcomes are uniform in [0, 100).
const Outcomes = 100

// MaxTarget is the highest accepted threshold.
const MaxTarget = Outcomes - 1

// bpsScale is one whole multiplier in basis points.
const bpsScale = 10000

// MultiplierBps is the win multiplier for target in basis points of the
// stake. A target T wins with probability (T+1)/100, so the fair multiplier
// is 100/(T+1); the house keeps houseEdgeBps of it. Integer division only
// rounds in the house's favour.
func MultiplierBps(target int, houseEdgeBps int64) int64 {
	return (bpsScale - houseEdgeBps) * Outcomes / int64(target+1)
}

// Payout is what a winning wager of amount on target returns, stake included.
func Payout(amount int64, target int, houseEdgeBps int64) int64 {
	return amount * MultiplierBps(target, houseEdgeBps) / bpsScale
}

// Settle resolves one draw. delta is the change to an ordinary principal's
// balance: payout minus stake on a win, minus the stake on a loss.
func Settle(amount int64, target, outcome int, houseEdgeBps int64) (win bool, payout, delta int64) {
	win = outcome <= target
	if win {
		payout = Payout(amount, target, houseEdgeBps)
	}
	return win, payout, payout - amount
}

// ExpectedReturnBps is the exact expected payout of a one-unit-scaled wager
// on target, in basis points of the stake, over the uniform draw.
func ExpectedReturnBps(target int, houseEdgeBps int64) int64 {
	return int64(target+1) * MultiplierBps(target, houseEdgeBps) / Outcomes
}
