// Package credit provides pure functions for pay-per-use credit
// accounting. Credits are consumable units purchased or granted outside
// the monthly quota system; they never reset.
package credit

// Outcome classifies a deduction attempt.
type Outcome string

const (
	OutcomeDeducted     Outcome = "deducted"
	OutcomeInsufficient Outcome = "insufficient_credits"
)

// Deduction is the computed result of spending one credit.
type Deduction struct {
	Outcome         Outcome
	PreviousBalance int64
	NewBalance      int64
}

// Deduct computes the result of spending exactly one credit from the
// given balance. A balance at or below zero is rejected, never clamped:
// the new balance equals the previous one and the outcome reports the
// shortfall. Persisting the new balance atomically is the caller's job.
// This is a PURE function.
func Deduct(balance int64) Deduction {
	if balance <= 0 {
		return Deduction{
			Outcome:         OutcomeInsufficient,
			PreviousBalance: balance,
			NewBalance:      balance,
		}
	}
	return Deduction{
		Outcome:         OutcomeDeducted,
		PreviousBalance: balance,
		NewBalance:      balance - 1,
	}
}

// Grant computes the balance after adding credits. Grants are additive
// on top of whatever balance exists; they never replace it, so applying
// the same grant twice doubles the credits.
// This is a PURE function.
func Grant(balance, credits int64) int64 {
	return balance + credits
}
