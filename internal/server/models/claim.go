package models

import "time"

type ClaimOutcome string

const (
	OutcomeActive    ClaimOutcome = "active"
	OutcomeReturned  ClaimOutcome = "returned"
	OutcomeCancelled ClaimOutcome = "cancelled"
)

// Claim is one borrow episode. It is immutable once its outcome leaves
// OutcomeActive.
type Claim struct {
	ID         string
	ItemID     string
	BorrowerID string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	Outcome    ClaimOutcome
}

func (c *Claim) Active() bool { return c.Outcome == OutcomeActive }
