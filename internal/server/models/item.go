package models

import "time"

type ItemState string

const (
	StateAvailable ItemState = "available"
	StateClaimed   ItemState = "claimed"
	StateRetired   ItemState = "retired"
)

func (s ItemState) Valid() bool {
	switch s {
	case StateAvailable, StateClaimed, StateRetired:
		return true
	}
	return false
}

type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

// ItemDetails is the owner-supplied description of an item.
type ItemDetails struct {
	Title       string
	Description string
	Category    string
	Condition   Condition
}

// Item is a shareable physical object. OwnerID never changes; State, HolderID
// and Version change together and only through a compare-and-transition.
type Item struct {
	ID      string
	OwnerID string
	ItemDetails
	ImageKey  string
	State     ItemState
	HolderID  *string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Holder returns the current holder or "" when nobody holds the item.
func (i *Item) Holder() string {
	if i.HolderID == nil {
		return ""
	}
	return *i.HolderID
}

// ItemFilter selects items for listing. Zero values mean "any".
type ItemFilter struct {
	OwnerID   string
	State     ItemState
	Category  string
	Condition Condition

	// After is an exclusive id cursor; listing resumes past it.
	After string
	// Limit caps the number of items yielded; 0 means no cap.
	Limit int
	// PageSize is how many rows are fetched per round trip.
	PageSize int
}
