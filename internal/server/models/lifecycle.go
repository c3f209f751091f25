package models

// Event is something that happens to an item during its lifecycle.
type Event string

const (
	EventClaim  Event = "claim"
	EventReturn Event = "return"
	EventCancel Event = "cancel"
	EventRetire Event = "retire"
)

type transitionKey struct {
	from  ItemState
	event Event
}

var transitions = map[transitionKey]ItemState{
	{StateAvailable, EventClaim}:  StateClaimed,
	{StateClaimed, EventReturn}:   StateAvailable,
	{StateClaimed, EventCancel}:   StateAvailable,
	{StateAvailable, EventRetire}: StateRetired,
}

// Transition returns the state reached from `from` on event e.
// Retired has no outgoing transitions.
func Transition(from ItemState, e Event) (ItemState, bool) {
	to, ok := transitions[transitionKey{from, e}]
	return to, ok
}

// SourceState returns the single state from which `to` can be entered.
// Every target in the lifecycle has exactly one source.
func SourceState(to ItemState) (ItemState, bool) {
	switch to {
	case StateClaimed, StateRetired:
		return StateAvailable, true
	case StateAvailable:
		return StateClaimed, true
	}
	return "", false
}

// ValidHolder reports whether holder is consistent with state: an item has a
// holder exactly when it is claimed.
func ValidHolder(state ItemState, holder *string) bool {
	if state == StateClaimed {
		return holder != nil && *holder != ""
	}
	return holder == nil
}
