// Package order computes sibling-scoped task positions. Positions are sparse
// integers spaced by Step so single inserts land between neighbors without
// renumbering the whole column.
package order

// Step is the default spacing between adjacent positions.
const Step = 1000

// Update pairs an id with its recomputed position.
type Update struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// Reindex assigns index*Step to each id in its given order.
func Reindex(orderedIDs []string) []Update {
	updates := make([]Update, len(orderedIDs))
	for i, id := range orderedIDs {
		updates[i] = Update{ID: id, Position: i * Step}
	}
	return updates
}

// Append returns the position for a new last element given the current
// maximum position. hasAny distinguishes an empty column from one whose
// maximum happens to be zero.
func Append(maxPosition int, hasAny bool) int {
	if !hasAny {
		return 0
	}
	return maxPosition + Step
}

// Between returns the midpoint position between two neighbors. ok is false
// when the gap is exhausted (no integer strictly between them), in which case
// the caller renumbers the column.
func Between(before, after int) (int, bool) {
	if after-before < 2 {
		return 0, false
	}
	return before + (after-before)/2, true
}
