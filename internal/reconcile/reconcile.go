// Package reconcile decides whether an incoming order snapshot replaces the
// one currently displayed. The diff is deliberately coarse: order lists for
// a single courier are tens of entries at most, so whole-list replacement is
// cheaper than a correct per-item patch and removes aliasing bugs outright.
package reconcile

import "riderSync/models"

// Reconcile merges incoming into current with minimal churn.
//
// If nothing observable differs, the exact current reference is returned and
// changed is false, so downstream consumers see no redundant notification.
// On any difference the entire incoming list is accepted and returned as a
// fresh allocation with no element aliasing either input.
func Reconcile(current, incoming models.Snapshot) (models.Snapshot, bool) {
	if len(incoming) != len(current) {
		return incoming.Clone(), true
	}
	byID := current.ByID()
	for i := range incoming {
		cur, ok := byID[incoming[i].ID]
		if !ok {
			return incoming.Clone(), true
		}
		if cur.Status != incoming[i].Status || !cur.UpdatedAt.Equal(incoming[i].UpdatedAt) {
			return incoming.Clone(), true
		}
	}
	return current, false
}
