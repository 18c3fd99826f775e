// Package reconcile merges freshly fetched snapshots into retained state
// without regressing what is already displayed.
package reconcile

import "gridwatch/internal/model"

// MergeGrid overlays next onto prev slot by slot. Known fields in next
// replace retained ones; unknown fields keep the retained value. With no
// retained snapshot next is accepted as is. changed is false when the merged
// result is identical to prev.
func MergeGrid(prev *model.GridSnapshot, next model.GridSnapshot) (model.GridSnapshot, bool) {
	if prev == nil {
		return next, true
	}
	merged := *prev
	for i := range merged.Rows {
		dst, src := &merged.Rows[i], next.Rows[i]
		for j := range dst.Minutes {
			dst.Minutes[j] = src.Minutes[j].Or(dst.Minutes[j])
		}
		dst.RT = src.RT.Or(dst.RT)
		dst.DA = src.DA.Or(dst.DA)
		dst.Spread = src.Spread.Or(dst.Spread)
	}
	return merged, merged != *prev
}

// MergeLedger keeps prev when next carries the same dispatch timestamp;
// otherwise next replaces it, sorted ascending by dispatch value.
// An empty next never replaces a retained snapshot.
func MergeLedger(prev *model.LedgerSnapshot, next model.LedgerSnapshot) (model.LedgerSnapshot, bool) {
	if prev != nil && (next.Empty() || prev.Timestamp == next.Timestamp) {
		return prev.Clone(), false
	}
	out := next.Clone()
	model.SortLedger(out.Entries)
	if prev != nil && prev.Equal(out) {
		return prev.Clone(), false
	}
	return out, true
}

// MergeConstraints replaces prev wholesale unless next is structurally
// identical, compared record by record in order.
func MergeConstraints(prev *model.ConstraintsSnapshot, next model.ConstraintsSnapshot) (model.ConstraintsSnapshot, bool) {
	if prev != nil && prev.Equal(next) {
		return prev.Clone(), false
	}
	return next.Clone(), true
}
