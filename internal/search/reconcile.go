package search

import "sort"

// ReconciliationPlan is the {upserts, delete_ids} pair spec.md §4.9 computes
// for one guild: source \ index and index \ source, respectively, both
// deterministically sorted.
type ReconciliationPlan struct {
	Upserts   []Document
	DeleteIDs []string
}

// ComputeReconciliation diffs the source-of-truth document set against the
// set of message IDs currently indexed for the guild. Upserts are sorted by
// MessageID; deletes are sorted lexicographically, per spec.md §8's
// "Reconciliation determinism" property.
func ComputeReconciliation(source []Document, indexedIDs []string) ReconciliationPlan {
	indexed := make(map[string]struct{}, len(indexedIDs))
	for _, id := range indexedIDs {
		indexed[id] = struct{}{}
	}

	sourceIDs := make(map[string]struct{}, len(source))
	for _, d := range source {
		sourceIDs[d.MessageID] = struct{}{}
	}

	var upserts []Document
	for _, d := range source {
		if _, ok := indexed[d.MessageID]; !ok {
			upserts = append(upserts, d)
		}
	}
	sort.Slice(upserts, func(i, j int) bool { return upserts[i].MessageID < upserts[j].MessageID })

	var deletes []string
	for _, id := range indexedIDs {
		if _, ok := sourceIDs[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	sort.Strings(deletes)

	return ReconciliationPlan{Upserts: upserts, DeleteIDs: deletes}
}
