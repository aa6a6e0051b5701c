package batchgroup

import "sort"

// CompositeBatch is one or more Batches fused into a single grouping-sets
// SQL statement: Detail is the most granular grouping (the GROUPING SETS
// anchor), Summaries are the rollups it also answers.
type CompositeBatch struct {
	Detail    *Batch
	Summaries []*Batch
}

// All returns Detail followed by Summaries, the order grouping-sets SQL
// generation emits them in.
func (c *CompositeBatch) All() []*Batch {
	out := make([]*Batch, 0, 1+len(c.Summaries))
	out = append(out, c.Detail)
	return append(out, c.Summaries...)
}

// MergeBatches fuses compatible batches into CompositeBatches. It builds a
// fresh "absorbed" slice rather than mutating batches in place while
// iterating, so a batch already claimed as a summary is never
// double-counted as its own detail anchor.
func MergeBatches(batches []*Batch, cardinality func(col int) int) []*CompositeBatch {
	ordered := append([]*Batch(nil), batches...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].BitKey().Cardinality() > ordered[j].BitKey().Cardinality()
	})

	absorbed := make([]bool, len(ordered))
	var composites []*CompositeBatch
	for i, detail := range ordered {
		if absorbed[i] {
			continue
		}
		absorbed[i] = true
		comp := &CompositeBatch{Detail: detail}
		for j := i + 1; j < len(ordered); j++ {
			if absorbed[j] {
				continue
			}
			if CanBatch(detail, ordered[j], cardinality) {
				comp.Summaries = append(comp.Summaries, ordered[j])
				absorbed[j] = true
			}
		}
		composites = append(composites, comp)
	}
	return composites
}
