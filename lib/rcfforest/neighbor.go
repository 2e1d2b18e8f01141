package rcfforest

import (
	"fmt"
	"strings"
)

// fmtFloats renders a coordinate vector as a map key for merging candidate
// neighbors that landed on the same sampled point in more than one tree
// (spec.md §6 "merged across duplicates"). Exact equality is what duplicate
// detection needs here: every copy of a given sample point was stored and
// retrieved as the same float bits, so no tolerance is required.
func fmtFloats(p []float64) string {
	var b strings.Builder
	for i, v := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}

// mergeSeqIndexes unions two leaves' sequence-index lists without
// duplicating entries already present in existing.
func mergeSeqIndexes(existing, next []uint64) []uint64 {
	if len(next) == 0 {
		return existing
	}
	seen := make(map[uint64]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	out := existing
	for _, s := range next {
		if !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}
