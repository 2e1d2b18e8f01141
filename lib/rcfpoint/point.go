// Package rcfpoint holds the small value types shared by every forest
// component: the point vector itself, its axis-aligned bounding box, and
// the directional (low/high) vector produced by attribution queries.
package rcfpoint

import "golang.org/x/exp/constraints"

// Precision is the element type of a forest's points: spec.md's "32- or
// 64-bit" element precision, forest-wide and immutable (§6 `precision`
// option).
type Precision interface {
	constraints.Float
}

// Point is a fixed-length vector of real numbers (spec.md §3).
type Point[P Precision] []P

// Dims returns the dimension of the point.
func (p Point[P]) Dims() int { return len(p) }

// Equal reports whether p and q have the same dimension and elements.
func (p Point[P]) Equal(q Point[P]) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of p.
func (p Point[P]) Clone() Point[P] {
	out := make(Point[P], len(p))
	copy(out, p)
	return out
}

// ToFloat64 widens p to a []float64, the precision used for all score and
// distance arithmetic regardless of the forest's storage precision.
func (p Point[P]) ToFloat64() []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = float64(v)
	}
	return out
}

// BoundingBox is the per-dimension [min, max] interval tuple of the points
// beneath a tree node (spec.md §3, GLOSSARY).
type BoundingBox[P Precision] struct {
	Min, Max []P
}

// NewBoundingBox returns the degenerate box containing exactly p.
func NewBoundingBox[P Precision](p Point[P]) BoundingBox[P] {
	lo := make([]P, len(p))
	hi := make([]P, len(p))
	copy(lo, p)
	copy(hi, p)
	return BoundingBox[P]{Min: lo, Max: hi}
}

// Dims returns the dimension of the box.
func (b BoundingBox[P]) Dims() int { return len(b.Min) }

// Contains reports whether p falls within b on every dimension.
func (b BoundingBox[P]) Contains(p Point[P]) bool {
	for d := range b.Min {
		if p[d] < b.Min[d] || p[d] > b.Max[d] {
			return false
		}
	}
	return true
}

// Range returns the span of b on dimension d.
func (b BoundingBox[P]) Range(d int) P { return b.Max[d] - b.Min[d] }

// SumRanges returns the sum of per-dimension spans, the `R` of spec.md's
// Random Cut algorithm.
func (b BoundingBox[P]) SumRanges() float64 {
	var total float64
	for d := range b.Min {
		total += float64(b.Max[d] - b.Min[d])
	}
	return total
}

// Union returns the smallest box containing both b and o.
func (b BoundingBox[P]) Union(o BoundingBox[P]) BoundingBox[P] {
	lo := make([]P, len(b.Min))
	hi := make([]P, len(b.Min))
	for d := range b.Min {
		lo[d] = min(b.Min[d], o.Min[d])
		hi[d] = max(b.Max[d], o.Max[d])
	}
	return BoundingBox[P]{Min: lo, Max: hi}
}

// Merge returns the smallest box containing b and the single point p.
func (b BoundingBox[P]) Merge(p Point[P]) BoundingBox[P] {
	lo := make([]P, len(b.Min))
	hi := make([]P, len(b.Min))
	for d := range b.Min {
		lo[d] = min(b.Min[d], p[d])
		hi[d] = max(b.Max[d], p[d])
	}
	return BoundingBox[P]{Min: lo, Max: hi}
}

// Clone returns an independent copy of b.
func (b BoundingBox[P]) Clone() BoundingBox[P] {
	lo := make([]P, len(b.Min))
	hi := make([]P, len(b.Max))
	copy(lo, b.Min)
	copy(hi, b.Max)
	return BoundingBox[P]{Min: lo, Max: hi}
}

// DirectionalVector is the per-dimension, directional decomposition of an
// anomaly score: `low` holds the contribution from the query point falling
// below the in-sample range on that dimension, `high` from falling above it
// (spec.md §4.D, §6, GLOSSARY). Arithmetic is always float64 regardless of
// the forest's storage Precision.
type DirectionalVector struct {
	Low, High []float64
}

// NewDirectionalVector returns a zeroed vector of dimension d.
func NewDirectionalVector(d int) DirectionalVector {
	return DirectionalVector{Low: make([]float64, d), High: make([]float64, d)}
}

// Sum returns Σ(low+high), which must equal the scalar anomaly score within
// floating tolerance (spec.md testable property 8).
func (v DirectionalVector) Sum() float64 {
	var total float64
	for d := range v.Low {
		total += v.Low[d] + v.High[d]
	}
	return total
}

// Add accumulates o into v in place.
func (v DirectionalVector) Add(o DirectionalVector) {
	for d := range v.Low {
		v.Low[d] += o.Low[d]
		v.High[d] += o.High[d]
	}
}

// Scale multiplies every entry of v by s in place.
func (v DirectionalVector) Scale(s float64) {
	for d := range v.Low {
		v.Low[d] *= s
		v.High[d] *= s
	}
}
