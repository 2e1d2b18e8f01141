// Package rcfsampler implements the time-decayed weighted reservoir
// described in spec.md §4.B: an exponential-family A-Res sample of
// PointIndex values, kept as a max-priority heap by weight so the
// highest-weight (least likely to survive) entry can always be found and
// evicted in O(log sampleSize).
package rcfsampler

import (
	"container/heap"
	"math"

	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfrand"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

// SampledEntry is one member of the reservoir.
type SampledEntry struct {
	PointIndex    rcfstore.PointIndex
	Weight        float64
	SequenceIndex uint64
}

// ProposalDecision is the result of Propose: whether the submitted sequence
// index would be accepted into the reservoir, and at what cost.
type ProposalDecision struct {
	Accept  bool
	Weight  float64
	Evicted *SampledEntry // non-nil only when Accept and the reservoir is full
}

// Sampler is a single tree's reservoir. It is not safe for concurrent use;
// the forest executor serializes updates per tree.
type Sampler struct {
	capacity              int
	timeDecay             float64
	initialAcceptFraction float64

	rng *rcfrand.Source

	entries heapSlice
	byIndex map[rcfstore.PointIndex]int // PointIndex -> position in entries, for ForEach/lookups

	lastSeq      uint64
	haveLastSeq  bool
	pendingValid bool
	pending      ProposalDecision
	pendingSeq   uint64
}

// Config bundles the construction parameters of a Sampler.
type Config struct {
	Capacity              int
	TimeDecay             float64
	InitialAcceptFraction float64
	Rand                  *rcfrand.Source
}

// New builds an empty Sampler.
func New(cfg Config) (*Sampler, error) {
	if cfg.Capacity <= 0 {
		return nil, rcferrors.NewBadArgument("rcfsampler.New", "capacity must be >= 1")
	}
	if cfg.TimeDecay < 0 {
		return nil, rcferrors.NewBadArgument("rcfsampler.New", "timeDecay must be >= 0")
	}
	if cfg.InitialAcceptFraction <= 0 {
		return nil, rcferrors.NewBadArgument("rcfsampler.New", "initialAcceptFraction must be > 0")
	}
	if cfg.Rand == nil {
		return nil, rcferrors.NewBadArgument("rcfsampler.New", "Rand must not be nil")
	}
	return &Sampler{
		capacity:              cfg.Capacity,
		timeDecay:             cfg.TimeDecay,
		initialAcceptFraction: cfg.InitialAcceptFraction,
		rng:                   cfg.Rand,
		entries:               make(heapSlice, 0, cfg.Capacity),
		byIndex:               make(map[rcfstore.PointIndex]int, cfg.Capacity),
	}, nil
}

// Capacity returns sampleSize.
func (s *Sampler) Capacity() int { return s.capacity }

// Size returns the number of entries currently held.
func (s *Sampler) Size() int { return len(s.entries) }

// weight computes w(s) = log(-log(u)) - timeDecay*seq (spec.md §4.B).
func (s *Sampler) weight(seq uint64) float64 {
	u := s.rng.Float64()
	for u <= 0 {
		u = s.rng.Float64()
	}
	return math.Log(-math.Log(u)) - s.timeDecay*float64(seq)
}

// acceptProbability implements the warm-up rule, valid only while the
// reservoir isn't yet full: every point is accepted if
// initialAcceptFraction >= 1.0; otherwise the probability is
// initialAcceptFraction*(1+size)/capacity, growing linearly with size up to
// initialAcceptFraction for the last free slot (spec.md §4.B). Once full,
// acceptance depends on the weight comparison against the current maximum
// instead, not on this function.
func (s *Sampler) acceptProbability() float64 {
	if s.initialAcceptFraction >= 1 {
		return 1
	}
	p := s.initialAcceptFraction * float64(1+len(s.entries)) / float64(s.capacity)
	if p > 1 {
		p = 1
	}
	return p
}

// Propose reports whether seq would be accepted, without mutating the
// reservoir. seq must be >= every seq previously passed to Propose on this
// sampler, or Propose fails with OutOfOrder.
func (s *Sampler) Propose(seq uint64) (ProposalDecision, error) {
	if s.haveLastSeq && seq < s.lastSeq {
		return ProposalDecision{}, &rcferrors.OutOfOrder{Got: seq, Want: s.lastSeq}
	}
	s.lastSeq = seq
	s.haveLastSeq = true

	w := s.weight(seq)

	var decision ProposalDecision
	switch {
	case len(s.entries) < s.capacity:
		if s.rng.Float64() < s.acceptProbability() {
			decision = ProposalDecision{Accept: true, Weight: w}
		} else {
			decision = ProposalDecision{Accept: false}
		}
	case w < s.entries[0].Weight:
		evicted := s.entries[0]
		decision = ProposalDecision{Accept: true, Weight: w, Evicted: &evicted}
	default:
		decision = ProposalDecision{Accept: false}
	}

	s.pending = decision
	s.pendingSeq = seq
	s.pendingValid = true
	return decision, nil
}

// Commit follows an accepting Propose, inserting pointIndex at the weight
// computed by that Propose call (and evicting the entry it named, if any).
// It is a BadArgument to call Commit without a matching pending accept.
func (s *Sampler) Commit(pointIndex rcfstore.PointIndex) (*SampledEntry, error) {
	if !s.pendingValid || !s.pending.Accept {
		return nil, rcferrors.NewBadArgument("rcfsampler.Commit", "no accepting proposal is pending")
	}
	decision := s.pending
	seq := s.pendingSeq
	s.pendingValid = false

	var evicted *SampledEntry
	if decision.Evicted != nil {
		evicted = s.popMaxAndRemoveIndex()
	}

	entry := SampledEntry{PointIndex: pointIndex, Weight: decision.Weight, SequenceIndex: seq}
	heap.Push(&s.entries, entry)
	s.reindex()

	return evicted, nil
}

// popMaxAndRemoveIndex pops the max-weight entry (the current root, since
// entries is a max-heap) and drops its byIndex bookkeeping.
func (s *Sampler) popMaxAndRemoveIndex() *SampledEntry {
	top := heap.Pop(&s.entries).(SampledEntry)
	delete(s.byIndex, top.PointIndex)
	s.reindex()
	return &top
}

// reindex rebuilds byIndex after a heap mutation. The reservoir's capacity
// is small (sampleSize, typically a few hundred), so a full rebuild per
// mutation is simpler than threading swap callbacks through container/heap
// and is not on the forest's hot allocation path.
func (s *Sampler) reindex() {
	for i, e := range s.entries {
		s.byIndex[e.PointIndex] = i
	}
}

// ForEach calls fn once for every entry currently in the reservoir, in
// unspecified order.
func (s *Sampler) ForEach(fn func(SampledEntry)) {
	for _, e := range s.entries {
		fn(e)
	}
}

// Contains reports whether idx is currently sampled.
func (s *Sampler) Contains(idx rcfstore.PointIndex) bool {
	_, ok := s.byIndex[idx]
	return ok
}

// heapSlice implements container/heap.Interface as a max-heap over Weight,
// so the reservoir's eviction candidate is always at index 0.
type heapSlice []SampledEntry

func (h heapSlice) Len() int            { return len(h) }
func (h heapSlice) Less(i, j int) bool  { return h[i].Weight > h[j].Weight }
func (h heapSlice) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x interface{}) { *h = append(*h, x.(SampledEntry)) }
func (h *heapSlice) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
