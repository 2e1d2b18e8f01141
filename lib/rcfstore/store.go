// Package rcfstore implements the Point Store (spec.md §4.A): an arena
// that interns fixed-dimension points behind small stable integer indices,
// with explicit reference-count lifetime and shingle-aware compression.
package rcfstore

import (
	"sync"

	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
)

// PointIndex is an opaque handle into a PointStore's arena, stable for as
// long as its reference count stays above zero (spec.md §3).
type PointIndex uint32

type slot struct {
	offset   int // start offset into buf
	refcount int32
	live     bool
}

// PointStore is the arena described in spec.md §4.A / §3: a flat numeric
// buffer sized capacity*dimensions, a parallel refcount array, a freelist,
// and shingle metadata.
//
// Consecutive Add calls whose shared (dimensions-baseDimension) elements
// match are stored once, overlapping physical storage, the same
// sliding-window trick a shingled time series needs; this is why the
// backing buffer is an append-only log rather than capacity-many
// independent dimensions-sized records. When the log is full, Add repacks
// the live points into a fresh buffer (indices unchanged) before appending.
type PointStore[P rcfpoint.Precision] struct {
	mu sync.RWMutex

	dims     int
	baseDims int // dims / shingleSize
	capacity int // max number of live PointIndex slots
	physCap  int // max length of buf

	buf       []P
	lastIndex PointIndex // most recently Add-ed slot, for overlap detection
	lastValid bool

	slots    []slot
	freelist []PointIndex
}

// New builds a PointStore for `capacity` points of `dims` dimensions. If
// shingleSize > 1, dims must be evenly divisible by it; the quotient is the
// store's baseDimension, the number of genuinely new elements a shingled
// Add appends.
func New[P rcfpoint.Precision](capacity, dims, shingleSize int) (*PointStore[P], error) {
	if dims <= 0 {
		return nil, rcferrors.NewBadArgument("rcfstore.New", "dimensions must be >= 1")
	}
	if capacity <= 0 {
		return nil, rcferrors.NewBadArgument("rcfstore.New", "capacity must be >= 1")
	}
	if shingleSize <= 0 {
		shingleSize = 1
	}
	if dims%shingleSize != 0 {
		return nil, rcferrors.NewBadArgument("rcfstore.New", "dimensions must be a multiple of shingleSize")
	}
	return &PointStore[P]{
		dims:     dims,
		baseDims: dims / shingleSize,
		capacity: capacity,
		physCap:  capacity * dims,
		buf:      make([]P, 0, capacity*dims),
		slots:    make([]slot, 0, capacity),
	}, nil
}

// GetDimensions returns D.
func (s *PointStore[P]) GetDimensions() int { return s.dims }

// GetCapacity returns the maximum number of live points.
func (s *PointStore[P]) GetCapacity() int { return s.capacity }

// Size returns the number of currently live points.
func (s *PointStore[P]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sl := range s.slots {
		if sl.live {
			n++
		}
	}
	return n
}

// Add interns point, returning a PointIndex with refcount 0; the caller
// must call IncrementRefCount if it intends to keep the index alive.
func (s *PointStore[P]) Add(point rcfpoint.Point[P]) (PointIndex, error) {
	if len(point) != s.dims {
		return 0, rcferrors.NewBadArgument("rcfstore.Add", "point dimension mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	overlap := s.overlapsLocked(point)
	appendLen := s.dims
	var offset int
	if overlap {
		offset = s.slots[s.lastIndex].offset + s.baseDims
		appendLen = s.baseDims
	} else {
		offset = len(s.buf)
	}
	if offset+s.dims > s.physCap {
		// Repack the live points, keeping every PointIndex and changing
		// only offsets, so storage of released slots becomes usable again.
		packed := make([]P, 0, s.physCap)
		for i, sl := range s.slots {
			if sl.live {
				s.slots[i].offset = len(packed)
				packed = append(packed, s.buf[sl.offset:sl.offset+s.dims]...)
			}
		}
		s.buf = packed
		overlap, appendLen, offset = false, s.dims, len(s.buf)
	}
	if offset+s.dims > s.physCap {
		return 0, &rcferrors.CapacityExceeded{Op: "rcfstore.Add"}
	}

	idx, err := s.allocSlotLocked()
	if err != nil {
		return 0, err
	}

	if overlap {
		s.buf = append(s.buf, point[s.dims-appendLen:]...)
	} else {
		s.buf = append(s.buf, point...)
	}
	s.slots[idx] = slot{offset: offset, refcount: 0, live: true}
	s.lastIndex = idx
	s.lastValid = true

	return idx, nil
}

// overlapsLocked reports whether point's first (dims-baseDims) elements
// equal the previously-added point's last (dims-baseDims) elements, the
// condition under which Add may overlap storage (spec.md §4.A).
func (s *PointStore[P]) overlapsLocked(point rcfpoint.Point[P]) bool {
	if s.baseDims == s.dims || !s.lastValid {
		return false
	}
	prev := s.slots[s.lastIndex]
	if !prev.live {
		return false
	}
	shared := s.dims - s.baseDims
	prevTail := s.buf[prev.offset+s.baseDims : prev.offset+s.dims]
	for i := 0; i < shared; i++ {
		if prevTail[i] != point[i] {
			return false
		}
	}
	return true
}

func (s *PointStore[P]) allocSlotLocked() (PointIndex, error) {
	if n := len(s.freelist); n > 0 {
		idx := s.freelist[n-1]
		s.freelist = s.freelist[:n-1]
		return idx, nil
	}
	if len(s.slots) >= s.capacity {
		return 0, &rcferrors.CapacityExceeded{Op: "rcfstore.Add"}
	}
	s.slots = append(s.slots, slot{})
	return PointIndex(len(s.slots) - 1), nil
}

// IncrementRefCount bumps the reference count of i.
func (s *PointStore[P]) IncrementRefCount(i PointIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.checkLocked(i, "rcfstore.IncrementRefCount")
	if err != nil {
		return err
	}
	s.slots[i] = slot{offset: sl.offset, refcount: sl.refcount + 1, live: true}
	return nil
}

// DecrementRefCount drops the reference count of i, releasing the slot to
// the freelist if it reaches zero. Returns the new count.
func (s *PointStore[P]) DecrementRefCount(i PointIndex) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.checkLocked(i, "rcfstore.DecrementRefCount")
	if err != nil {
		return 0, err
	}
	newCount := sl.refcount - 1
	if newCount < 0 {
		return 0, rcferrors.NewBadArgument("rcfstore.DecrementRefCount", "refcount already zero")
	}
	if newCount == 0 {
		s.slots[i] = slot{live: false}
		s.freelist = append(s.freelist, i)
		return 0, nil
	}
	s.slots[i] = slot{offset: sl.offset, refcount: newCount, live: true}
	return newCount, nil
}

func (s *PointStore[P]) checkLocked(i PointIndex, op string) (slot, error) {
	if int(i) < 0 || int(i) >= len(s.slots) || !s.slots[i].live {
		return slot{}, &rcferrors.InvalidIndex{Op: op, Index: uint32(i)}
	}
	return s.slots[i], nil
}

// Get returns a read-only view of the point at i.
func (s *PointStore[P]) Get(i PointIndex) (rcfpoint.Point[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, err := s.checkLocked(i, "rcfstore.Get")
	if err != nil {
		return nil, err
	}
	return rcfpoint.Point[P](s.buf[sl.offset : sl.offset+s.dims : sl.offset+s.dims]), nil
}

// PointEquals reports whether the point at i equals q by value.
func (s *PointStore[P]) PointEquals(i PointIndex, q rcfpoint.Point[P]) (bool, error) {
	p, err := s.Get(i)
	if err != nil {
		return false, err
	}
	return p.Equal(q), nil
}

// Release returns i directly to the freelist. It is the forest executor's
// counterpart to Add for a provisional index that, after proposing it to
// every component's sampler, ended up referenced by none of them (spec.md
// §4.E update protocol step 3): unlike DecrementRefCount, it requires the
// refcount already be exactly zero rather than bringing it there.
func (s *PointStore[P]) Release(i PointIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, err := s.checkLocked(i, "rcfstore.Release")
	if err != nil {
		return err
	}
	if sl.refcount != 0 {
		return rcferrors.NewBadArgument("rcfstore.Release", "refcount is not zero")
	}
	s.slots[i] = slot{live: false}
	s.freelist = append(s.freelist, i)
	return nil
}

// RefCount returns the current reference count of i, for diagnostics and
// property tests (spec.md testable property 4).
func (s *PointStore[P]) RefCount(i PointIndex) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, err := s.checkLocked(i, "rcfstore.RefCount")
	if err != nil {
		return 0, err
	}
	return sl.refcount, nil
}

// TotalRefCount sums the refcounts of every live slot (spec.md invariant
// "sum(refcount) <= numberOfTrees*sampleSize + O(1)", testable property 4).
func (s *PointStore[P]) TotalRefCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, sl := range s.slots {
		if sl.live {
			total += int64(sl.refcount)
		}
	}
	return total
}

// Compact relocates every live point to a freshly packed, non-overlapping
// backing buffer and returns the old-index -> new-index remap so
// collaborators (samplers, trees) can fix up their references.
//
// Compaction de-shingles storage: it rebuilds each live point's full D-wide
// representation independently, trading back the overlap savings for a
// simple, always-correct relocation. This is acceptable because Compact is
// explicitly optional (spec.md §4.A) and is expected to run rarely, not on
// the streaming hot path.
func (s *PointStore[P]) Compact() map[PointIndex]PointIndex {
	s.mu.Lock()
	defer s.mu.Unlock()

	remap := make(map[PointIndex]PointIndex)
	newBuf := make([]P, 0, s.physCap)
	newSlots := make([]slot, 0, s.capacity)
	for old, sl := range s.slots {
		if !sl.live {
			continue
		}
		newIdx := PointIndex(len(newSlots))
		newOffset := len(newBuf)
		newBuf = append(newBuf, s.buf[sl.offset:sl.offset+s.dims]...)
		newSlots = append(newSlots, slot{offset: newOffset, refcount: sl.refcount, live: true})
		remap[PointIndex(old)] = newIdx
	}
	s.buf = newBuf
	s.slots = newSlots
	s.freelist = nil
	s.lastValid = false
	return remap
}
