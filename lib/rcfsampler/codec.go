package rcfsampler

import (
	"container/heap"
	"encoding/binary"
	"math"

	"github.com/aws/random-cut-forest-go/lib/binstruct/binutil"
	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

// MarshalBinary packs the reservoir's entries and warm-up bookkeeping
// (spec.md §6/§8 property 5). The in-flight Propose/Commit handshake
// (pending, pendingSeq) is deliberately not persisted: a snapshot is a
// point between update cycles, never mid-handshake, so there is nothing
// meaningful to resume there. rng is not persisted either — see
// lib/rcfio's doc comment for why continuing the random stream across a
// reload isn't part of this round-trip's guarantee.
func (s *Sampler) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32+len(s.entries)*20)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.capacity))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(s.timeDecay))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(s.initialAcceptFraction))
	buf = binary.LittleEndian.AppendUint64(buf, s.lastSeq)
	buf = append(buf, boolByte(s.haveLastSeq))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.entries)))
	for _, e := range s.entries {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.PointIndex))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.Weight))
		buf = binary.LittleEndian.AppendUint64(buf, e.SequenceIndex)
	}
	return buf, nil
}

// UnmarshalBinary restores a Sampler from the encoding MarshalBinary
// produces, leaving rng untouched (the caller constructs the Sampler with
// New, which wires rng, before unmarshaling data into it).
func (s *Sampler) UnmarshalBinary(dat []byte) (int, error) {
	const op = "rcfsampler.UnmarshalBinary"
	orig := dat

	if err := binutil.NeedNBytes(dat, 29); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	s.capacity = int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	s.timeDecay = math.Float64frombits(binary.LittleEndian.Uint64(dat))
	dat = dat[8:]
	s.initialAcceptFraction = math.Float64frombits(binary.LittleEndian.Uint64(dat))
	dat = dat[8:]
	s.lastSeq = binary.LittleEndian.Uint64(dat)
	dat = dat[8:]
	s.haveLastSeq = dat[0] != 0
	dat = dat[1:]

	if err := binutil.NeedNBytes(dat, 4); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	n := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]

	entries := make(heapSlice, n)
	for i := range entries {
		if err := binutil.NeedNBytes(dat, 20); err != nil {
			return 0, rcferrors.NewCorruptData(op, err)
		}
		entries[i] = SampledEntry{
			PointIndex:    rcfstore.PointIndex(binary.LittleEndian.Uint32(dat)),
			Weight:        math.Float64frombits(binary.LittleEndian.Uint64(dat[4:])),
			SequenceIndex: binary.LittleEndian.Uint64(dat[12:]),
		}
		dat = dat[20:]
	}

	s.entries = entries
	heap.Init(&s.entries)
	s.byIndex = make(map[rcfstore.PointIndex]int, len(entries))
	s.reindex()
	s.pendingValid = false

	return len(orig) - len(dat), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
