package rcftree

import (
	"encoding/binary"
	"math"

	"github.com/aws/random-cut-forest-go/lib/binstruct/binutil"
	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

// MarshalBinary packs the tree's two node arenas, its root, and its mass
// (spec.md §6/§8 property 5). store and rng are runtime references, not
// data, and are not persisted — the caller reattaches them by constructing
// the Tree with New before unmarshaling into it (see lib/rcfio).
func (t *Tree[P]) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.dims))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(t.boundingBoxCacheFraction))
	buf = append(buf, boolByte(t.storeSequenceIndexes), boolByte(t.centerOfMassEnabled))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.root))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.mass))

	buf = marshalLeafArena(buf, t.leaves)
	buf = marshalInternalArena(buf, t.internals, t.dims)

	return buf, nil
}

// UnmarshalBinary restores a Tree's arenas, root, and mass, leaving store
// and rng at whatever the caller already set via New.
func (t *Tree[P]) UnmarshalBinary(dat []byte) (int, error) {
	const op = "rcftree.UnmarshalBinary"
	orig := dat

	if err := binutil.NeedNBytes(dat, 22); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	t.dims = int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	t.boundingBoxCacheFraction = math.Float64frombits(binary.LittleEndian.Uint64(dat))
	dat = dat[8:]
	t.storeSequenceIndexes = dat[0] != 0
	t.centerOfMassEnabled = dat[1] != 0
	dat = dat[2:]
	t.root = NodeRef(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	t.mass = int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]

	leaves, n, err := unmarshalLeafArena(dat)
	if err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	t.leaves = leaves
	dat = dat[n:]

	internals, n, err := unmarshalInternalArena[P](dat, t.dims)
	if err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	t.internals = internals
	dat = dat[n:]

	return len(orig) - len(dat), nil
}

func marshalLeafArena(buf []byte, a arena[leafNode]) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(a.cap))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.slots)))
	for _, l := range a.slots {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(l.parent))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(l.point))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(l.mass))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(l.seqIndexes)))
		for _, seq := range l.seqIndexes {
			buf = binary.LittleEndian.AppendUint64(buf, seq)
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.free)))
	for _, f := range a.free {
		buf = binary.LittleEndian.AppendUint32(buf, f)
	}
	return buf
}

func unmarshalLeafArena(dat []byte) (arena[leafNode], int, error) {
	orig := dat
	if err := binutil.NeedNBytes(dat, 8); err != nil {
		return arena[leafNode]{}, 0, err
	}
	cap := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	slotsLen := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]

	slots := make([]leafNode, slotsLen)
	for i := range slots {
		if err := binutil.NeedNBytes(dat, 16); err != nil {
			return arena[leafNode]{}, 0, err
		}
		parent := NodeRef(binary.LittleEndian.Uint32(dat))
		point := binary.LittleEndian.Uint32(dat[4:])
		mass := int(binary.LittleEndian.Uint32(dat[8:]))
		seqLen := int(binary.LittleEndian.Uint32(dat[12:]))
		dat = dat[16:]

		var seqIndexes []uint64
		if seqLen > 0 {
			if err := binutil.NeedNBytes(dat, seqLen*8); err != nil {
				return arena[leafNode]{}, 0, err
			}
			seqIndexes = make([]uint64, seqLen)
			for j := range seqIndexes {
				seqIndexes[j] = binary.LittleEndian.Uint64(dat[j*8:])
			}
			dat = dat[seqLen*8:]
		}

		slots[i] = leafNode{
			parent:     parent,
			point:      rcfstore.PointIndex(point),
			mass:       mass,
			seqIndexes: seqIndexes,
		}
	}

	if err := binutil.NeedNBytes(dat, 4); err != nil {
		return arena[leafNode]{}, 0, err
	}
	freeLen := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	free := make([]uint32, freeLen)
	for i := range free {
		if err := binutil.NeedNBytes(dat, 4); err != nil {
			return arena[leafNode]{}, 0, err
		}
		free[i] = binary.LittleEndian.Uint32(dat)
		dat = dat[4:]
	}

	return arena[leafNode]{slots: slots, free: free, cap: cap}, len(orig) - len(dat), nil
}

func marshalInternalArena[P Precision](buf []byte, a arena[internalNode[P]], dims int) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(a.cap))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.slots)))
	for _, n := range a.slots {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.parent))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.left))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.right))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.cutDim))
		buf = rcfpoint.AppendElement(buf, n.cutVal)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n.mass))
		// Never-cached and released nodes have no box; write zeros so every
		// node carries the dims-sized box unmarshalInternalArena reads.
		boxMin, boxMax := n.box.Min, n.box.Max
		if len(boxMin) != dims {
			boxMin, boxMax = make([]P, dims), make([]P, dims)
		}
		buf = rcfpoint.AppendElements(buf, boxMin)
		buf = rcfpoint.AppendElements(buf, boxMax)
		buf = append(buf, boolByte(n.boxCached))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(n.comSum)))
		for _, c := range n.comSum {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c))
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.free)))
	for _, f := range a.free {
		buf = binary.LittleEndian.AppendUint32(buf, f)
	}
	return buf
}

func unmarshalInternalArena[P Precision](dat []byte, dims int) (arena[internalNode[P]], int, error) {
	orig := dat
	elemSize := rcfpoint.ElementSize[P]()

	if err := binutil.NeedNBytes(dat, 8); err != nil {
		return arena[internalNode[P]]{}, 0, err
	}
	cap := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	slotsLen := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]

	slots := make([]internalNode[P], slotsLen)
	for i := range slots {
		if err := binutil.NeedNBytes(dat, 16+elemSize); err != nil {
			return arena[internalNode[P]]{}, 0, err
		}
		parent := NodeRef(binary.LittleEndian.Uint32(dat))
		left := NodeRef(binary.LittleEndian.Uint32(dat[4:]))
		right := NodeRef(binary.LittleEndian.Uint32(dat[8:]))
		cutDim := int(binary.LittleEndian.Uint32(dat[12:]))
		dat = dat[16:]
		cutVal := rcfpoint.ReadElement[P](dat)
		dat = dat[elemSize:]

		if err := binutil.NeedNBytes(dat, 4); err != nil {
			return arena[internalNode[P]]{}, 0, err
		}
		mass := int(binary.LittleEndian.Uint32(dat))
		dat = dat[4:]

		if err := binutil.NeedNBytes(dat, 2*dims*elemSize); err != nil {
			return arena[internalNode[P]]{}, 0, err
		}
		boxMin, n := rcfpoint.ReadElements[P](dat, dims)
		dat = dat[n:]
		boxMax, n := rcfpoint.ReadElements[P](dat, dims)
		dat = dat[n:]

		if err := binutil.NeedNBytes(dat, 5); err != nil {
			return arena[internalNode[P]]{}, 0, err
		}
		boxCached := dat[0] != 0
		comLen := int(binary.LittleEndian.Uint32(dat[1:]))
		dat = dat[5:]

		var comSum []float64
		if comLen > 0 {
			if err := binutil.NeedNBytes(dat, comLen*8); err != nil {
				return arena[internalNode[P]]{}, 0, err
			}
			comSum = make([]float64, comLen)
			for j := range comSum {
				comSum[j] = math.Float64frombits(binary.LittleEndian.Uint64(dat[j*8:]))
			}
			dat = dat[comLen*8:]
		}

		slots[i] = internalNode[P]{
			parent:    parent,
			left:      left,
			right:     right,
			cutDim:    cutDim,
			cutVal:    cutVal,
			mass:      mass,
			box:       rcfpoint.BoundingBox[P]{Min: boxMin, Max: boxMax},
			boxCached: boxCached,
			comSum:    comSum,
		}
	}

	if err := binutil.NeedNBytes(dat, 4); err != nil {
		return arena[internalNode[P]]{}, 0, err
	}
	freeLen := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	free := make([]uint32, freeLen)
	for i := range free {
		if err := binutil.NeedNBytes(dat, 4); err != nil {
			return arena[internalNode[P]]{}, 0, err
		}
		free[i] = binary.LittleEndian.Uint32(dat)
		dat = dat[4:]
	}

	return arena[internalNode[P]]{slots: slots, free: free, cap: cap}, len(orig) - len(dat), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
