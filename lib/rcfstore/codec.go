package rcfstore

import (
	"encoding/binary"

	"github.com/aws/random-cut-forest-go/lib/binstruct/binutil"
	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
)

// MarshalBinary packs the arena's live layout: dimensions, the flat point
// buffer, every slot (including dead ones, so indices stay stable across a
// round trip), and the freelist (spec.md §6/§8 property 5). It does not
// implement a versioned wire format; lib/rcfio is the only intended caller.
func (s *PointStore[P]) MarshalBinary() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := make([]byte, 0, 64+len(s.buf)*rcfpoint.ElementSize[P]()+len(s.slots)*9+len(s.freelist)*4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.dims))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.baseDims))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.capacity))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.physCap))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.lastIndex))
	buf = append(buf, boolByte(s.lastValid))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.buf)))
	buf = rcfpoint.AppendElements(buf, s.buf)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.slots)))
	for _, sl := range s.slots {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(sl.offset))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(sl.refcount))
		buf = append(buf, boolByte(sl.live))
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.freelist)))
	for _, idx := range s.freelist {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(idx))
	}

	return buf, nil
}

// UnmarshalBinary restores a PointStore from the encoding MarshalBinary
// produces, overwriting every field. It does not touch any field beyond
// this type's own data (there are none shared with other components), so
// it is safe to call on a PointStore built fresh by New.
func (s *PointStore[P]) UnmarshalBinary(dat []byte) (int, error) {
	const op = "rcfstore.UnmarshalBinary"
	s.mu.Lock()
	defer s.mu.Unlock()

	orig := dat
	if err := binutil.NeedNBytes(dat, 21); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	s.dims = int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	s.baseDims = int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	s.capacity = int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	s.physCap = int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	s.lastIndex = PointIndex(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	s.lastValid = dat[0] != 0
	dat = dat[1:]

	if err := binutil.NeedNBytes(dat, 4); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	bufLen := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	elemBytes := bufLen * rcfpoint.ElementSize[P]()
	if err := binutil.NeedNBytes(dat, elemBytes); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	s.buf, _ = rcfpoint.ReadElements[P](dat, bufLen)
	dat = dat[elemBytes:]

	if err := binutil.NeedNBytes(dat, 4); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	slotsLen := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	slots := make([]slot, slotsLen)
	for i := range slots {
		if err := binutil.NeedNBytes(dat, 9); err != nil {
			return 0, rcferrors.NewCorruptData(op, err)
		}
		slots[i] = slot{
			offset:   int(binary.LittleEndian.Uint32(dat)),
			refcount: int32(binary.LittleEndian.Uint32(dat[4:])),
			live:     dat[8] != 0,
		}
		dat = dat[9:]
	}
	s.slots = slots

	if err := binutil.NeedNBytes(dat, 4); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	freeLen := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	freelist := make([]PointIndex, freeLen)
	for i := range freelist {
		if err := binutil.NeedNBytes(dat, 4); err != nil {
			return 0, rcferrors.NewCorruptData(op, err)
		}
		freelist[i] = PointIndex(binary.LittleEndian.Uint32(dat))
		dat = dat[4:]
	}
	s.freelist = freelist

	return len(orig) - len(dat), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
