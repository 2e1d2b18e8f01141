package rcfpoint

import (
	"encoding/binary"
	"math"
)

// ElementSize returns the encoded width in bytes of one P element, for
// callers (lib/rcfstore, lib/rcftree) that pack slices of P into a packed
// binary encoding (spec.md §6/§8 property 5, "rcfio").
func ElementSize[P Precision]() int {
	var zero P
	if _, ok := any(zero).(float32); ok {
		return 4
	}
	return 8
}

// AppendElement appends the little-endian IEEE-754 encoding of v to buf.
func AppendElement[P Precision](buf []byte, v P) []byte {
	if _, ok := any(v).(float32); ok {
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
	}
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(float64(v)))
}

// ReadElement decodes one P element from the front of dat. The caller must
// have already checked len(dat) >= ElementSize[P]().
func ReadElement[P Precision](dat []byte) P {
	var zero P
	if _, ok := any(zero).(float32); ok {
		return P(math.Float32frombits(binary.LittleEndian.Uint32(dat)))
	}
	return P(math.Float64frombits(binary.LittleEndian.Uint64(dat)))
}

// AppendElements appends every element of s in order.
func AppendElements[P Precision](buf []byte, s []P) []byte {
	for _, v := range s {
		buf = AppendElement(buf, v)
	}
	return buf
}

// ReadElements decodes n consecutive P elements from the front of dat,
// returning the slice and the number of bytes consumed. The caller must
// have already checked len(dat) >= n*ElementSize[P]().
func ReadElements[P Precision](dat []byte, n int) ([]P, int) {
	size := ElementSize[P]()
	out := make([]P, n)
	for i := range out {
		out[i] = ReadElement[P](dat[i*size:])
	}
	return out, n * size
}
