// Package rcfio is the packed binary persistence lib/rcfforest exposes
// (spec.md §6/§8 properties 5-7, scenario S4): SaveForest and LoadForest
// frame a Forest's own MarshalBinary/UnmarshalBinary pair (the latter
// returning bytes consumed, binstruct.Unmarshaler-style) behind a fixed
// magic/version header, the same way
// lib/jsonutil/binstruct.go's Binary[T] bridge frames a binstruct-encoded
// value behind its own hex-string envelope.
//
// This is an exposure of internal state, not a migratable file format:
// LoadForest requires the exact cfg SaveForest's Forest was built with
// (cfg itself isn't part of the encoding — see lib/rcfforest's
// UnmarshalBinary doc comment), and a round trip does not reproduce the
// original forest's future random draws bit-for-bit, only its current
// observable state (persisted sampler weights and tree structure, not RNG
// stream position).
package rcfio

import (
	"encoding/binary"
	"io"

	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfforest"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
)

// magic identifies an rcfio-encoded forest snapshot; version lets a future
// incompatible encoding refuse to be mistaken for this one.
const (
	magic   uint32 = 0x52_43_46_31 // "RCF1"
	version uint32 = 1
)

// SaveForest writes f's full persisted state to w (spec.md §6 "persisted
// state").
func SaveForest[P rcfpoint.Precision](w io.Writer, f *rcfforest.Forest[P]) error {
	body, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	header := make([]byte, 0, 8)
	header = binary.LittleEndian.AppendUint32(header, magic)
	header = binary.LittleEndian.AppendUint32(header, version)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// LoadForest reads a snapshot written by SaveForest into a freshly built
// Forest for cfg, which must match the cfg the snapshot was saved with
// (same Dimensions, NumberOfTrees, SampleSize, and shingling — anything
// that changes component count or point layout).
func LoadForest[P rcfpoint.Precision](r io.Reader, cfg rcfforest.Config) (*rcfforest.Forest[P], error) {
	const op = "rcfio.LoadForest"

	dat, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(dat) < 8 {
		return nil, rcferrors.NewCorruptData(op, errTruncatedHeader)
	}
	gotMagic := binary.LittleEndian.Uint32(dat)
	gotVersion := binary.LittleEndian.Uint32(dat[4:])
	if gotMagic != magic {
		return nil, rcferrors.NewCorruptData(op, errBadMagic)
	}
	if gotVersion != version {
		return nil, rcferrors.NewCorruptData(op, errUnsupportedVersion(gotVersion))
	}

	f, err := rcfforest.New[P](cfg)
	if err != nil {
		return nil, err
	}
	if _, err := f.UnmarshalBinary(dat[8:]); err != nil {
		return nil, err
	}
	return f, nil
}
