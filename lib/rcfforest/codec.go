package rcfforest

import (
	"encoding/binary"
	"fmt"

	"github.com/aws/random-cut-forest-go/lib/binstruct"
	"github.com/aws/random-cut-forest-go/lib/binstruct/binutil"
	"github.com/aws/random-cut-forest-go/lib/rcferrors"
)

// MarshalBinary packs the shared store once, then every component's
// sampler and tree, plus totalUpdates (spec.md §6/§8 properties 5-7,
// scenario S4). cfg is not part of the encoding: lib/rcfio's LoadForest
// reconstructs the Forest by calling New with the caller-supplied cfg
// first, which wires the store and each component's rng and
// inter-component pointers, and only then unmarshals data into the
// result — the same division of labor MarshalBinary/UnmarshalBinary use
// at the component level.
func (f *Forest[P]) MarshalBinary() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := make([]byte, 0, 1024)
	buf = binary.LittleEndian.AppendUint64(buf, f.totalUpdates)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.components)))

	var err error
	buf, err = appendSection(buf, f.store)
	if err != nil {
		return nil, err
	}

	for _, c := range f.components {
		buf, err = appendSection(buf, c.sampler)
		if err != nil {
			return nil, err
		}
		buf, err = appendSection(buf, c.tree)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// UnmarshalBinary restores the shared store, totalUpdates, and every
// component's data, requiring f already have exactly as many components
// as the encoding does (i.e. f was built by New with the same
// cfg.NumberOfTrees used when MarshalBinary ran).
func (f *Forest[P]) UnmarshalBinary(dat []byte) (int, error) {
	const op = "rcfforest.UnmarshalBinary"
	f.mu.Lock()
	defer f.mu.Unlock()

	orig := dat
	if err := binutil.NeedNBytes(dat, 12); err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}
	totalUpdates := binary.LittleEndian.Uint64(dat)
	dat = dat[8:]
	n := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	if n != len(f.components) {
		return 0, rcferrors.NewCorruptData(op, errComponentCountMismatch(n, len(f.components)))
	}

	var err error
	dat, err = readSection(dat, f.store.UnmarshalBinary)
	if err != nil {
		return 0, rcferrors.NewCorruptData(op, err)
	}

	for _, c := range f.components {
		dat, err = readSection(dat, c.sampler.UnmarshalBinary)
		if err != nil {
			return 0, rcferrors.NewCorruptData(op, err)
		}
		dat, err = readSection(dat, c.tree.UnmarshalBinary)
		if err != nil {
			return 0, rcferrors.NewCorruptData(op, err)
		}
	}

	f.totalUpdates = totalUpdates
	return len(orig) - len(dat), nil
}

func appendSection(buf []byte, m binstruct.Marshaler) ([]byte, error) {
	dat, err := binstruct.Marshal(m)
	if err != nil {
		return nil, err
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(dat)))
	return append(buf, dat...), nil
}

func readSection(dat []byte, unmarshal func([]byte) (int, error)) ([]byte, error) {
	if err := binutil.NeedNBytes(dat, 4); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(dat))
	dat = dat[4:]
	if err := binutil.NeedNBytes(dat, n); err != nil {
		return nil, err
	}
	consumed, err := unmarshal(dat[:n])
	if err != nil {
		return nil, err
	}
	if consumed != n {
		return nil, errSectionLengthMismatch(n, consumed)
	}
	return dat[n:], nil
}

type sectionLengthMismatchError struct{ want, got int }

func errSectionLengthMismatch(want, got int) error { return &sectionLengthMismatchError{want, got} }

func (e *sectionLengthMismatchError) Error() string {
	return fmt.Sprintf("section length prefix (%d) disagrees with bytes consumed by its Unmarshal (%d)", e.want, e.got)
}

type componentCountMismatchError struct{ got, want int }

func errComponentCountMismatch(got, want int) error { return &componentCountMismatchError{got, want} }

func (e *componentCountMismatchError) Error() string {
	return fmt.Sprintf("encoded component count (%d) does not match the forest's NumberOfTrees (%d)", e.got, e.want)
}
