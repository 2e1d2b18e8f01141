// Package rcferrors defines the error taxonomy surfaced across the
// component boundaries of the forest (point store, sampler, tree,
// executor).
package rcferrors

import "fmt"

// BadArgument reports a configuration or argument error: wrong dimension,
// wrong-length point, an impossible option combination, or a request on an
// uninitialized forest. The call performs no state mutation.
type BadArgument struct {
	Op  string
	Err error
}

func (e *BadArgument) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: bad argument", e.Op)
	}
	return fmt.Sprintf("%s: bad argument: %v", e.Op, e.Err)
}
func (e *BadArgument) Unwrap() error { return e.Err }

// NewBadArgument builds a BadArgument for op, wrapping msg as its cause.
func NewBadArgument(op, msg string) error {
	return &BadArgument{Op: op, Err: fmt.Errorf("%s", msg)}
}

// OutOfOrder reports a sampler Propose call whose sequence index is
// strictly less than one already observed by that sampler.
type OutOfOrder struct {
	Got, Want uint64
}

func (e *OutOfOrder) Error() string {
	return fmt.Sprintf("sequence index %d is out of order (last seen %d)", e.Got, e.Want)
}

// CapacityExceeded reports that a Point Store add could not find or make a
// free slot, or that a tree arena has no room for another node.
type CapacityExceeded struct {
	Op string
}

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("%s: capacity exceeded", e.Op)
}

// InvalidIndex reports a read of a PointIndex or node address that is
// out-of-range or has been released back to its arena's freelist.
type InvalidIndex struct {
	Op    string
	Index uint32
}

func (e *InvalidIndex) Error() string {
	return fmt.Sprintf("%s: invalid index %d", e.Op, e.Index)
}

// NotFound reports a tree Delete whose descent did not reach the requested
// PointIndex.
type NotFound struct {
	Op    string
	Index uint32
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s: index %d not found", e.Op, e.Index)
}

// InvalidState reports an operation attempted while the component is in a
// state that forbids it, e.g. a traverse concurrent with an update on the
// same tree.
type InvalidState struct {
	Op  string
	Err error
}

func (e *InvalidState) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: invalid state", e.Op)
	}
	return fmt.Sprintf("%s: invalid state: %v", e.Op, e.Err)
}
func (e *InvalidState) Unwrap() error { return e.Err }

// CorruptData reports that a packed binary encoding (lib/rcfio) is
// truncated, carries a bad magic/version header, or disagrees with its own
// internal length prefixes.
type CorruptData struct {
	Op  string
	Err error
}

func (e *CorruptData) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: corrupt data", e.Op)
	}
	return fmt.Sprintf("%s: corrupt data: %v", e.Op, e.Err)
}
func (e *CorruptData) Unwrap() error { return e.Err }

// NewCorruptData builds a CorruptData for op, wrapping err as its cause.
func NewCorruptData(op string, err error) error {
	return &CorruptData{Op: op, Err: err}
}
