package rcfvisitor

import (
	"fmt"
	"math"
)

// BinaryAccumulator is ensemble mode 1 of spec.md §4.D: fold every per-tree
// result left-to-right through combine, then apply finish once at the end
// (typically an average or a 1-of-N scaling).
type BinaryAccumulator[R any] struct {
	acc     R
	n       int
	combine func(acc, next R) R
	finish  func(acc R, n int) R
}

// NewBinaryAccumulator returns an accumulator seeded at zero.
func NewBinaryAccumulator[R any](zero R, combine func(acc, next R) R, finish func(acc R, n int) R) *BinaryAccumulator[R] {
	return &BinaryAccumulator[R]{acc: zero, combine: combine, finish: finish}
}

// Add folds one more per-tree result into the accumulator.
func (a *BinaryAccumulator[R]) Add(next R) {
	a.acc = a.combine(a.acc, next)
	a.n++
}

// Result applies finish to the folded state.
func (a *BinaryAccumulator[R]) Result() R {
	return a.finish(a.acc, a.n)
}

// Collector is ensemble mode 2 of spec.md §4.D: feed every per-tree result
// to a user-supplied fold over arbitrary accumulator state S, with no
// built-in combine/finish split.
type Collector[R any, S any] struct {
	state S
	fold  func(state S, next R) S
}

// NewCollector returns a collector seeded at initial.
func NewCollector[R any, S any](initial S, fold func(state S, next R) S) *Collector[R, S] {
	return &Collector[R, S]{state: initial, fold: fold}
}

// Add folds one more per-tree result into the collector's state.
func (c *Collector[R, S]) Add(next R) {
	c.state = c.fold(c.state, next)
}

// State returns the collector's current accumulated state.
func (c *Collector[R, S]) State() S {
	return c.state
}

// convergenceZThreshold bounds how far a newly accepted value may sit from
// the running mean, in running standard deviations, and still count as a
// witness of stability. Exceeding it resets the witness count, since the
// running target has visibly moved and must re-earn confidence.
const convergenceZThreshold = 1.0

// convergingWitness is the converging accumulator's tallying state, the
// same "small named struct with a String for diagnostics" shape
// lib/btrfsutil/scan.go's scanStats uses to track a device scan's running
// totals, scoped here to a running mean/variance (Welford's algorithm) and
// a witness count instead of a byte tally.
type convergingWitness struct {
	accepted  int
	witnesses int
	mean      float64
	m2        float64
}

func (w convergingWitness) stdDev() float64 {
	if w.accepted < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.accepted-1))
}

func (w convergingWitness) String() string {
	return fmt.Sprintf("accepted=%d witnesses=%d mean=%.6g stddev=%.6g", w.accepted, w.witnesses, w.mean, w.stdDev())
}

// observe folds one more accepted value into the running mean/variance and
// re-evaluates the one-sided witness test against the pre-update mean and
// standard deviation.
func (w *convergingWitness) observe(value float64) {
	priorMean, priorStd := w.mean, w.stdDev()
	w.accepted++
	delta := value - w.mean
	w.mean += delta / float64(w.accepted)
	w.m2 += delta * (value - w.mean)

	if w.accepted <= 2 {
		return
	}
	if priorStd == 0 || math.Abs(value-priorMean)/priorStd <= convergenceZThreshold {
		w.witnesses++
	} else {
		w.witnesses = 0
	}
}

// ConvergingConfig controls ensemble mode 3's convergence test (spec.md
// §4.D).
type ConvergingConfig struct {
	// Precision gates convergence: witnesses must exceed 1/Precision.
	Precision float64
	// MinValuesAccepted is the minimum number of per-tree results folded
	// in before convergence can be signaled.
	MinValuesAccepted int
	// MaxValuesAccepted caps how many per-tree results are ever folded
	// in, converged or not.
	MaxValuesAccepted int
}

// ConvergingAccumulator is ensemble mode 3 of spec.md §4.D: results arrive
// in batches (one per round of workerCount parallel traversals); after
// each batch it re-evaluates whether enough consecutive values have
// stayed within convergenceZThreshold standard deviations of the running
// mean to call the estimate stable, short-circuiting remaining traversals.
type ConvergingAccumulator[R any] struct {
	cfg     ConvergingConfig
	toFloat func(acc R) float64
	combine func(acc, next R, n int) R

	acc       R
	witness   convergingWitness
	converged bool
}

// NewConvergingAccumulator returns an accumulator seeded at zero. combine
// folds the n-th accepted value (1-based) into acc; toFloat extracts the
// scalar the witness test tracks from the current accumulated state.
func NewConvergingAccumulator[R any](cfg ConvergingConfig, zero R, toFloat func(acc R) float64, combine func(acc, next R, n int) R) *ConvergingAccumulator[R] {
	return &ConvergingAccumulator[R]{cfg: cfg, toFloat: toFloat, combine: combine, acc: zero}
}

// Converged reports whether the accumulator has signaled convergence.
func (c *ConvergingAccumulator[R]) Converged() bool {
	return c.converged
}

// Accepted returns how many per-tree results have been folded in so far.
func (c *ConvergingAccumulator[R]) Accepted() int {
	return c.witness.accepted
}

// AddBatch folds one batch of per-tree results in order, stopping early if
// MaxValuesAccepted is reached mid-batch, then re-evaluates convergence.
// Calling AddBatch after convergence (or after MaxValuesAccepted) is a
// no-op, letting the forest executor skip remaining traversals.
func (c *ConvergingAccumulator[R]) AddBatch(batch []R) {
	if c.converged || c.witness.accepted >= c.cfg.MaxValuesAccepted {
		return
	}
	for _, next := range batch {
		if c.witness.accepted >= c.cfg.MaxValuesAccepted {
			break
		}
		c.acc = c.combine(c.acc, next, c.witness.accepted+1)
		c.witness.observe(c.toFloat(c.acc))
	}
	if c.witness.accepted >= c.cfg.MinValuesAccepted && float64(c.witness.witnesses) > 1/c.cfg.Precision {
		c.converged = true
	}
}

// Result returns the current accumulated state, converged or not.
func (c *ConvergingAccumulator[R]) Result() R {
	return c.acc
}
