package rcfforest

import (
	"runtime"

	"github.com/aws/random-cut-forest-go/lib/rcferrors"
)

// Config bundles the builder options of spec.md §6: every option is
// validated once at construction, and an unset field takes the listed
// default rather than a zero value.
type Config struct {
	// Dimensions is the fixed point dimension D. Required, >= 1.
	Dimensions int

	// ShingleSize triggers overlap-aware Point Store behavior. Default 1
	// (no shingling).
	ShingleSize int

	// NumberOfTrees is the count of (sampler, tree, point-store)
	// components. Default 100.
	NumberOfTrees int

	// SampleSize is each sampler's reservoir capacity. Default 256.
	SampleSize int

	// OutputAfter: query methods return zero values until more than
	// OutputAfter updates have been seen. Default SampleSize/4.
	OutputAfter int

	// TimeDecay (lambda) is the sampler decay rate; larger biases toward
	// recency. Default 0 (no decay).
	TimeDecay float64

	// InitialAcceptFraction governs each sampler's warm-up acceptance
	// rule (spec.md §4.B). Default 1 (always accept during warm-up).
	InitialAcceptFraction float64

	// StoreSequenceIndexes, if true, has leaves carry the multiset of
	// sequence indices that landed on them.
	StoreSequenceIndexes bool

	// CenterOfMassEnabled, if true, has internal nodes carry a running
	// point-sum for center-of-mass queries.
	CenterOfMassEnabled bool

	// BoundingBoxCacheFraction is the fraction of internal nodes with
	// cached bounding boxes, in [0,1]. Default 1 (cache every node). A nil
	// pointer means "unset, take the default"; an explicit 0 (e.g. via
	// Frac(0)) is a distinct, legitimate configuration — spec.md §9 open
	// question 2 is specifically about running with caching fully
	// disabled — so unlike most other options here, this one can't use
	// the zero value to mean "unset."
	BoundingBoxCacheFraction *float64

	// ParallelExecutionEnabled selects the parallel executor.
	ParallelExecutionEnabled bool

	// ThreadPoolSize bounds the parallel executor's worker count.
	// Default runtime.GOMAXPROCS(0). Update and the other queries ignore
	// it unless ParallelExecutionEnabled; AnomalyScoreConverging always
	// uses it as its batch size.
	ThreadPoolSize int

	// RandomSeed seeds every RNG deterministically: full forest state is
	// a pure function of (config, seed, input sequence).
	RandomSeed int64
}

// Frac returns a pointer to f, for use as Config.BoundingBoxCacheFraction
// (the one Config field whose zero value is a legitimate, distinct
// setting rather than "unset").
func Frac(f float64) *float64 { return &f }

// withDefaults returns a copy of cfg with every unset field replaced by its
// listed default.
//
// Precision (spec.md §6: float32 or float64) has no field here: Go's
// generics pick the Point Store's element type at compile time via the
// type parameter on New, not at runtime through a config value, so
// instantiating New[float32] or New[float64] is the whole of that option.
func (cfg Config) withDefaults() Config {
	out := cfg
	if out.ShingleSize == 0 {
		out.ShingleSize = 1
	}
	if out.NumberOfTrees == 0 {
		out.NumberOfTrees = 100
	}
	if out.SampleSize == 0 {
		out.SampleSize = 256
	}
	if out.OutputAfter == 0 {
		out.OutputAfter = out.SampleSize / 4
	}
	if out.InitialAcceptFraction == 0 {
		out.InitialAcceptFraction = 1
	}
	if out.BoundingBoxCacheFraction == nil {
		out.BoundingBoxCacheFraction = Frac(1)
	}
	if out.ThreadPoolSize == 0 {
		out.ThreadPoolSize = runtime.GOMAXPROCS(0)
	}
	return out
}

func (cfg Config) validate() error {
	const op = "rcfforest.New"
	switch {
	case cfg.Dimensions < 1:
		return rcferrors.NewBadArgument(op, "dimensions must be >= 1")
	case cfg.ShingleSize < 0:
		return rcferrors.NewBadArgument(op, "shingleSize must be >= 0")
	case cfg.ShingleSize > 0 && cfg.Dimensions%cfg.ShingleSize != 0:
		return rcferrors.NewBadArgument(op, "dimensions must be a multiple of shingleSize")
	case cfg.NumberOfTrees < 1:
		return rcferrors.NewBadArgument(op, "numberOfTrees must be >= 1")
	case cfg.SampleSize < 1:
		return rcferrors.NewBadArgument(op, "sampleSize must be >= 1")
	case cfg.OutputAfter < 0:
		return rcferrors.NewBadArgument(op, "outputAfter must be >= 0")
	case cfg.TimeDecay < 0:
		return rcferrors.NewBadArgument(op, "timeDecay must be >= 0")
	case cfg.InitialAcceptFraction < 0 || cfg.InitialAcceptFraction > 1:
		return rcferrors.NewBadArgument(op, "initialAcceptFraction must be in [0,1]")
	case *cfg.BoundingBoxCacheFraction < 0 || *cfg.BoundingBoxCacheFraction > 1:
		return rcferrors.NewBadArgument(op, "boundingBoxCacheFraction must be in [0,1]")
	case cfg.ParallelExecutionEnabled && cfg.ThreadPoolSize < 0:
		return rcferrors.NewBadArgument(op, "threadPoolSize must be >= 0")
	}
	return nil
}
