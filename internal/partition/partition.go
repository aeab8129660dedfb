// Package partition splits a length-sorted group of work items into
// contiguous sub-batches. Autoregressive batch generation runs for as
// long as its longest member, so shorter items waste compute on padding;
// pre-sorting plus ratio-bounded splitting keeps each sub-batch
// length-homogeneous while the item cap and cumulative-length budget keep
// it inside the memory ceiling.
package partition

// Range is a half-open [Start, End) index interval into the sorted group.
type Range struct {
	Start int
	End   int
}

// Len returns the number of items in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Options bound a single split pass. MaxItems zero means uncapped.
type Options struct {
	// Enabled turns sub-batching off entirely when false; the whole
	// group then runs as one batch.
	Enabled bool
	// MaxItems caps the item count per sub-batch. Callers pass the
	// smaller of the memory estimate and any explicit configured cap.
	MaxItems int
	// MinGroupSize gates the ratio rule: a group shorter than this is
	// never split for length disparity alone.
	MinGroupSize int
	// MaxRatio is the allowed longest/shortest length ratio within one
	// sub-batch once MinGroupSize is reached.
	MaxRatio float64
	// MaxCumulativeLength caps the summed length of a sub-batch. This
	// rule ignores MinGroupSize: memory safety outranks parallelism.
	MaxCumulativeLength int
}

// Split scans lengths (sorted ascending) once and returns contiguous
// ranges covering every index in order. Split rules are checked per item
// in priority order: item cap, cumulative length, length ratio. The
// first matching rule wins.
func Split(lengths []int, opts Options) []Range {
	if !opts.Enabled || len(lengths) <= 1 {
		return []Range{{Start: 0, End: len(lengths)}}
	}

	var ranges []Range
	start := 0
	cum := lengths[0]

	for i := 1; i < len(lengths); i++ {
		first := lengths[start]
		if first < 1 {
			first = 1
		}
		cum += lengths[i]

		split := false
		switch {
		case opts.MaxItems > 0 && i-start >= opts.MaxItems:
			split = true
		case opts.MaxCumulativeLength > 0 && cum > opts.MaxCumulativeLength && i-start >= 1:
			split = true
		case i-start >= opts.MinGroupSize:
			if float64(lengths[i]) > opts.MaxRatio*float64(first) {
				split = true
			}
		}

		if split {
			ranges = append(ranges, Range{Start: start, End: i})
			start = i
			cum = lengths[i]
		}
	}

	ranges = append(ranges, Range{Start: start, End: len(lengths)})
	return ranges
}

// EffectiveMaxItems combines the estimator's memory-derived cap with the
// explicit configured cap: the stricter of the two wins. An explicit cap
// of 0 means unset and falls back to the estimate (kept as documented
// behavior).
func EffectiveMaxItems(estimated, explicit int) int {
	if explicit > 0 {
		if estimated > 0 && estimated < explicit {
			return estimated
		}
		return explicit
	}
	return estimated
}
