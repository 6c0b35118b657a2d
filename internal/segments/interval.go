package segments

// MinSegmentDuration is the shortest span, in seconds, worth cutting or keeping.
// Anything at or below it is treated as encoder jitter and discarded.
const MinSegmentDuration = 0.05

// Interval is a half-open time range in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// Valid reports whether the interval has a non-negative start and strictly positive length.
func (i Interval) Valid() bool {
	return i.Start >= 0 && i.End > i.Start
}

// Sum returns the total duration covered by the given intervals.
// Overlaps are counted twice; callers pass non-overlapping sequences.
func Sum(intervals []Interval) float64 {
	var total float64
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}
