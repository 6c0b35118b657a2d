package segments

// Reconstruct returns the intervals of [0, total] that are not covered by silences.
//
// Silences must be ordered by start. The running end is set to the end of each
// silence in turn, so overlapping or touching silences merge into one skipped
// region. Gaps no longer than MinSegmentDuration are dropped.
// A non-positive total yields nil.
func Reconstruct(silences []Interval, total float64) []Interval {
	if total <= 0 {
		return nil
	}

	var keeps []Interval
	prevEnd := 0.0
	for _, s := range silences {
		if prevEnd < s.Start && s.Start-prevEnd > MinSegmentDuration {
			keeps = append(keeps, Interval{Start: prevEnd, End: s.Start})
		}
		prevEnd = s.End
	}

	if prevEnd < total && total-prevEnd > MinSegmentDuration {
		keeps = append(keeps, Interval{Start: prevEnd, End: total})
	}
	return keeps
}
