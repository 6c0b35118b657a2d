// Package silence turns the silencedetect diagnostic stream of ffmpeg into
// padding-adjusted silence intervals.
package silence

import (
	"regexp"
	"strconv"

	"github.com/gwlsn/trimsilence/internal/segments"
)

// MarkerContractVersion identifies the diagnostic wording the patterns below
// were written against. ffmpeg has printed these markers unchanged since the
// silencedetect filter was added; if that wording ever changes the parser
// silently finds no silence rather than failing.
const MarkerContractVersion = "ffmpeg-silencedetect/1"

var (
	startPattern = regexp.MustCompile(`silence_start:\s*(-?[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?)`)
	endPattern   = regexp.MustCompile(`silence_end:\s*(-?[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?)`)
)

// Parser is a line-fed state machine. It is not safe for concurrent use;
// feed it from the single goroutine reading the engine's output.
type Parser struct {
	padding   float64
	pending   *float64
	intervals []segments.Interval
}

// NewParser creates a parser that shrinks each detected silence by padding
// seconds on both sides.
func NewParser(padding float64) *Parser {
	if padding < 0 {
		padding = 0
	}
	return &Parser{padding: padding}
}

// Feed consumes one diagnostic line and reports whether it emitted an interval.
func (p *Parser) Feed(line string) bool {
	if m := startPattern.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			// ffmpeg can report a slightly negative start for silence at t=0
			if v < 0 {
				v = 0
			}
			p.pending = &v
		}
		return false
	}

	m := endPattern.FindStringSubmatch(line)
	if m == nil || p.pending == nil {
		return false
	}
	end, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return false
	}

	start := *p.pending
	p.pending = nil

	iv := segments.Interval{Start: start + p.padding, End: end - p.padding}
	if iv.Duration() <= segments.MinSegmentDuration {
		return false
	}
	p.intervals = append(p.intervals, iv)
	return true
}

// Intervals returns the silences emitted so far, in arrival order.
// An unterminated silence_start is never included.
func (p *Parser) Intervals() []segments.Interval {
	out := make([]segments.Interval, len(p.intervals))
	copy(out, p.intervals)
	return out
}

// Pending reports whether a silence_start is waiting for its end.
func (p *Parser) Pending() bool {
	return p.pending != nil
}

// Reset clears all state so the parser can be reused for another stream.
func (p *Parser) Reset() {
	p.pending = nil
	p.intervals = nil
}
