// Package progress converts the engine's unreliable progress output into a
// monotonic, rate-limited percentage with an ETA.
package progress

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Phase is one of the sequential sub-runs of a job.
type Phase string

const (
	PhaseDetect Phase = "detect"
	PhaseEncode Phase = "encode"
)

// Throttling and ETA tuning.
const (
	DefaultMinInterval = 100 * time.Millisecond
	DefaultMinDelta    = 1.0

	// maxRunningPercent is held until Finish so the UI never shows completion
	// before cleanup has happened.
	maxRunningPercent = 99.0

	etaWarmupPercent = 5.0
	etaWarmupElapsed = 2 * time.Second
)

var (
	timePattern    = regexp.MustCompile(`time=\s*(-?)(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	percentPattern = regexp.MustCompile(`(?:progress|percent)\s*[=:]\s*([0-9]+(?:\.[0-9]+)?)\s*%?`)
)

// Sample is one progress update for the host shell.
type Sample struct {
	Phase   Phase         `json:"phase"`
	Status  string        `json:"status"`
	Percent float64       `json:"percent"`
	ETA     time.Duration `json:"eta"`
}

// Estimator tracks progress for one phase at a time. It is not safe for
// concurrent use; the goroutine reading engine output owns it.
type Estimator struct {
	now         func() time.Time
	minInterval time.Duration
	minDelta    float64

	phase    Phase
	expected float64
	started  time.Time

	percent     float64
	eta         time.Duration
	lastEmit    time.Time
	lastEmitted float64
	hasEmitted  bool
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// WithThrottle overrides the minimum interval and minimum percent delta
// between emitted samples.
func WithThrottle(interval time.Duration, delta float64) Option {
	return func(e *Estimator) {
		e.minInterval = interval
		e.minDelta = delta
	}
}

// NewEstimator creates an estimator with default throttling.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		now:         time.Now,
		minInterval: DefaultMinInterval,
		minDelta:    DefaultMinDelta,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Begin starts a new phase. expectedSeconds is the media duration the phase
// will process (input duration for detection, output duration for encoding).
func (e *Estimator) Begin(phase Phase, expectedSeconds float64) Sample {
	e.phase = phase
	e.expected = expectedSeconds
	e.started = e.now()
	e.percent = 0
	e.eta = 0
	e.lastEmit = e.started
	e.lastEmitted = 0
	e.hasEmitted = true
	return e.sample()
}

// Observe consumes one engine output line. It returns a sample and true only
// when the line carried a progress marker and the throttle lets it through.
func (e *Estimator) Observe(line string) (Sample, bool) {
	raw, ok := e.rawPercent(line)
	if !ok {
		return Sample{}, false
	}

	if raw < 0 {
		raw = 0
	}
	if raw > maxRunningPercent {
		raw = maxRunningPercent
	}
	if raw > e.percent {
		e.percent = raw
	}

	now := e.now()
	if e.hasEmitted && now.Sub(e.lastEmit) < e.minInterval && e.percent-e.lastEmitted < e.minDelta {
		return Sample{}, false
	}

	e.eta = e.computeETA(now)
	e.lastEmit = now
	e.lastEmitted = e.percent
	e.hasEmitted = true
	return e.sample(), true
}

// Finish marks the phase complete and returns a 100% sample.
func (e *Estimator) Finish() Sample {
	e.percent = 100
	e.eta = 0
	e.lastEmit = e.now()
	e.lastEmitted = 100
	return e.sample()
}

// Current returns the latest state without applying the throttle.
func (e *Estimator) Current() Sample {
	return e.sample()
}

// rawPercent prefers the elapsed-time marker and falls back to a
// self-reported percentage when no time marker can be used.
func (e *Estimator) rawPercent(line string) (float64, bool) {
	if e.expected > 0 {
		if sec, ok := ParseTimeMarker(line); ok {
			return sec / e.expected * 100, true
		}
	}
	return ParsePercentMarker(line)
}

func (e *Estimator) computeETA(now time.Time) time.Duration {
	elapsed := now.Sub(e.started)
	if e.percent <= etaWarmupPercent || elapsed <= etaWarmupElapsed {
		return 0
	}
	return time.Duration(float64(elapsed) * (100/e.percent - 1))
}

func (e *Estimator) sample() Sample {
	return Sample{
		Phase:   e.phase,
		Status:  statusText(e.phase, e.percent, e.eta),
		Percent: e.percent,
		ETA:     e.eta,
	}
}

func statusText(phase Phase, percent float64, eta time.Duration) string {
	var label string
	switch phase {
	case PhaseDetect:
		label = "Detecting silence"
	case PhaseEncode:
		label = "Encoding"
	default:
		label = "Working"
	}
	if percent >= 100 {
		return fmt.Sprintf("%s: done", label)
	}
	text := fmt.Sprintf("%s %.1f%%", label, percent)
	if s := FormatETA(eta); s != "" {
		text += " (ETA " + s + ")"
	}
	return text
}

// ParseTimeMarker extracts the elapsed media time from a line such as
// "frame=  120 fps=60 time=00:01:02.50 bitrate=...". Negative times read as 0.
func ParseTimeMarker(line string) (float64, bool) {
	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return 0, false
	}
	if m[1] == "-" {
		return 0, true
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, true
}

// ParsePercentMarker extracts a self-reported percentage ("progress=42.5%").
func ParsePercentMarker(line string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatETA renders a duration as "1h2m3s", dropping leading zero units.
// Non-positive durations render as "".
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	var out string
	if hours > 0 {
		out += fmt.Sprintf("%dh", hours)
	}
	if minutes > 0 || hours > 0 {
		out += fmt.Sprintf("%dm", minutes)
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		out += fmt.Sprintf("%ds", seconds)
	}
	return out
}
