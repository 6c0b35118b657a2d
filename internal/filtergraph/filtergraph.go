// Package filtergraph compiles keep intervals into an ffmpeg filter_complex
// script that trims every interval out of the input and concatenates them.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gwlsn/trimsilence/internal/segments"
)

// Output pad labels mapped by the encode invocation (-map [outv] -map [outa]).
const (
	OutputVideoPad = "outv"
	OutputAudioPad = "outa"
)

// Loudness normalization targets (EBU R128 streaming profile).
const (
	TargetIntegratedLUFS = -16.0
	TargetTruePeakDBTP   = -1.5
	TargetLoudnessRange  = 11.0
)

const prenormPad = "prenorm"

// LoudnormFilter returns the loudnorm clause without pad labels.
func LoudnormFilter() string {
	return fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=%s",
		formatNumber(TargetIntegratedLUFS),
		formatNumber(TargetTruePeakDBTP),
		formatNumber(TargetLoudnessRange))
}

// Build returns the filter graph for the given keep intervals.
// keeps must not be empty. The result is deterministic for identical input.
func Build(keeps []segments.Interval, normalize bool) string {
	var b strings.Builder

	for k, iv := range keeps {
		start := formatTime(iv.Start)
		end := formatTime(iv.End)
		fmt.Fprintf(&b, "[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS[v%d];\n", start, end, k)
		fmt.Fprintf(&b, "[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a%d];\n", start, end, k)
	}

	for k := range keeps {
		fmt.Fprintf(&b, "[v%d][a%d]", k, k)
	}

	audioOut := OutputAudioPad
	if normalize {
		audioOut = prenormPad
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[%s][%s]", len(keeps), OutputVideoPad, audioOut)

	if normalize {
		fmt.Fprintf(&b, ";\n[%s]%s[%s]", prenormPad, LoudnormFilter(), OutputAudioPad)
	}
	b.WriteString("\n")

	return b.String()
}

// formatTime renders seconds with fixed 4-decimal precision.
func formatTime(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 4, 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
