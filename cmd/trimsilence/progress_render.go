package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/gwlsn/trimsilence/internal/jobs"
	"github.com/gwlsn/trimsilence/internal/progress"
)

type renderMode int

const (
	renderQuiet renderMode = iota
	renderPlain            // one line per state and per 10% step, for logs and pipes
	renderBar              // redrawn progress bar on a terminal
)

const (
	barWidth    = 30
	plainStep   = 10.0
	statusWidth = 72
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressRenderer prints job events for the run command. It is driven from
// a single goroutine.
type progressRenderer struct {
	w        io.Writer
	mode     renderMode
	lineOpen bool
	lastStep map[progress.Phase]int
}

func newProgressRenderer(w io.Writer, mode renderMode) *progressRenderer {
	return &progressRenderer{w: w, mode: mode, lastStep: map[progress.Phase]int{}}
}

func (r *progressRenderer) Handle(ev jobs.JobEvent) {
	if r.mode == renderQuiet {
		return
	}
	switch ev.Type {
	case jobs.EventState:
		if ev.Job == nil {
			return
		}
		if label := stateLabel(ev.Job); label != "" {
			r.println(label)
		}
	case jobs.EventProgress:
		if ev.Progress != nil {
			r.progress(*ev.Progress)
		}
	case jobs.EventLog:
		r.println("  ! " + ev.Message)
	default:
		r.closeLine()
	}
}

// Finish ends an open progress line.
func (r *progressRenderer) Finish() {
	r.closeLine()
}

func (r *progressRenderer) progress(s progress.Sample) {
	switch r.mode {
	case renderBar:
		filled := int(s.Percent / 100 * barWidth)
		if filled > barWidth {
			filled = barWidth
		}
		bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
		line := fmt.Sprintf("  [%s] %5.1f%%", bar, s.Percent)
		if eta := progress.FormatETA(s.ETA); eta != "" {
			line += "  ETA " + eta
		}
		fmt.Fprintf(r.w, "\r%-*s", statusWidth, line)
		r.lineOpen = true
	case renderPlain:
		step := int(s.Percent / plainStep)
		if s.Percent == 0 {
			r.lastStep[s.Phase] = 0
			return
		}
		if step <= r.lastStep[s.Phase] {
			return
		}
		r.lastStep[s.Phase] = step
		fmt.Fprintf(r.w, "  %s\n", s.Status)
	}
}

func (r *progressRenderer) println(line string) {
	r.closeLine()
	fmt.Fprintln(r.w, line)
}

func (r *progressRenderer) closeLine() {
	if r.lineOpen {
		fmt.Fprintln(r.w)
		r.lineOpen = false
	}
}

func stateLabel(job *jobs.Job) string {
	switch job.State {
	case jobs.StateDetecting:
		return "Detecting silence in " + job.InputPath
	case jobs.StateNoSilence:
		return "No silence found"
	case jobs.StateSegmentsFound:
		return fmt.Sprintf("Found %d silent %s", job.SilenceCount, plural(job.SilenceCount, "stretch", "stretches"))
	case jobs.StateReconstructing:
		return "Building keep segments"
	case jobs.StateEncoding:
		how := "software"
		if job.IsHardware {
			how = "hardware"
		}
		return fmt.Sprintf("Encoding with %s (%s, %s quality)", job.Encoder, how, job.Quality)
	case jobs.StateCleaning:
		return "Cleaning up"
	}
	return ""
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// formatSeconds renders media time as h:mm:ss or m:ss.
func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func writeSummary(w io.Writer, result *jobs.Result) {
	switch {
	case result.Cancelled:
		fmt.Fprintln(w, "Cancelled; partial output removed")
		return
	case !result.Success:
		fmt.Fprintf(w, "Failed: %s\n", result.Error)
		return
	}

	fmt.Fprintf(w, "Done: %s\n", result.OutputPath)
	fmt.Fprintf(w, "  Duration   %s -> %s\n", formatSeconds(result.InputDuration), formatSeconds(result.OutputDuration))
	if result.RemovedSeconds > 0 {
		pct := result.RemovedSeconds / result.InputDuration * 100
		fmt.Fprintf(w, "  Removed    %s (%.1f%%) in %d %s\n", formatSeconds(result.RemovedSeconds), pct,
			result.SilenceCount, plural(result.SilenceCount, "cut", "cuts"))
	}
	fmt.Fprintf(w, "  Segments   %d\n", result.SegmentCount)
	fmt.Fprintf(w, "  Size       %s\n", humanize.Bytes(uint64(result.OutputSize)))
	fmt.Fprintf(w, "  Took       %s\n", result.Elapsed.Round(time.Second))
}
