package jobs

import (
	"time"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
	"github.com/gwlsn/trimsilence/internal/progress"
)

// State is a step of the job state machine:
//
//	idle -> detecting -> (no_silence | segments_found) -> reconstructing
//	     -> encoding -> cleaning -> done
//
// cancelled is reachable from any non-terminal state; failed from any
// state that runs the engine or touches the filesystem.
type State string

const (
	StateIdle           State = "idle"
	StateDetecting      State = "detecting"
	StateNoSilence      State = "no_silence"
	StateSegmentsFound  State = "segments_found"
	StateReconstructing State = "reconstructing"
	StateEncoding       State = "encoding"
	StateCleaning       State = "cleaning"
	StateDone           State = "done"
	StateCancelled      State = "cancelled"
	StateFailed         State = "failed"
)

// IsTerminal returns true for done, cancelled and failed.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// Job is one silence-removal run.
type Job struct {
	ID         string         `json:"id"`
	InputPath  string         `json:"input_path"`
	OutputPath string         `json:"output_path"`
	TempDir    string         `json:"temp_dir,omitempty"`
	Quality    ffmpeg.Quality `json:"quality"`

	NormalizeAudio     bool    `json:"normalize_audio"`
	ThresholdDB        float64 `json:"threshold_db"`
	MinSilenceDuration float64 `json:"min_silence_duration"`
	Padding            float64 `json:"padding"`

	Encoder    string `json:"encoder"` // ffmpeg encoder name, e.g. libx264
	IsHardware bool   `json:"is_hardware"`
	Threads    int    `json:"threads"`

	State    State          `json:"state"`
	Phase    progress.Phase `json:"phase,omitempty"`
	Progress float64        `json:"progress"` // 0-100 within the current phase
	ETA      string         `json:"eta,omitempty"`
	Status   string         `json:"status,omitempty"` // Human-readable progress line
	Error    string         `json:"error,omitempty"`

	InputDuration  float64 `json:"input_duration"`  // seconds
	OutputDuration float64 `json:"output_duration"` // seconds
	SilenceCount   int     `json:"silence_count"`
	SegmentCount   int     `json:"segment_count"`
	InputSize      int64   `json:"input_size"`
	OutputSize     int64   `json:"output_size,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// RemovedSeconds is how much media time the job cut out.
func (j *Job) RemovedSeconds() float64 {
	if j.OutputDuration <= 0 || j.OutputDuration > j.InputDuration {
		return 0
	}
	return j.InputDuration - j.OutputDuration
}

// Copy returns a shallow copy safe to hand to other goroutines.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// Result is the final outcome of Controller.Run.
type Result struct {
	JobID          string        `json:"job_id"`
	State          State         `json:"state"`
	Success        bool          `json:"success"`
	Cancelled      bool          `json:"cancelled"`
	OutputPath     string        `json:"output_path,omitempty"`
	Error          string        `json:"error,omitempty"`
	InputDuration  float64       `json:"input_duration"`
	OutputDuration float64       `json:"output_duration"`
	RemovedSeconds float64       `json:"removed_seconds"`
	SilenceCount   int           `json:"silence_count"`
	SegmentCount   int           `json:"segment_count"`
	OutputSize     int64         `json:"output_size"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Event types sent to subscribers.
const (
	EventState     = "state"
	EventProgress  = "progress"
	EventLog       = "log"
	EventComplete  = "complete"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// JobEvent represents an event for SSE streaming and the CLI renderer
type JobEvent struct {
	Type     string           `json:"type"`
	Job      *Job             `json:"job,omitempty"`
	Progress *progress.Sample `json:"progress,omitempty"`
	Message  string           `json:"message,omitempty"`
	Result   *Result          `json:"result,omitempty"`
}
