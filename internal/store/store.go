package store

import (
	"github.com/gwlsn/trimsilence/internal/jobs"
)

// Store defines the persistence interface for job history.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveJob persists a job. If the job already exists (by ID), it is updated.
	SaveJob(job *jobs.Job) error

	// GetJob retrieves a job by ID. Returns nil if not found.
	GetJob(id string) (*jobs.Job, error)

	// ListJobs returns the most recent jobs, newest first.
	// A limit of 0 or less returns every job.
	ListJobs(limit int) ([]*jobs.Job, error)

	// DeleteJob removes a job by ID.
	// Returns nil if the job doesn't exist.
	DeleteJob(id string) error

	// MarkInterrupted fails every job left in a non-terminal state by a
	// process that exited mid-run. Used on startup.
	// Returns the number of jobs updated.
	MarkInterrupted() (int, error)

	// Stats returns history totals.
	Stats() (Stats, error)

	// Close closes the store and releases resources.
	Close() error
}

// Stats holds history totals.
type Stats struct {
	Total          int     `json:"total"`
	Done           int     `json:"done"`
	Failed         int     `json:"failed"`
	Cancelled      int     `json:"cancelled"`
	RemovedSeconds float64 `json:"removed_seconds"` // Media time cut by successful jobs
}
