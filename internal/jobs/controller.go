package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
	"github.com/gwlsn/trimsilence/internal/filtergraph"
	"github.com/gwlsn/trimsilence/internal/logger"
	"github.com/gwlsn/trimsilence/internal/progress"
	"github.com/gwlsn/trimsilence/internal/segments"
	"github.com/gwlsn/trimsilence/internal/silence"
)

// FilterScriptName is the file the filter graph is written to inside the
// job temp directory.
const FilterScriptName = "filter.txt"

// Engine starts ffmpeg processes. Implemented by *ffmpeg.Engine.
type Engine interface {
	Start(ctx context.Context, args []string) (ffmpeg.Process, error)
}

// Prober inspects media files. Implemented by *ffmpeg.Prober.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// History persists jobs. Implemented by *store.SQLiteStore.
type History interface {
	SaveJob(job *Job) error
}

// Options configures a Controller.
type Options struct {
	// Policy is the encoder selection computed once at startup.
	Policy ffmpeg.EncoderPolicy
	// TempDir is the parent of per-job temp directories ("" = system temp).
	TempDir string
	// LockPath, when set, is a file lock held for the duration of each job so
	// only one process works against the same data directory at a time.
	LockPath string
	// Threads is the resolved encoder thread count (0 = let ffmpeg decide).
	Threads int
	// ExtraArgs are appended to every encode invocation.
	ExtraArgs []string
	// History receives the job at start and at completion. Optional.
	History History
	// EstimatorOptions are passed to each job's progress estimator.
	EstimatorOptions []progress.Option
}

// Controller runs at most one job at a time.
type Controller struct {
	engine Engine
	prober Prober
	opts   Options

	runMu sync.Mutex // held for the whole of Run
	lock  *flock.Flock

	// mu guards the active job, its process and cancel func
	mu        sync.Mutex
	job       *Job
	proc      ffmpeg.Process
	jobCancel context.CancelFunc
	cancelled atomic.Bool
	settled   bool // outcome of the active job is fixed; Cancel is refused

	subsMu      sync.RWMutex
	subscribers map[chan JobEvent]struct{}
}

// NewController creates a controller. The encoder policy in opts is never
// modified.
func NewController(engine Engine, prober Prober, opts Options) *Controller {
	c := &Controller{
		engine:      engine,
		prober:      prober,
		opts:        opts,
		subscribers: make(map[chan JobEvent]struct{}),
	}
	if opts.LockPath != "" {
		c.lock = flock.New(opts.LockPath)
	}
	return c
}

// Policy returns the encoder policy the controller was created with.
func (c *Controller) Policy() ffmpeg.EncoderPolicy {
	return c.opts.Policy
}

// Active returns a snapshot of the running job, or nil.
func (c *Controller) Active() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Copy()
}

// Busy reports whether a job is running in this process.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job != nil
}

// Run executes one job synchronously. It returns ErrBusy without side
// effects when another job is running. A cancelled job returns a Result
// with Cancelled set and a nil error. Failures return both a Result and an
// error wrapping one of the package sentinels.
func (c *Controller) Run(ctx context.Context, params Params) (*Result, error) {
	r, release, err := c.begin(ctx, params)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.complete()
}

// Start reserves the controller for a job and runs it in the background.
// Rejections (ErrBusy, ErrInvalidParams) are returned before anything runs;
// otherwise the new job is returned and done, if set, receives what Run
// would have returned.
func (c *Controller) Start(ctx context.Context, params Params, done func(*Result, error)) (*Job, error) {
	r, release, err := c.begin(ctx, params)
	if err != nil {
		return nil, err
	}
	job := c.Active()
	go func() {
		result, err := r.complete()
		release()
		if done != nil {
			done(result, err)
		}
	}()
	return job, nil
}

// begin validates params, takes both job locks and registers the new job.
// release must be called once the run has finished.
func (c *Controller) begin(ctx context.Context, params Params) (*run, func(), error) {
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	quality, _ := ffmpeg.ParseQuality(params.Quality)

	if !c.runMu.TryLock() {
		return nil, nil, ErrBusy
	}
	unlock := c.runMu.Unlock

	if c.lock != nil {
		ok, err := c.lock.TryLock()
		if err != nil {
			unlock()
			return nil, nil, fmt.Errorf("acquire job lock: %w", err)
		}
		if !ok {
			unlock()
			return nil, nil, ErrBusy
		}
		unlock = func() {
			if err := c.lock.Unlock(); err != nil {
				logger.Warn("Failed to release job lock", "path", c.opts.LockPath, "error", err)
			}
			c.runMu.Unlock()
		}
	}

	encoder := c.opts.Policy.Select(params.UseHardwareEncoder)
	now := time.Now()
	job := &Job{
		ID:                 uuid.NewString(),
		InputPath:          params.InputPath,
		OutputPath:         params.OutputPath,
		Quality:            quality,
		NormalizeAudio:     params.NormalizeAudio,
		ThresholdDB:        params.ThresholdDB,
		MinSilenceDuration: params.MinSilenceDuration,
		Padding:            params.Padding,
		Encoder:            encoder.Encoder,
		IsHardware:         encoder.IsHardware(),
		Threads:            c.opts.Threads,
		State:              StateIdle,
		CreatedAt:          now,
		StartedAt:          now,
	}

	jobCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.job = job
	c.jobCancel = cancel
	c.cancelled.Store(false)
	c.settled = false
	c.mu.Unlock()

	log := logger.With("job_id", job.ID)
	log.Info("Job started", "input", job.InputPath, "output", job.OutputPath,
		"encoder", job.Encoder, "quality", job.Quality, "normalize", job.NormalizeAudio)
	c.saveHistory(job)

	r := &run{c: c, job: job, encoder: encoder, log: log, started: now,
		parent: ctx, ctx: jobCtx,
		est: progress.NewEstimator(c.opts.EstimatorOptions...)}
	release := func() {
		cancel()
		unlock()
	}
	return r, release, nil
}

// complete runs the job to its end state.
func (r *run) complete() (*Result, error) {
	runErr := r.execute(r.ctx)
	if runErr != nil && (r.c.cancelled.Load() || r.parent.Err() != nil) {
		// An engine exit caused by termination is not a failure.
		runErr = errCancelled
	}
	return r.finish(runErr)
}

// Cancel stops the running job: the engine process is terminated and the
// job ends in the cancelled state. Safe from any goroutine. Returns false
// when no job is running or the running job is already past the point
// where it can be cancelled; a true return always means a cancelled result.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil || c.job.IsTerminal() || c.settled {
		return false
	}
	if !c.cancelled.CompareAndSwap(false, true) {
		return true
	}

	logger.Info("Cancelling job", "job_id", c.job.ID, "state", c.job.State)
	if c.proc != nil {
		if err := c.proc.Terminate(); err != nil {
			logger.Warn("Failed to terminate ffmpeg", "job_id", c.job.ID, "error", err)
		}
	}
	if c.jobCancel != nil {
		c.jobCancel()
	}
	return true
}

// Subscribe returns a channel that receives job events
func (c *Controller) Subscribe() chan JobEvent {
	ch := make(chan JobEvent, 100)

	c.subsMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription
func (c *Controller) Unsubscribe(ch chan JobEvent) {
	c.subsMu.Lock()
	if _, ok := c.subscribers[ch]; ok {
		delete(c.subscribers, ch)
		close(ch)
	}
	c.subsMu.Unlock()
}

// broadcast sends an event to all subscribers
func (c *Controller) broadcast(event JobEvent) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

func (c *Controller) saveHistory(job *Job) {
	if c.opts.History == nil {
		return
	}
	c.mu.Lock()
	snapshot := job.Copy()
	c.mu.Unlock()
	if err := c.opts.History.SaveJob(snapshot); err != nil {
		logger.Warn("Failed to save job history", "job_id", job.ID, "error", err)
	}
}

// run holds the per-job state owned by the Run goroutine.
type run struct {
	c       *Controller
	job     *Job
	encoder ffmpeg.HWEncoder
	est     *progress.Estimator
	log     *slog.Logger

	parent context.Context // caller's context; its cancellation counts as Cancel
	ctx    context.Context // parent plus the job's own cancel

	outputTouched bool // output path may hold partial data
	started       time.Time
}

// update mutates the job under the controller lock and returns a snapshot.
func (r *run) update(fn func(j *Job)) *Job {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	fn(r.job)
	return r.job.Copy()
}

func (r *run) setState(state State) {
	snapshot := r.update(func(j *Job) { j.State = state })
	r.log.Debug("Job state", "state", state)
	r.c.broadcast(JobEvent{Type: EventState, Job: snapshot})
}

func (r *run) publish(sample progress.Sample) {
	snapshot := r.update(func(j *Job) {
		j.Phase = sample.Phase
		j.Progress = sample.Percent
		j.ETA = progress.FormatETA(sample.ETA)
		j.Status = sample.Status
	})
	r.c.broadcast(JobEvent{Type: EventProgress, Job: snapshot, Progress: &sample})
}

func (r *run) notice(msg string) {
	r.c.broadcast(JobEvent{Type: EventLog, Job: r.c.Active(), Message: msg})
}

func (r *run) checkCancelled() error {
	if r.c.cancelled.Load() {
		return errCancelled
	}
	return nil
}

func (r *run) execute(ctx context.Context) error {
	r.setState(StateDetecting)

	probe, err := r.c.prober.Probe(ctx, r.job.InputPath)
	if err != nil {
		if cerr := r.checkCancelled(); cerr != nil {
			return cerr
		}
		return probeError(r.job.InputPath, err)
	}
	if !probe.HasVideo() {
		return probeError(r.job.InputPath, errors.New("no video stream"))
	}
	r.update(func(j *Job) {
		j.InputDuration = probe.Seconds()
		j.InputSize = probe.Size
	})

	tempDir, err := os.MkdirTemp(r.c.opts.TempDir, "trimsilence-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	r.update(func(j *Job) { j.TempDir = tempDir })

	var silences []segments.Interval
	if probe.HasAudio() {
		silences, err = r.detect(ctx)
		if err != nil {
			return err
		}
	} else {
		r.log.Warn("Skipping silence detection", "reason", ErrNoAudioStream)
		r.notice(ErrNoAudioStream.Error() + "; output will match the input")
	}
	if err := r.checkCancelled(); err != nil {
		return err
	}

	if len(silences) == 0 {
		r.setState(StateNoSilence)
		return r.passThrough(ctx, probe)
	}

	r.update(func(j *Job) { j.SilenceCount = len(silences) })
	r.setState(StateSegmentsFound)
	r.setState(StateReconstructing)

	keeps := segments.Reconstruct(silences, r.job.InputDuration)
	if len(keeps) == 0 {
		return ErrNoContent
	}
	r.update(func(j *Job) {
		j.SegmentCount = len(keeps)
		j.OutputDuration = segments.Sum(keeps)
	})
	r.log.Info("Segments reconstructed", "silences", len(silences), "segments", len(keeps),
		"input_seconds", r.job.InputDuration, "output_seconds", r.job.OutputDuration)

	scriptPath := filepath.Join(tempDir, FilterScriptName)
	graph := filtergraph.Build(keeps, r.job.NormalizeAudio)
	if err := os.WriteFile(scriptPath, []byte(graph), 0644); err != nil {
		return fmt.Errorf("write filter script: %w", err)
	}

	if err := r.checkCancelled(); err != nil {
		return err
	}
	r.setState(StateEncoding)

	codecArgs := ffmpeg.CodecArgs(r.encoder, r.job.Quality, r.job.Threads, r.job.OutputPath)
	args := ffmpeg.EncodeArgs(r.job.InputPath, scriptPath, codecArgs, r.c.opts.ExtraArgs, r.job.OutputPath)
	r.outputTouched = true
	return r.runEngine(ctx, progress.PhaseEncode, r.job.OutputDuration, args, nil)
}

// detect runs the analysis pass and returns padded silence intervals. The
// parser result is discarded when the engine fails.
func (r *run) detect(ctx context.Context) ([]segments.Interval, error) {
	parser := silence.NewParser(r.job.Padding)
	args := ffmpeg.DetectArgs(r.job.InputPath, r.job.ThresholdDB, r.job.MinSilenceDuration)

	if err := r.runEngine(ctx, progress.PhaseDetect, r.job.InputDuration, args, func(line string) {
		parser.Feed(line)
	}); err != nil {
		return nil, err
	}
	if parser.Pending() {
		r.log.Debug("Dropping unterminated silence at end of input")
	}

	silences := parser.Intervals()
	r.log.Info("Silence detection finished", "silences", len(silences))
	return silences, nil
}

// passThrough produces the output when nothing needs cutting: a loudness
// pass when normalization was requested, a byte copy otherwise.
func (r *run) passThrough(ctx context.Context, probe *ffmpeg.ProbeResult) error {
	r.update(func(j *Job) {
		j.OutputDuration = j.InputDuration
		j.SegmentCount = 1
	})

	if r.job.NormalizeAudio && probe.HasAudio() {
		r.setState(StateEncoding)
		args := ffmpeg.NormalizeArgs(r.job.InputPath, r.job.Quality, r.c.opts.ExtraArgs, r.job.OutputPath)
		r.outputTouched = true
		return r.runEngine(ctx, progress.PhaseEncode, r.job.InputDuration, args, nil)
	}

	r.log.Info("No silence found, copying input")
	r.outputTouched = true
	if err := copyFile(ctx, r.job.InputPath, r.job.OutputPath); err != nil {
		if cerr := r.checkCancelled(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("copy input: %w", err)
	}
	return nil
}

// runEngine runs one ffmpeg pass, feeding every output line to onLine and
// the estimator in order.
func (r *run) runEngine(ctx context.Context, phase progress.Phase, expected float64, args []string, onLine func(string)) error {
	r.publish(r.est.Begin(phase, expected))

	proc, err := r.c.engine.Start(ctx, args)
	if err != nil {
		if cerr := r.checkCancelled(); cerr != nil {
			return cerr
		}
		return engineError(string(phase), err)
	}

	r.c.mu.Lock()
	r.c.proc = proc
	r.c.mu.Unlock()
	// Cancel may have run between Start and publishing the handle.
	if r.c.cancelled.Load() {
		_ = proc.Terminate()
	}

	for line := range proc.Lines() {
		if onLine != nil {
			onLine(line)
		}
		if sample, ok := r.est.Observe(line); ok {
			r.publish(sample)
		}
	}
	waitErr := proc.Wait()

	r.c.mu.Lock()
	r.c.proc = nil
	r.c.mu.Unlock()

	if err := r.checkCancelled(); err != nil {
		return err
	}
	if waitErr != nil {
		return engineError(string(phase), waitErr)
	}
	r.publish(r.est.Finish())
	return nil
}

// finish cleans up, records the outcome and releases the job.
func (r *run) finish(runErr error) (*Result, error) {
	// A Cancel that got in after the last check still wins here. Once
	// settled, Cancel reports false.
	r.c.mu.Lock()
	if r.c.cancelled.Load() {
		runErr = errCancelled
	}
	r.c.settled = true
	r.c.mu.Unlock()
	cancelled := errors.Is(runErr, errCancelled)

	if runErr == nil {
		r.setState(StateCleaning)
	}

	if r.job.TempDir != "" {
		if err := os.RemoveAll(r.job.TempDir); err != nil {
			r.log.Warn("Failed to remove temp dir", "path", r.job.TempDir, "error", err)
		}
	}

	if runErr == nil {
		info, err := os.Stat(r.job.OutputPath)
		if err != nil {
			runErr = fmt.Errorf("%w: output missing after encode: %w", ErrEngineFailure, err)
		} else {
			r.update(func(j *Job) { j.OutputSize = info.Size() })
		}
	}

	if runErr != nil && r.outputTouched {
		if err := os.Remove(r.job.OutputPath); err != nil && !os.IsNotExist(err) {
			r.log.Warn("Failed to remove partial output", "path", r.job.OutputPath, "error", err)
		}
	}

	final := StateDone
	eventType := EventComplete
	var errMsg string
	switch {
	case cancelled:
		final, eventType = StateCancelled, EventCancelled
		r.log.Info("Job cancelled")
	case runErr != nil:
		final, eventType = StateFailed, EventFailed
		errMsg = runErr.Error()
		r.log.Error("Job failed", "error", errMsg)
	}

	snapshot := r.update(func(j *Job) {
		j.State = final
		j.Error = errMsg
		j.CompletedAt = time.Now()
		if final == StateDone {
			j.Progress = 100
		}
	})

	result := &Result{
		JobID:          snapshot.ID,
		State:          final,
		Success:        final == StateDone,
		Cancelled:      cancelled,
		Error:          errMsg,
		InputDuration:  snapshot.InputDuration,
		OutputDuration: snapshot.OutputDuration,
		RemovedSeconds: snapshot.RemovedSeconds(),
		SilenceCount:   snapshot.SilenceCount,
		SegmentCount:   snapshot.SegmentCount,
		Elapsed:        time.Since(r.started),
	}
	if final == StateDone {
		result.OutputPath = snapshot.OutputPath
		result.OutputSize = snapshot.OutputSize
		r.log.Info("Job complete", "output", snapshot.OutputPath,
			"removed_seconds", result.RemovedSeconds, "elapsed", result.Elapsed.Round(time.Millisecond))
	}

	r.c.saveHistory(r.job)
	r.c.broadcast(JobEvent{Type: eventType, Job: snapshot, Result: result})

	r.c.mu.Lock()
	r.c.job = nil
	r.c.proc = nil
	r.c.jobCancel = nil
	r.c.mu.Unlock()

	if cancelled {
		return result, nil
	}
	return result, runErr
}
