package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
	"github.com/gwlsn/trimsilence/internal/progress"
)

var errTerminated = errors.New("signal: terminated")

// step scripts one fake ffmpeg invocation.
type step struct {
	lines  []string
	block  bool   // after the lines, run until terminated
	output bool   // write the last argument as an output file
	err    error  // exit error
	exited func() // runs in Wait once the process has exited
}

type fakeProcess struct {
	lines      chan string
	done       chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
	terminated atomic.Bool
	err        error
	exited     func()
}

func (p *fakeProcess) Lines() <-chan string { return p.lines }

func (p *fakeProcess) Wait() error {
	<-p.done
	err := p.err
	if p.terminated.Load() {
		err = errTerminated
	}
	if p.exited != nil {
		p.exited()
	}
	return err
}

func (p *fakeProcess) Terminate() error {
	p.terminated.Store(true)
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

func (p *fakeProcess) Terminated() bool { return p.terminated.Load() }

type fakeEngine struct {
	mu       sync.Mutex
	steps    []step
	calls    [][]string
	startErr error
	onStart  func(args []string)
	blocking chan struct{} // receives once a blocking step has sent its lines
}

func newFakeEngine(steps ...step) *fakeEngine {
	return &fakeEngine{steps: steps, blocking: make(chan struct{}, 4)}
}

func (e *fakeEngine) Start(ctx context.Context, args []string) (ffmpeg.Process, error) {
	e.mu.Lock()
	e.calls = append(e.calls, args)
	if e.startErr != nil {
		e.mu.Unlock()
		return nil, e.startErr
	}
	var s step
	if len(e.steps) > 0 {
		s, e.steps = e.steps[0], e.steps[1:]
	}
	onStart := e.onStart
	e.mu.Unlock()

	if onStart != nil {
		onStart(args)
	}

	p := &fakeProcess{
		lines:  make(chan string),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		err:    s.err,
		exited: s.exited,
	}
	go func() {
		defer close(p.done)
		defer close(p.lines)
		if s.output {
			_ = os.WriteFile(args[len(args)-1], []byte("encoded"), 0644)
		}
		for _, l := range s.lines {
			select {
			case p.lines <- l:
			case <-p.stop:
				return
			}
		}
		if s.block {
			e.blocking <- struct{}{}
			select {
			case <-p.stop:
			case <-ctx.Done():
				p.terminated.Store(true)
			}
		}
	}()
	return p, nil
}

func (e *fakeEngine) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}

type fakeProber struct {
	result *ffmpeg.ProbeResult
	err    error
}

func (p *fakeProber) Probe(_ context.Context, path string) (*ffmpeg.ProbeResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	r.Path = path
	return &r, nil
}

func videoProbe(seconds float64) *fakeProber {
	return &fakeProber{result: &ffmpeg.ProbeResult{
		Duration:     time.Duration(seconds * float64(time.Second)),
		Size:         1 << 20,
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		AudioStreams: 1,
	}}
}

type memHistory struct {
	mu   sync.Mutex
	jobs []*Job
}

func (h *memHistory) SaveJob(job *Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	return nil
}

type fixture struct {
	dir     string
	tempDir string
	input   string
	output  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		tempDir: filepath.Join(dir, "tmp"),
		input:   filepath.Join(dir, "talk.mp4"),
		output:  filepath.Join(dir, "talk.trimmed.mp4"),
	}
	require.NoError(t, os.Mkdir(f.tempDir, 0755))
	require.NoError(t, os.WriteFile(f.input, []byte("source media bytes"), 0644))
	return f
}

func (f fixture) params() Params {
	return DefaultParams(f.input, f.output)
}

func (f fixture) controller(engine Engine, prober Prober, mutate ...func(*Options)) *Controller {
	opts := Options{
		Policy:  ffmpeg.SoftwareOnlyPolicy(),
		TempDir: f.tempDir,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewController(engine, prober, opts)
}

func (f fixture) assertTempClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "job temp dir should be removed")
}

func drain(ch chan JobEvent) []JobEvent {
	var events []JobEvent
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func states(events []JobEvent) []State {
	var out []State
	for _, ev := range events {
		if ev.Type == EventState {
			out = append(out, ev.Job.State)
		}
	}
	return out
}

func argsContain(args []string, s string) bool {
	return strings.Contains(strings.Join(args, " "), s)
}

var detectionWithSilence = []string{
	"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'talk.mp4':",
	"size=N/A time=00:00:08.00 bitrate=N/A speed=40x",
	"[silencedetect @ 0x55d0c8] silence_start: 10",
	"[silencedetect @ 0x55d0c8] silence_end: 15 | silence_duration: 5",
	"size=N/A time=00:00:30.00 bitrate=N/A speed=41x",
}

func TestRunTrimsSilence(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(
		step{lines: detectionWithSilence},
		step{lines: []string{"frame=100 time=00:00:12.00 speed=2x"}, output: true},
	)

	var script string
	engine.onStart = func(args []string) {
		for i, a := range args {
			if a == "-filter_complex_script" {
				data, err := os.ReadFile(args[i+1])
				if err == nil {
					script = string(data)
				}
			}
		}
	}

	history := &memHistory{}
	c := f.controller(engine, videoProbe(30), func(o *Options) { o.History = history })
	events := c.Subscribe()
	defer c.Unsubscribe(events)

	result, err := c.Run(context.Background(), f.params())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Cancelled)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, f.output, result.OutputPath)
	assert.Equal(t, 1, result.SilenceCount)
	assert.Equal(t, 2, result.SegmentCount)
	assert.InDelta(t, 25.1, result.OutputDuration, 1e-9)
	assert.InDelta(t, 4.9, result.RemovedSeconds, 1e-9)
	assert.Equal(t, int64(len("encoded")), result.OutputSize)

	calls := engine.Calls()
	require.Len(t, calls, 2)
	assert.True(t, argsContain(calls[0], "silencedetect=noise=-35dB:d=0.5"))
	assert.True(t, argsContain(calls[1], "-filter_complex_script"))
	assert.True(t, argsContain(calls[1], "-map [outv] -map [outa]"))
	assert.True(t, argsContain(calls[1], "-c:v libx264"))

	assert.Contains(t, script, "[0:v]trim=start=0.0000:end=10.0500")
	assert.Contains(t, script, "[0:a]atrim=start=14.9500:end=30.0000")
	assert.Contains(t, script, "concat=n=2:v=1:a=1[outv][outa]")
	assert.NotContains(t, script, "loudnorm")

	f.assertTempClean(t)
	assert.Nil(t, c.Active())

	evs := drain(events)
	assert.Equal(t, []State{StateDetecting, StateSegmentsFound, StateReconstructing, StateEncoding, StateCleaning}, states(evs))
	last := evs[len(evs)-1]
	assert.Equal(t, EventComplete, last.Type)
	require.NotNil(t, last.Result)
	assert.True(t, last.Result.Success)

	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.jobs, 2)
	assert.Equal(t, StateIdle, history.jobs[0].State)
	assert.Equal(t, StateDone, history.jobs[1].State)
}

func TestRunProgressIsMonotonicPerPhase(t *testing.T) {
	f := newFixture(t)
	var detect []string
	for i := 1; i <= 30; i++ {
		detect = append(detect, timeMarker(float64(i)))
	}
	detect = append(detect, "silence_start: 10", "silence_end: 12")
	engine := newFakeEngine(step{lines: detect}, step{lines: []string{timeMarker(5), timeMarker(3), timeMarker(20)}, output: true})

	clock := &stepClock{t: time.Unix(0, 0)}
	c := f.controller(engine, videoProbe(30), func(o *Options) {
		o.EstimatorOptions = []progress.Option{progress.WithClock(clock.Now)}
	})
	events := c.Subscribe()
	defer c.Unsubscribe(events)

	_, err := c.Run(context.Background(), f.params())
	require.NoError(t, err)

	last := map[progress.Phase]float64{}
	sawFinish := map[progress.Phase]bool{}
	for _, ev := range drain(events) {
		if ev.Type != EventProgress {
			continue
		}
		s := ev.Progress
		require.NotNil(t, s)
		if s.Percent == 0 {
			last[s.Phase] = 0 // phase start
			continue
		}
		assert.GreaterOrEqual(t, s.Percent, last[s.Phase], "phase %s went backwards", s.Phase)
		assert.LessOrEqual(t, s.Percent, 100.0)
		if s.Percent < 100 {
			assert.LessOrEqual(t, s.Percent, 99.0)
		} else {
			sawFinish[s.Phase] = true
		}
		last[s.Phase] = s.Percent
	}
	assert.True(t, sawFinish[progress.PhaseDetect])
	assert.True(t, sawFinish[progress.PhaseEncode])
}

func TestRunNoSilenceCopiesInput(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{lines: []string{"size=N/A time=00:00:30.00 bitrate=N/A"}})
	c := f.controller(engine, videoProbe(30))
	events := c.Subscribe()
	defer c.Unsubscribe(events)

	result, err := c.Run(context.Background(), f.params())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SegmentCount)
	assert.Zero(t, result.RemovedSeconds)

	require.Len(t, engine.Calls(), 1, "no encode pass without silence")

	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, "source media bytes", string(got))

	assert.Equal(t, []State{StateDetecting, StateNoSilence, StateCleaning}, states(drain(events)))
	f.assertTempClean(t)
}

func TestRunNoSilenceWithNormalization(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{}, step{output: true})
	c := f.controller(engine, videoProbe(30))

	p := f.params()
	p.NormalizeAudio = true
	result, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, result.Success)

	calls := engine.Calls()
	require.Len(t, calls, 2)
	assert.True(t, argsContain(calls[1], "-af loudnorm=I=-16:TP=-1.5:LRA=11"))
	assert.True(t, argsContain(calls[1], "-c:v copy"))
	assert.False(t, argsContain(calls[1], "-filter_complex_script"))
}

func TestRunNormalizeAddsLoudnormToGraph(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{lines: detectionWithSilence}, step{output: true})
	var script string
	engine.onStart = func(args []string) {
		for i, a := range args {
			if a == "-filter_complex_script" {
				data, _ := os.ReadFile(args[i+1])
				script = string(data)
			}
		}
	}
	c := f.controller(engine, videoProbe(30))

	p := f.params()
	p.NormalizeAudio = true
	_, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Contains(t, script, "[prenorm]loudnorm=I=-16:TP=-1.5:LRA=11[outa]")
}

func TestRunNoAudioStreamSkipsDetection(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine()
	prober := videoProbe(30)
	prober.result.AudioStreams = 0
	prober.result.AudioCodec = ""

	c := f.controller(engine, prober)
	events := c.Subscribe()
	defer c.Unsubscribe(events)

	p := f.params()
	p.NormalizeAudio = true // nothing to normalize
	result, err := c.Run(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, engine.Calls())

	var sawNotice bool
	for _, ev := range drain(events) {
		if ev.Type == EventLog && strings.Contains(ev.Message, "no audio stream") {
			sawNotice = true
		}
	}
	assert.True(t, sawNotice)
}

func TestRunNoContent(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{lines: []string{"silence_start: 0", "silence_end: 30"}})
	c := f.controller(engine, videoProbe(30))

	p := f.params()
	p.Padding = 0
	result, err := c.Run(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, StateFailed, result.State)
	assert.False(t, result.Success)
	require.Len(t, engine.Calls(), 1)
	assert.NoFileExists(t, f.output)
	f.assertTempClean(t)
}

func TestRunProbeFailure(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine()
	c := f.controller(engine, &fakeProber{err: errors.New("moov atom not found")})

	result, err := c.Run(context.Background(), f.params())
	assert.ErrorIs(t, err, ErrProbeFailure)
	assert.Contains(t, err.Error(), "moov atom not found")
	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, engine.Calls())
}

func TestRunRejectsInputWithoutVideo(t *testing.T) {
	f := newFixture(t)
	prober := videoProbe(30)
	prober.result.VideoCodec = ""
	c := f.controller(newFakeEngine(), prober)

	_, err := c.Run(context.Background(), f.params())
	assert.ErrorIs(t, err, ErrProbeFailure)
}

func TestRunDetectionEngineFailure(t *testing.T) {
	f := newFixture(t)
	// Silence markers before the failure must not leak into the result.
	engine := newFakeEngine(step{
		lines: []string{"silence_start: 1", "silence_end: 5"},
		err:   &ffmpeg.EngineError{Err: errors.New("ffmpeg failed: exit status 1"), ExitCode: 1},
	})
	c := f.controller(engine, videoProbe(30))

	result, err := c.Run(context.Background(), f.params())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineFailure)
	var engErr *ffmpeg.EngineError
	assert.ErrorAs(t, err, &engErr)
	assert.Equal(t, 0, result.SilenceCount)
	assert.Len(t, engine.Calls(), 1)
	f.assertTempClean(t)
}

func TestRunEncodeFailureRemovesPartialOutput(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(
		step{lines: detectionWithSilence},
		step{output: true, err: errors.New("exit status 187")},
	)
	c := f.controller(engine, videoProbe(30))

	result, err := c.Run(context.Background(), f.params())
	assert.ErrorIs(t, err, ErrEngineFailure)
	assert.Equal(t, StateFailed, result.State)
	assert.NotEmpty(t, result.Error)
	assert.NoFileExists(t, f.output)
	f.assertTempClean(t)
}

func TestRunEngineStartFailure(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine()
	engine.startErr = errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	c := f.controller(engine, videoProbe(30))

	_, err := c.Run(context.Background(), f.params())
	assert.ErrorIs(t, err, ErrEngineFailure)
}

func TestRunKeepsExistingOutputOnProbeFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.output, []byte("previous result"), 0644))
	c := f.controller(newFakeEngine(), &fakeProber{err: errors.New("bad input")})

	_, err := c.Run(context.Background(), f.params())
	require.Error(t, err)
	assert.FileExists(t, f.output, "output is only removed once a run has written to it")
}

func TestCancelDuringDetection(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{lines: []string{"silence_start: 1", "silence_end: 3"}, block: true})
	c := f.controller(engine, videoProbe(30))

	go func() {
		<-engine.blocking
		assert.True(t, c.Cancel())
	}()

	result, err := c.Run(context.Background(), f.params())
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.False(t, result.Success)
	assert.Equal(t, StateCancelled, result.State)
	assert.Len(t, engine.Calls(), 1, "encode must not start after cancel")
	assert.NoFileExists(t, f.output)
	f.assertTempClean(t)
	assert.False(t, c.Cancel(), "nothing left to cancel")
}

func TestCancelDuringEncodeRemovesOutput(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(
		step{lines: detectionWithSilence},
		step{lines: []string{timeMarker(3)}, output: true, block: true},
	)
	c := f.controller(engine, videoProbe(30))
	events := c.Subscribe()
	defer c.Unsubscribe(events)

	go func() {
		<-engine.blocking
		active := c.Active()
		if assert.NotNil(t, active) {
			assert.Equal(t, StateEncoding, active.State)
		}
		c.Cancel()
		c.Cancel() // second call is harmless
	}()

	result, err := c.Run(context.Background(), f.params())
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.NoFileExists(t, f.output)
	f.assertTempClean(t)

	evs := drain(events)
	assert.Equal(t, EventCancelled, evs[len(evs)-1].Type)
}

func TestCancelAfterEncoderExitsCleanly(t *testing.T) {
	f := newFixture(t)
	var c *Controller
	var accepted bool
	engine := newFakeEngine(
		step{lines: detectionWithSilence},
		step{output: true, exited: func() { accepted = c.Cancel() }},
	)
	c = f.controller(engine, videoProbe(30))

	result, err := c.Run(context.Background(), f.params())
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.True(t, result.Cancelled)
	assert.Equal(t, StateCancelled, result.State)
	assert.NoFileExists(t, f.output)
	f.assertTempClean(t)
}

// Cancel may race every step of a job, including cleanup. Whatever it
// returns must agree with how the job ended.
func TestCancelResultAgreesWithOutcome(t *testing.T) {
	for n := 0; n < 12; n++ {
		t.Run(fmt.Sprintf("after_event_%d", n), func(t *testing.T) {
			f := newFixture(t)
			engine := newFakeEngine(
				step{lines: detectionWithSilence},
				step{lines: []string{timeMarker(6), timeMarker(20)}, output: true},
			)
			c := f.controller(engine, videoProbe(30))
			events := c.Subscribe()

			var accepted atomic.Bool
			watched := make(chan struct{})
			go func() {
				defer close(watched)
				seen := 0
				for range events {
					if seen == n {
						accepted.Store(c.Cancel())
					}
					seen++
				}
			}()

			result, err := c.Run(context.Background(), f.params())
			c.Unsubscribe(events)
			<-watched
			require.NoError(t, err)

			if accepted.Load() {
				assert.True(t, result.Cancelled, "Cancel returned true but job ended %s", result.State)
			}
			if result.Success {
				assert.FileExists(t, f.output)
			} else {
				assert.NoFileExists(t, f.output)
			}
			f.assertTempClean(t)
		})
	}
}

func TestRunContextCancelIsCancellation(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{block: true})
	c := f.controller(engine, videoProbe(30))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-engine.blocking
		cancel()
	}()

	result, err := c.Run(ctx, f.params())
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}

func TestRunRejectsConcurrentJob(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{block: true})
	c := f.controller(engine, videoProbe(30))

	done := make(chan *Result, 1)
	go func() {
		r, _ := c.Run(context.Background(), f.params())
		done <- r
	}()
	<-engine.blocking

	assert.True(t, c.Busy())
	_, err := c.Run(context.Background(), DefaultParams(f.input, filepath.Join(f.dir, "other.mp4")))
	assert.ErrorIs(t, err, ErrBusy)

	require.True(t, c.Cancel())
	r := <-done
	assert.True(t, r.Cancelled)
	assert.False(t, c.Busy())
}

func TestStartReservesBeforeReturning(t *testing.T) {
	f := newFixture(t)
	engine := newFakeEngine(step{block: true})
	c := f.controller(engine, videoProbe(30))

	done := make(chan *Result, 1)
	job, err := c.Start(context.Background(), f.params(), func(r *Result, err error) {
		assert.NoError(t, err)
		done <- r
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, f.input, job.InputPath)
	assert.True(t, c.Busy())

	_, err = c.Start(context.Background(), DefaultParams(f.input, filepath.Join(f.dir, "other.mp4")), nil)
	assert.ErrorIs(t, err, ErrBusy)

	<-engine.blocking
	require.True(t, c.Cancel())
	r := <-done
	assert.True(t, r.Cancelled)
	assert.Equal(t, job.ID, r.JobID)
}

func TestStartRejectsInvalidParams(t *testing.T) {
	f := newFixture(t)
	c := f.controller(newFakeEngine(), videoProbe(30))

	p := f.params()
	p.Padding = -1
	job, err := c.Start(context.Background(), p, func(*Result, error) {
		t.Error("done must not run for a rejected job")
	})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Nil(t, job)
	assert.False(t, c.Busy())
}

func TestRunRespectsFileLock(t *testing.T) {
	f := newFixture(t)
	lockPath := filepath.Join(f.dir, "trimsilence.lock")

	other := flock.New(lockPath)
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	engine := newFakeEngine()
	c := f.controller(engine, videoProbe(30), func(o *Options) { o.LockPath = lockPath })

	_, err = c.Run(context.Background(), f.params())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, engine.Calls())

	require.NoError(t, other.Unlock())
	engine.steps = []step{{}}
	result, err := c.Run(context.Background(), f.params())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRunInvalidParams(t *testing.T) {
	f := newFixture(t)
	c := f.controller(newFakeEngine(), videoProbe(30))

	p := f.params()
	p.Quality = "best"
	_, err := c.Run(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestRunUsesHardwareEncoderWhenRequested(t *testing.T) {
	f := newFixture(t)
	hw := ffmpeg.HWEncoder{Accel: ffmpeg.HWAccelNVENC, Encoder: "h264_nvenc", Available: true}
	policy := ffmpeg.SoftwareOnlyPolicy()
	policy.Hardware = &hw

	for _, useHW := range []bool{true, false} {
		engine := newFakeEngine(step{lines: detectionWithSilence}, step{output: true})
		c := f.controller(engine, videoProbe(30), func(o *Options) {
			o.Policy = policy
			o.Threads = 4
			o.ExtraArgs = []string{"-metadata", "comment=trimmed"}
		})

		p := f.params()
		p.UseHardwareEncoder = useHW
		_, err := c.Run(context.Background(), p)
		require.NoError(t, err)

		encode := engine.Calls()[1]
		if useHW {
			assert.True(t, argsContain(encode, "-c:v h264_nvenc"))
		} else {
			assert.True(t, argsContain(encode, "-c:v libx264"))
		}
		assert.True(t, argsContain(encode, "-threads 4"))
		assert.True(t, argsContain(encode, "-metadata comment=trimmed "+f.output))
	}
}

func TestCancelWithoutJob(t *testing.T) {
	c := NewController(newFakeEngine(), videoProbe(1), Options{})
	assert.False(t, c.Cancel())
	assert.Nil(t, c.Active())
}

func TestUnsubscribeTwice(t *testing.T) {
	c := NewController(newFakeEngine(), videoProbe(1), Options{})
	ch := c.Subscribe()
	c.Unsubscribe(ch)
	c.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

// stepClock advances one second per reading so every progress line passes
// the throttle.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func timeMarker(sec float64) string {
	h := int(sec) / 3600
	m := int(sec) % 3600 / 60
	return fmt.Sprintf("size=N/A time=%02d:%02d:%05.2f bitrate=N/A", h, m, sec-float64(h*3600+m*60))
}
