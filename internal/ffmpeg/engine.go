package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gwlsn/trimsilence/internal/logger"
)

// stderrTailLines is how much engine output is kept for error reports.
const stderrTailLines = 20

// terminateGrace is how long a terminated process gets before it is killed.
const terminateGrace = 5 * time.Second

// EngineError represents an engine run that exited unsuccessfully.
type EngineError struct {
	Err      error
	ExitCode int    // -1 when the process did not exit normally
	Stderr   string // Last lines of diagnostic output
}

func (e *EngineError) Error() string {
	if last := lastLine(e.Stderr); last != "" {
		return fmt.Sprintf("%v: %s", e.Err, last)
	}
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Process is one running engine invocation.
type Process interface {
	// Lines delivers diagnostic output in order, one line at a time. It is
	// closed when the process closes its output. Callers must drain it.
	Lines() <-chan string
	// Wait blocks until the process exits. A non-zero exit is an *EngineError.
	Wait() error
	// Terminate asks the process to stop. Safe to call from any goroutine,
	// more than once, and after exit.
	Terminate() error
	// Terminated reports whether Terminate was called.
	Terminated() bool
}

// Engine spawns ffmpeg processes.
type Engine struct {
	ffmpegPath string
}

// NewEngine creates an Engine with the given ffmpeg path
func NewEngine(ffmpegPath string) *Engine {
	return &Engine{ffmpegPath: ffmpegPath}
}

// Path returns the ffmpeg binary this engine runs.
func (e *Engine) Path() string {
	return e.ffmpegPath
}

// Start launches ffmpeg with args. Cancelling ctx terminates the process.
func (e *Engine) Start(ctx context.Context, args []string) (Process, error) {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.Cancel = func() error { return terminateProcess(cmd.Process) }
	cmd.WaitDelay = terminateGrace

	logger.Debug("FFmpeg command", "args", strings.Join(args, " "))

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &process{
		cmd:        cmd,
		lines:      make(chan string, 64),
		readerDone: make(chan struct{}),
		tail:       newTailBuffer(stderrTailLines),
	}
	go p.read(stderr)
	return p, nil
}

type process struct {
	cmd        *exec.Cmd
	lines      chan string
	readerDone chan struct{}
	tail       *tailBuffer
	terminated atomic.Bool

	waitOnce sync.Once
	waitErr  error
}

func (p *process) Lines() <-chan string { return p.lines }

func (p *process) Terminated() bool { return p.terminated.Load() }

func (p *process) read(r io.Reader) {
	defer close(p.readerDone)
	defer close(p.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.tail.Add(line)
		p.lines <- line
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debug("FFmpeg output reader stopped", "error", err)
	}
}

func (p *process) Wait() error {
	p.waitOnce.Do(func() {
		// The pipe must be fully read before cmd.Wait closes it.
		<-p.readerDone
		if err := p.cmd.Wait(); err != nil {
			exitCode := -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			}
			p.waitErr = &EngineError{
				Err:      fmt.Errorf("ffmpeg failed: %w", err),
				ExitCode: exitCode,
				Stderr:   p.tail.String(),
			}
			if !p.Terminated() {
				logger.Error("FFmpeg failed", "error", err, "stderr", p.tail.Last(5))
			}
		}
	})
	return p.waitErr
}

func (p *process) Terminate() error {
	p.terminated.Store(true)
	err := terminateProcess(p.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// terminateProcess sends SIGTERM where signals exist and kills otherwise.
func terminateProcess(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return proc.Kill()
	}
	return proc.Signal(syscall.SIGTERM)
}

// splitLines is a bufio.SplitFunc that treats \r, \n and \r\n as line
// terminators. ffmpeg rewrites its stats line in place with bare \r.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Might be the first half of \r\n; wait for more input.
			return 0, nil, nil
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

// Last returns up to k trailing lines joined with " | ".
func (t *tailBuffer) Last(k int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	if len(lines) > k {
		lines = lines[len(lines)-k:]
	}
	return strings.Join(lines, " | ")
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
