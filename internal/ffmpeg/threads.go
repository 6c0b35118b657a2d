package ffmpeg

import (
	"fmt"
	"runtime"

	"github.com/google/shlex"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ThreadCount resolves the encoder thread count. A positive configured value
// wins; otherwise the physical core count is used, falling back to the
// logical CPU count when the host does not report cores.
func ThreadCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		return cores
	}
	return runtime.NumCPU()
}

// SplitExtraArgs splits a user-supplied argument string with shell quoting
// rules, e.g. `-metadata title="My Talk"`.
func SplitExtraArgs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid extra encode args: %w", err)
	}
	return args, nil
}
