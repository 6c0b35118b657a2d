package jobs

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
)

// Detection parameter limits
const (
	MinThresholdDB = -100.0
	MaxThresholdDB = 0.0

	MinSilenceDurationFloor = 0.01
	MaxSilenceDuration      = 60.0

	MaxPadding = 5.0
)

// Default detection parameters.
const (
	DefaultThresholdDB        = -35.0
	DefaultMinSilenceDuration = 0.5
	DefaultPadding            = 0.05
)

// Params are the inputs of one job as supplied by the host shell.
type Params struct {
	InputPath          string  `json:"input_path"`
	OutputPath         string  `json:"output_path"`
	ThresholdDB        float64 `json:"threshold_db"`
	MinSilenceDuration float64 `json:"min_silence_duration"`
	Padding            float64 `json:"padding"`
	Quality            string  `json:"quality"`
	NormalizeAudio     bool    `json:"normalize_audio"`
	UseHardwareEncoder bool    `json:"use_hardware_encoder"`
}

// DefaultParams returns params with the default detection settings.
func DefaultParams(input, output string) Params {
	return Params{
		InputPath:          input,
		OutputPath:         output,
		ThresholdDB:        DefaultThresholdDB,
		MinSilenceDuration: DefaultMinSilenceDuration,
		Padding:            DefaultPadding,
		Quality:            string(ffmpeg.DefaultQuality),
		UseHardwareEncoder: true,
	}
}

// OutputSuffix is inserted before the extension by DefaultOutputPath.
const OutputSuffix = ".trimmed"

// DefaultOutputPath places the output next to the input:
// /media/talk.mov -> /media/talk.trimmed.mov. Inputs without an extension
// get .mp4.
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if ext == "" {
		ext = ".mp4"
	}
	return base + OutputSuffix + ext
}

// Validate checks the params and returns an ErrInvalidParams error
// describing the first problem found.
func (p Params) Validate() error {
	if p.InputPath == "" {
		return invalidParamsError("input path is required")
	}
	if p.OutputPath == "" {
		return invalidParamsError("output path is required")
	}
	if samePath(p.InputPath, p.OutputPath) {
		return invalidParamsError("output path must differ from input path")
	}
	info, err := os.Stat(p.InputPath)
	if err != nil {
		return invalidParamsError("input %s: %v", p.InputPath, err)
	}
	if info.IsDir() {
		return invalidParamsError("input %s is a directory", p.InputPath)
	}
	if dir := filepath.Dir(p.OutputPath); dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return invalidParamsError("output directory %s does not exist", dir)
		}
	}

	if !inRange(p.ThresholdDB, MinThresholdDB, MaxThresholdDB) {
		return invalidParamsError("threshold_db %v outside [%v, %v]", p.ThresholdDB, MinThresholdDB, MaxThresholdDB)
	}
	if !inRange(p.MinSilenceDuration, MinSilenceDurationFloor, MaxSilenceDuration) {
		return invalidParamsError("min_silence_duration %v outside [%v, %v]", p.MinSilenceDuration, MinSilenceDurationFloor, MaxSilenceDuration)
	}
	if !inRange(p.Padding, 0, MaxPadding) {
		return invalidParamsError("padding %v outside [0, %v]", p.Padding, MaxPadding)
	}
	if _, err := ffmpeg.ParseQuality(p.Quality); err != nil {
		return invalidParamsError("%v", err)
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	if absA == absB {
		return true
	}
	// Catches hard links and case-insensitive filesystems.
	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}
