package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/gwlsn/trimsilence/internal/filtergraph"
)

// DetectArgs builds the analysis invocation. Output goes to the null muxer;
// silencedetect reports on stderr.
func DetectArgs(inputPath string, thresholdDB, minSilence float64) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-af", SilenceDetectFilter(thresholdDB, minSilence),
		"-f", "null",
		"-",
	}
}

// SilenceDetectFilter renders the silencedetect clause, e.g.
// "silencedetect=noise=-35dB:d=0.5".
func SilenceDetectFilter(thresholdDB, minSilence float64) string {
	return fmt.Sprintf("silencedetect=noise=%sdB:d=%s",
		strconv.FormatFloat(thresholdDB, 'f', -1, 64),
		strconv.FormatFloat(minSilence, 'f', -1, 64))
}

// EncodeArgs builds the trim/concat encode invocation. codecArgs come from
// CodecArgs; extraArgs are user-supplied and go right before the output.
func EncodeArgs(inputPath, scriptPath string, codecArgs, extraArgs []string, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-filter_complex_script", scriptPath,
		"-map", "[" + filtergraph.OutputVideoPad + "]",
		"-map", "[" + filtergraph.OutputAudioPad + "]",
	}
	args = append(args, codecArgs...)
	args = append(args, extraArgs...)
	return append(args, outputPath)
}

// NormalizeArgs builds the single-pass loudness normalization used when no
// silence was found. Video is stream-copied.
func NormalizeArgs(inputPath string, quality Quality, extraArgs []string, outputPath string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-map", "0:v?",
		"-map", "0:a:0",
		"-c:v", "copy",
		"-af", filtergraph.LoudnormFilter(),
	}
	args = append(args, AudioArgs(quality)...)
	args = append(args, ContainerArgs(outputPath)...)
	args = append(args, extraArgs...)
	return append(args, outputPath)
}
