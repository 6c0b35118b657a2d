package ffmpeg

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/gwlsn/trimsilence/internal/logger"
)

// HWAccel represents a hardware acceleration method
type HWAccel string

const (
	HWAccelNone         HWAccel = "none"         // Software encoding
	HWAccelVideoToolbox HWAccel = "videotoolbox" // Apple Silicon / Intel Mac
	HWAccelNVENC        HWAccel = "nvenc"        // NVIDIA GPU
	HWAccelQSV          HWAccel = "qsv"          // Intel Quick Sync
	HWAccelAMF          HWAccel = "amf"          // AMD (Windows)
)

// HWEncoder contains info about an H.264 encoder
type HWEncoder struct {
	Accel       HWAccel `json:"accel"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Encoder     string  `json:"encoder"` // FFmpeg encoder name (e.g., h264_nvenc)
	Available   bool    `json:"available"`
}

// IsHardware returns true for GPU-backed encoders
func (e HWEncoder) IsHardware() bool {
	return e.Accel != HWAccelNone
}

// hardwareDefs lists GPU encoders per platform in order of preference.
// Only encoders that accept system-memory frames are listed, because the
// trim/concat graph runs on the CPU.
var hardwareDefs = map[string][]HWEncoder{
	"darwin": {
		{Accel: HWAccelVideoToolbox, Name: "VideoToolbox H.264", Description: "Apple hardware H.264 encoding", Encoder: "h264_videotoolbox"},
	},
	"windows": {
		{Accel: HWAccelNVENC, Name: "NVENC H.264", Description: "NVIDIA GPU hardware H.264 encoding", Encoder: "h264_nvenc"},
		{Accel: HWAccelQSV, Name: "Quick Sync H.264", Description: "Intel Quick Sync hardware H.264 encoding", Encoder: "h264_qsv"},
		{Accel: HWAccelAMF, Name: "AMF H.264", Description: "AMD GPU hardware H.264 encoding", Encoder: "h264_amf"},
	},
	"linux": {
		{Accel: HWAccelNVENC, Name: "NVENC H.264", Description: "NVIDIA GPU hardware H.264 encoding", Encoder: "h264_nvenc"},
		{Accel: HWAccelQSV, Name: "Quick Sync H.264", Description: "Intel Quick Sync hardware H.264 encoding", Encoder: "h264_qsv"},
	},
}

// softwareDefs are tried in order; LGPL builds of ffmpeg ship without libx264.
var softwareDefs = []HWEncoder{
	{Accel: HWAccelNone, Name: "Software H.264 (x264)", Description: "CPU-based H.264 encoding (libx264)", Encoder: "libx264"},
	{Accel: HWAccelNone, Name: "Software H.264 (OpenH264)", Description: "CPU-based H.264 encoding (libopenh264)", Encoder: "libopenh264"},
	{Accel: HWAccelNone, Name: "Software MPEG-4", Description: "CPU-based MPEG-4 Part 2 encoding", Encoder: "mpeg4"},
}

// EncoderPolicy is the result of the startup encoder probe. It is computed
// once per process and treated as read-only afterwards.
type EncoderPolicy struct {
	// Hardware is the preferred GPU encoder, or nil when none works.
	Hardware *HWEncoder `json:"hardware,omitempty"`
	// Software is always set.
	Software HWEncoder `json:"software"`
	// Candidates lists every encoder considered, with availability.
	Candidates []HWEncoder `json:"candidates"`
}

// Select returns the encoder for a job: hardware when available and wanted,
// software otherwise.
func (p EncoderPolicy) Select(useHardware bool) HWEncoder {
	if useHardware && p.Hardware != nil {
		return *p.Hardware
	}
	return p.Software
}

// SoftwareOnlyPolicy is used when detection is skipped or fails.
func SoftwareOnlyPolicy() EncoderPolicy {
	sw := softwareDefs[0]
	sw.Available = true
	return EncoderPolicy{Software: sw, Candidates: []HWEncoder{sw}}
}

// encoderTester runs a one-frame test encode; swapped out in tests.
type encoderTester func(ctx context.Context, ffmpegPath, encoder string) bool

// DetectEncoders probes FFmpeg for its encoder list and picks the best GPU
// encoder for this host. Any probe failure falls back to software.
func DetectEncoders(ctx context.Context, ffmpegPath string) EncoderPolicy {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		logger.Warn("Encoder probe failed, using software encoding", "error", err)
		return SoftwareOnlyPolicy()
	}

	return buildPolicy(ctx, ffmpegPath, string(output), runtime.GOOS, testEncoder)
}

// buildPolicy selects encoders from the output of `ffmpeg -encoders`.
func buildPolicy(ctx context.Context, ffmpegPath, encoderList, goos string, test encoderTester) EncoderPolicy {
	listed := parseEncoderList(encoderList)
	policy := EncoderPolicy{}

	for _, def := range hardwareDefs[goos] {
		enc := def
		if listed[enc.Encoder] && policy.Hardware == nil {
			// Listing only means ffmpeg was built with it; the GPU may be absent.
			enc.Available = test == nil || test(ctx, ffmpegPath, enc.Encoder)
			if enc.Available {
				hw := enc
				policy.Hardware = &hw
			}
		}
		policy.Candidates = append(policy.Candidates, enc)
	}

	software := SoftwareOnlyPolicy().Software
	found := false
	for _, def := range softwareDefs {
		enc := def
		enc.Available = listed[enc.Encoder]
		if enc.Available && !found {
			software = enc
			found = true
		}
		policy.Candidates = append(policy.Candidates, enc)
	}
	policy.Software = software

	return policy
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output.
// Each entry line looks like " V....D libx264   libx264 H.264 / AVC ...".
func parseEncoderList(output string) map[string]bool {
	names := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags := fields[0]
		if len(flags) != 6 || strings.Trim(flags, "VASFXBD.") != "" {
			continue
		}
		// The legend block uses the same flag layout with "=" as the name.
		if fields[1] == "=" {
			continue
		}
		names[fields[1]] = true
	}
	return names
}

// testEncoder tries a quick test encode to verify hardware encoder actually works
func testEncoder(ctx context.Context, ffmpegPath, encoder string) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Use 256x256 - some hardware encoders (QSV) have minimum resolution requirements
	args := []string{
		"-hide_banner",
		"-f", "lavfi",
		"-i", "color=c=black:s=256x256:d=0.1",
		"-frames:v", "1",
		"-c:v", encoder,
		"-f", "null",
		"-",
	}
	if err := exec.CommandContext(ctx, ffmpegPath, args...).Run(); err != nil {
		logger.Debug("Hardware encoder test failed", "encoder", encoder, "error", err)
		return false
	}
	return true
}
