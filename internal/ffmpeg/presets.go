package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Quality is the user-facing speed/size tradeoff.
type Quality string

const (
	QualityFast   Quality = "fast"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// DefaultQuality is used when a job does not name one.
const DefaultQuality = QualityMedium

// ParseQuality validates a quality name. The empty string maps to the default.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case "":
		return DefaultQuality, nil
	case QualityFast, QualityMedium, QualityHigh:
		return q, nil
	default:
		return "", fmt.Errorf("unknown quality %q (want fast, medium or high)", s)
	}
}

// Qualities lists the accepted presets in order of increasing output quality.
func Qualities() []Quality {
	return []Quality{QualityFast, QualityMedium, QualityHigh}
}

// encoderSettings defines FFmpeg settings for one encoder
type encoderSettings struct {
	qualityFlag string             // -crf, -cq, -global_quality, -q:v, ...
	quality     map[Quality]string // Quality value per preset
	speedFlag   string             // -preset or empty
	speed       map[Quality]string // Speed value per preset
	extraArgs   []string           // Additional encoder-specific args
	software    bool               // CPU encoder, needs an explicit pixel format
}

var encoderConfigs = map[string]encoderSettings{
	"libx264": {
		qualityFlag: "-crf",
		quality:     map[Quality]string{QualityFast: "26", QualityMedium: "23", QualityHigh: "20"},
		speedFlag:   "-preset",
		speed:       map[Quality]string{QualityFast: "veryfast", QualityMedium: "medium", QualityHigh: "slow"},
		software:    true,
	},
	"libopenh264": {
		// OpenH264 has no CRF mode; bitrate targets are the only knob.
		qualityFlag: "-b:v",
		quality:     map[Quality]string{QualityFast: "2M", QualityMedium: "4M", QualityHigh: "8M"},
		software:    true,
	},
	"mpeg4": {
		qualityFlag: "-q:v",
		quality:     map[Quality]string{QualityFast: "7", QualityMedium: "5", QualityHigh: "3"},
		software:    true,
	},
	"h264_nvenc": {
		qualityFlag: "-cq",
		quality:     map[Quality]string{QualityFast: "28", QualityMedium: "24", QualityHigh: "20"},
		speedFlag:   "-preset",
		speed:       map[Quality]string{QualityFast: "p2", QualityMedium: "p4", QualityHigh: "p6"},
		extraArgs:   []string{"-rc", "vbr"},
	},
	"h264_qsv": {
		qualityFlag: "-global_quality",
		quality:     map[Quality]string{QualityFast: "28", QualityMedium: "24", QualityHigh: "20"},
		speedFlag:   "-preset",
		speed:       map[Quality]string{QualityFast: "veryfast", QualityMedium: "medium", QualityHigh: "slow"},
	},
	"h264_amf": {
		qualityFlag: "-qp_i",
		quality:     map[Quality]string{QualityFast: "28", QualityMedium: "24", QualityHigh: "20"},
		extraArgs:   []string{"-rc", "cqp"},
	},
	"h264_videotoolbox": {
		// VideoToolbox quality scale runs 1-100, higher is better.
		qualityFlag: "-q:v",
		quality:     map[Quality]string{QualityFast: "50", QualityMedium: "60", QualityHigh: "70"},
		extraArgs:   []string{"-allow_sw", "1"},
	},
}

// audioBitrates maps each preset to the AAC bitrate of the output.
var audioBitrates = map[Quality]string{
	QualityFast:   "128k",
	QualityMedium: "160k",
	QualityHigh:   "192k",
}

// CodecArgs returns the output-side codec flags for an encode pass:
// video encoder and quality, audio encoder, thread count and container flags.
func CodecArgs(enc HWEncoder, quality Quality, threads int, outputPath string) []string {
	settings, ok := encoderConfigs[enc.Encoder]
	if !ok {
		// Unknown encoder names still get a usable command line.
		settings = encoderSettings{software: !enc.IsHardware()}
	}

	args := []string{"-c:v", enc.Encoder}
	if settings.speedFlag != "" {
		if v := settings.speed[quality]; v != "" {
			args = append(args, settings.speedFlag, v)
		}
	}
	if settings.qualityFlag != "" {
		if v := settings.quality[quality]; v != "" {
			args = append(args, settings.qualityFlag, v)
		}
	}
	args = append(args, settings.extraArgs...)

	// amf takes separate P-frame quantizer alongside the I-frame one.
	if enc.Encoder == "h264_amf" {
		args = append(args, "-qp_p", settings.quality[quality])
	}

	if settings.software {
		args = append(args, "-pix_fmt", "yuv420p")
	}

	args = append(args, AudioArgs(quality)...)

	if threads > 0 {
		args = append(args, "-threads", fmt.Sprint(threads))
	}

	args = append(args, ContainerArgs(outputPath)...)
	return args
}

// AudioArgs returns the AAC encoder flags for a preset.
func AudioArgs(quality Quality) []string {
	bitrate, ok := audioBitrates[quality]
	if !ok {
		bitrate = audioBitrates[DefaultQuality]
	}
	return []string{"-c:a", "aac", "-b:a", bitrate}
}

// ContainerArgs returns muxer flags based on the output extension.
func ContainerArgs(outputPath string) []string {
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".mp4", ".m4v", ".mov":
		return []string{"-movflags", "+faststart"}
	default:
		return nil
	}
}
