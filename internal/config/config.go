package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
)

// Defaults for silence detection. Padding is subtracted from both ends of
// each detected silence so cuts never clip speech.
const (
	DefaultThresholdDB        = -35.0
	DefaultMinSilenceDuration = 0.5
	DefaultPadding            = 0.05
)

// Bounds applied by Validate.
const (
	minThresholdDB  = -100.0
	maxThresholdDB  = 0.0
	minSilenceFloor = 0.01
	maxPadding      = 5.0
	maxThreads      = 256
)

type Config struct {
	// MediaPath is the root directory the web UI may browse (serve only)
	MediaPath string `yaml:"media_path"`

	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// TempPath is the parent of per-job temp directories.
	// If empty, the system temp directory is used.
	TempPath string `yaml:"temp_path"`

	// DataDir holds the job history database and the job lock file.
	// If empty, the directory of the config file is used.
	DataDir string `yaml:"data_dir"`

	// ThresholdDB is the loudness below which audio counts as silence
	ThresholdDB float64 `yaml:"threshold_db"`

	// MinSilenceDuration is the shortest silence, in seconds, worth removing
	MinSilenceDuration float64 `yaml:"min_silence_duration"`

	// Padding in seconds is kept on each side of a removed silence
	Padding float64 `yaml:"padding"`

	// Quality is the encode preset: fast, medium or high
	Quality string `yaml:"quality"`

	// NormalizeAudio applies EBU R128 loudness normalization to the output
	NormalizeAudio bool `yaml:"normalize_audio"`

	// UseHardwareEncoder prefers a detected GPU encoder over software
	UseHardwareEncoder bool `yaml:"use_hardware_encoder"`

	// Threads passed to the encoder; 0 uses the physical core count
	Threads int `yaml:"threads"`

	// ExtraEncodeArgs are appended to every encode, split with shell quoting
	ExtraEncodeArgs string `yaml:"extra_encode_args"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MediaPath:          "/media",
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		LogLevel:           "info",
		TempPath:           "", // system temp dir
		ThresholdDB:        DefaultThresholdDB,
		MinSilenceDuration: DefaultMinSilenceDuration,
		Padding:            DefaultPadding,
		Quality:            string(ffmpeg.DefaultQuality),
		NormalizeAudio:     false,
		UseHardwareEncoder: true,
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Apply defaults for empty values
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Quality == "" {
		cfg.Quality = string(ffmpeg.DefaultQuality)
	}

	return cfg, nil
}

// ApplyEnv overrides paths from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MEDIA_PATH"); v != "" {
		c.MediaPath = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		c.FFmpegPath = v
	}
	if v := os.Getenv("FFPROBE_PATH"); v != "" {
		c.FFprobePath = v
	}
	if v := os.Getenv("TEMP_PATH"); v != "" {
		c.TempPath = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate clamps numeric settings into range and rejects values that
// cannot be clamped. It returns the adjustments it made, for logging.
func (c *Config) Validate() ([]string, error) {
	var adjusted []string

	if c.ThresholdDB > maxThresholdDB {
		adjusted = append(adjusted, fmt.Sprintf("threshold_db %v clamped to %v", c.ThresholdDB, maxThresholdDB))
		c.ThresholdDB = maxThresholdDB
	}
	if c.ThresholdDB < minThresholdDB {
		adjusted = append(adjusted, fmt.Sprintf("threshold_db %v clamped to %v", c.ThresholdDB, minThresholdDB))
		c.ThresholdDB = minThresholdDB
	}
	if c.MinSilenceDuration < minSilenceFloor {
		adjusted = append(adjusted, fmt.Sprintf("min_silence_duration %v clamped to %v", c.MinSilenceDuration, minSilenceFloor))
		c.MinSilenceDuration = minSilenceFloor
	}
	if c.Padding < 0 {
		adjusted = append(adjusted, fmt.Sprintf("padding %v clamped to 0", c.Padding))
		c.Padding = 0
	}
	if c.Padding > maxPadding {
		adjusted = append(adjusted, fmt.Sprintf("padding %v clamped to %v", c.Padding, maxPadding))
		c.Padding = maxPadding
	}
	if c.Threads < 0 {
		adjusted = append(adjusted, fmt.Sprintf("threads %d clamped to 0", c.Threads))
		c.Threads = 0
	}
	if c.Threads > maxThreads {
		adjusted = append(adjusted, fmt.Sprintf("threads %d clamped to %d", c.Threads, maxThreads))
		c.Threads = maxThreads
	}

	q, err := ffmpeg.ParseQuality(c.Quality)
	if err != nil {
		return adjusted, err
	}
	c.Quality = string(q)

	if _, err := ffmpeg.SplitExtraArgs(c.ExtraEncodeArgs); err != nil {
		return adjusted, err
	}

	return adjusted, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetTempDir returns the parent directory for job temp directories
func (c *Config) GetTempDir() string {
	if c.TempPath != "" {
		return c.TempPath
	}
	return os.TempDir()
}

// GetDataDir returns the directory for the database and lock file.
// configPath is used when DataDir is unset.
func (c *Config) GetDataDir(configPath string) string {
	if c.DataDir != "" {
		return c.DataDir
	}
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		return "config"
	}
	return dir
}
