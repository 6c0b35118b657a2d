package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func getTestdataPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata")
}

// requireTool skips the test when an external binary is not installed.
func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH", name)
	}
}

func TestProbe(t *testing.T) {
	testFile := filepath.Join(getTestdataPath(), "talk.mp4")

	// Skip if test file doesn't exist
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Skipf("test file not found: %s", testFile)
	}
	requireTool(t, "ffprobe")

	prober := NewProber("ffprobe")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := prober.Probe(ctx, testFile)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if result.Path != testFile {
		t.Errorf("expected path %s, got %s", testFile, result.Path)
	}
	if result.Size == 0 {
		t.Error("expected non-zero size")
	}
	if result.Duration <= 0 {
		t.Errorf("expected positive duration, got %v", result.Duration)
	}
	if !result.HasVideo() {
		t.Error("expected a video stream")
	}

	t.Logf("Probe result: %+v", result)
}

func TestProbeNonExistent(t *testing.T) {
	requireTool(t, "ffprobe")
	prober := NewProber("ffprobe")

	_, err := prober.Probe(context.Background(), "/nonexistent/file.mkv")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestParseProbeOutput(t *testing.T) {
	output := []byte(`{
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
			{"index": 1, "codec_type": "audio", "codec_name": "aac"},
			{"index": 2, "codec_type": "audio", "codec_name": "opus"}
		],
		"format": {"filename": "in.mp4", "format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "62.500000", "size": "1048576"}
	}`)

	result, err := parseProbeOutput("in.mp4", output)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if result.Duration != 62500*time.Millisecond {
		t.Errorf("expected duration 62.5s, got %v", result.Duration)
	}
	if result.Seconds() != 62.5 {
		t.Errorf("expected 62.5 seconds, got %f", result.Seconds())
	}
	if result.Size != 1048576 {
		t.Errorf("expected size 1048576, got %d", result.Size)
	}
	if result.VideoCodec != "h264" || result.Width != 1920 || result.Height != 1080 {
		t.Errorf("unexpected video metadata: %+v", result)
	}
	if result.AudioCodec != "aac" {
		t.Errorf("expected first audio codec aac, got %s", result.AudioCodec)
	}
	if result.AudioStreams != 2 || !result.HasAudio() {
		t.Errorf("expected 2 audio streams, got %d", result.AudioStreams)
	}
}

func TestParseProbeOutputNoAudio(t *testing.T) {
	output := []byte(`{
		"streams": [{"index": 0, "codec_type": "video", "codec_name": "vp9"}],
		"format": {"duration": "10.0"}
	}`)

	result, err := parseProbeOutput("silent.webm", output)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}
	if result.HasAudio() {
		t.Error("expected HasAudio to be false")
	}
}

func TestParseProbeOutputStreamDurationFallback(t *testing.T) {
	output := []byte(`{
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "duration": "9.5"},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "duration": "10.25"}
		],
		"format": {"duration": "N/A"}
	}`)

	result, err := parseProbeOutput("raw.h264", output)
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}
	if result.Duration != 10250*time.Millisecond {
		t.Errorf("expected longest stream duration 10.25s, got %v", result.Duration)
	}
}

func TestParseProbeOutputErrors(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"invalid json", `{"streams": [`},
		{"no duration", `{"streams": [{"codec_type": "video"}], "format": {}}`},
		{"zero duration", `{"streams": [], "format": {"duration": "0.000"}}`},
	}

	for _, tt := range tests {
		if _, err := parseProbeOutput("x", []byte(tt.output)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"30/1", 30.0},
		{"30000/1001", 29.97002997},
		{"24/1", 24.0},
		{"0/0", 0},
		{"", 0},
		{"60", 60.0},
		{"25/0", 0},
	}

	for _, tt := range tests {
		result := parseFrameRate(tt.input)
		diff := result - tt.expected
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.01 {
			t.Errorf("parseFrameRate(%s) = %f, expected %f", tt.input, result, tt.expected)
		}
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/media/lecture.mkv", true},
		{"/media/lecture.mp4", true},
		{"/media/lecture.MOV", true},
		{"/media/notes.pdf", false},
		{"/media/podcast.mp3", false},
	}

	for _, tt := range tests {
		result := IsVideoFile(tt.path)
		if result != tt.expected {
			t.Errorf("IsVideoFile(%s) = %v, expected %v", tt.path, result, tt.expected)
		}
	}
}
