package ffmpeg

import (
	"testing"
)

func TestThreadCount(t *testing.T) {
	if got := ThreadCount(6); got != 6 {
		t.Errorf("ThreadCount(6) = %d, expected configured value", got)
	}
	if got := ThreadCount(0); got < 1 {
		t.Errorf("ThreadCount(0) = %d, expected at least one thread", got)
	}
	if got := ThreadCount(-2); got < 1 {
		t.Errorf("ThreadCount(-2) = %d, expected at least one thread", got)
	}
}

func TestSplitExtraArgs(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
		wantErr  bool
	}{
		{"", nil, false},
		{"-tune film", []string{"-tune", "film"}, false},
		{`-metadata title="My Talk" -map_metadata -1`, []string{"-metadata", "title=My Talk", "-map_metadata", "-1"}, false},
		{`-metadata 'comment=it works'`, []string{"-metadata", "comment=it works"}, false},
		{`-metadata "unterminated`, nil, true},
	}

	for _, tt := range tests {
		got, err := SplitExtraArgs(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitExtraArgs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.expected) {
			t.Errorf("SplitExtraArgs(%q) = %q, expected %q", tt.input, got, tt.expected)
			continue
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("SplitExtraArgs(%q)[%d] = %q, expected %q", tt.input, i, got[i], tt.expected[i])
			}
		}
	}
}
