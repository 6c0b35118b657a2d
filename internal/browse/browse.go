// Package browse lists media directories for the web UI's input picker.
package browse

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gwlsn/trimsilence/internal/ffmpeg"
)

// maxConcurrentProbes limits ffprobe processes started by one Browse call.
const maxConcurrentProbes = 8

// Prober inspects media files. Implemented by *ffmpeg.Prober.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Entry represents a file or directory in the browser
type Entry struct {
	Name      string              `json:"name"`
	Path      string              `json:"path"`
	IsDir     bool                `json:"is_dir"`
	Size      int64               `json:"size"`
	ModTime   time.Time           `json:"mod_time"`
	VideoInfo *ffmpeg.ProbeResult `json:"video_info,omitempty"`
	FileCount int                 `json:"file_count,omitempty"` // For directories: number of video files
}

// BrowseResult contains the result of browsing a directory
type BrowseResult struct {
	Path       string   `json:"path"`
	Parent     string   `json:"parent,omitempty"`
	Entries    []*Entry `json:"entries"`
	VideoCount int      `json:"video_count"`
}

// Browser handles file system browsing with video metadata
type Browser struct {
	prober    Prober
	mediaRoot string

	// Cache for probe results (path -> result)
	cacheMu sync.RWMutex
	cache   map[string]*ffmpeg.ProbeResult
}

// NewBrowser creates a new Browser with the given prober and media root
func NewBrowser(prober Prober, mediaRoot string) *Browser {
	absRoot, err := filepath.Abs(mediaRoot)
	if err != nil {
		absRoot = filepath.Clean(mediaRoot)
	}
	return &Browser{
		prober:    prober,
		mediaRoot: absRoot,
		cache:     make(map[string]*ffmpeg.ProbeResult),
	}
}

// Root returns the absolute media root.
func (b *Browser) Root() string {
	return b.mediaRoot
}

// Contains reports whether path lies inside the media root.
func (b *Browser) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(b.mediaRoot, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Browse returns the contents of a directory. Paths outside the media root
// browse the root instead.
func (b *Browser) Browse(ctx context.Context, path string) (*BrowseResult, error) {
	cleanPath, err := filepath.Abs(path)
	if err != nil || !b.Contains(cleanPath) {
		cleanPath = b.mediaRoot
	}

	entries, err := os.ReadDir(cleanPath)
	if err != nil {
		return nil, err
	}

	result := &BrowseResult{
		Path:    cleanPath,
		Entries: make([]*Entry, 0, len(entries)),
	}
	if cleanPath != b.mediaRoot {
		result.Parent = filepath.Dir(cleanPath)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentProbes)

	for _, e := range entries {
		// Skip hidden files
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		entry := &Entry{
			Name:    e.Name(),
			Path:    filepath.Join(cleanPath, e.Name()),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		switch {
		case e.IsDir():
			entry.FileCount = countVideos(entry.Path)
		case ffmpeg.IsVideoFile(e.Name()):
			result.VideoCount++
			wg.Add(1)
			go func(entry *Entry) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				// Each goroutine owns its entry until wg.Wait
				entry.VideoInfo = b.getProbeResult(ctx, entry.Path)
			}(entry)
		}

		result.Entries = append(result.Entries, entry)
	}

	wg.Wait()

	// Directories first, then by name
	sort.Slice(result.Entries, func(i, j int) bool {
		if result.Entries[i].IsDir != result.Entries[j].IsDir {
			return result.Entries[i].IsDir
		}
		return strings.ToLower(result.Entries[i].Name) < strings.ToLower(result.Entries[j].Name)
	})

	return result, nil
}

// countVideos counts visible video files in a directory (non-recursive for speed)
func countVideos(dirPath string) int {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if ffmpeg.IsVideoFile(e.Name()) {
			count++
		}
	}
	return count
}

// getProbeResult returns a cached or fresh probe result, nil when the file
// cannot be probed.
func (b *Browser) getProbeResult(ctx context.Context, path string) *ffmpeg.ProbeResult {
	b.cacheMu.RLock()
	if result, ok := b.cache[path]; ok {
		b.cacheMu.RUnlock()
		return result
	}
	b.cacheMu.RUnlock()

	result, err := b.prober.Probe(ctx, path)
	if err != nil {
		return nil
	}

	b.cacheMu.Lock()
	b.cache[path] = result
	b.cacheMu.Unlock()

	return result
}

// InvalidateCache removes a specific path from the cache, e.g. after a job
// wrote a new output there.
func (b *Browser) InvalidateCache(path string) {
	b.cacheMu.Lock()
	delete(b.cache, path)
	b.cacheMu.Unlock()
}

// ClearCache clears the probe cache
func (b *Browser) ClearCache() {
	b.cacheMu.Lock()
	b.cache = make(map[string]*ffmpeg.ProbeResult)
	b.cacheMu.Unlock()
}
