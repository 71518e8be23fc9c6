// Package recording collects the mixed frames of a session and packages them
// as a WAV file when the session ends.
package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/cuecard/pkg/audio"
)

// Recording is a finished session recording.
type Recording struct {
	// WAV is the complete file, header included.
	WAV []byte

	// Frames is the number of mixed frames it contains.
	Frames int

	// CapturedAt is the time Finish was called.
	CapturedAt time.Time
}

// PCMBytes returns the size of the audio payload.
func (r *Recording) PCMBytes() int { return len(r.WAV) - HeaderSize }

// Duration returns the audio length.
func (r *Recording) Duration() time.Duration {
	samples := r.PCMBytes() / audio.BytesPerSample
	return time.Duration(samples) * time.Second / audio.SampleRate
}

// FileName returns the default file name for the recording.
func (r *Recording) FileName() string {
	return "cuecard-" + r.CapturedAt.Format("20060102-150405") + ".wav"
}

// Save writes the recording into dir under FileName and returns the path.
func (r *Recording) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("recording: save: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	if err := os.WriteFile(path, r.WAV, 0o644); err != nil {
		return "", fmt.Errorf("recording: save: %w", err)
	}
	return path, nil
}

// Aggregator buffers mixed frames between Start and Finish. Frames pushed
// while it is not started are ignored.
//
// All methods are safe for concurrent use.
type Aggregator struct {
	now func() time.Time

	mu      sync.Mutex
	started bool
	frames  [][]byte
	size    int
}

// NewAggregator creates an idle Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Start discards anything buffered and begins collecting.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	a.frames = nil
	a.size = 0
}

// Push appends a copy of frame. It is a no-op unless the aggregator is
// started.
func (a *Aggregator) Push(frame []byte) {
	if len(frame) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}
	a.frames = append(a.frames, append([]byte(nil), frame...))
	a.size += len(frame)
}

// Active reports whether the aggregator is collecting.
func (a *Aggregator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Finish stops collecting and returns the recording. It returns false when
// nothing was collected, including when Start was never called.
func (a *Aggregator) Finish() (*Recording, bool) {
	a.mu.Lock()
	frames, size := a.frames, a.size
	a.started = false
	a.frames = nil
	a.size = 0
	a.mu.Unlock()

	if size == 0 {
		return nil, false
	}

	pcm := make([]byte, 0, size)
	for _, f := range frames {
		pcm = append(pcm, f...)
	}
	return &Recording{
		WAV:        EncodeWAV(pcm),
		Frames:     len(frames),
		CapturedAt: a.now(),
	}, true
}
