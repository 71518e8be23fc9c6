package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// PipelineFormat is the format every [Source] must deliver.
var PipelineFormat = Format{SampleRate: SampleRate, Channels: Channels}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FormatConverter converts native device PCM into [PipelineFormat]. It logs a
// warning once on the first format mismatch and once on corrupt input.
// Create one per stream; it is not designed for shared use across goroutines.
type FormatConverter struct {
	Source Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns pcm in the pipeline format. When the source format already
// matches, pcm is returned unchanged (zero allocation). Channel down-mixing
// happens before resampling so that only one channel is interpolated.
func (c *FormatConverter) Convert(pcm []byte) []byte {
	channels := max(c.Source.Channels, 1)
	if len(pcm)%(2*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: PCM length not aligned to frame size, truncating",
				"bytes", len(pcm),
				"format", c.Source.String(),
			)
		})
		pcm = pcm[:len(pcm)-len(pcm)%(2*channels)]
	}

	if c.Source == PipelineFormat {
		return pcm
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio converter: converting device format",
			"from", c.Source.String(),
			"to", PipelineFormat.String(),
		)
	})

	if channels > 1 {
		pcm = Downmix(pcm, channels)
	}
	if c.Source.SampleRate != SampleRate {
		pcm = ResampleMono16(pcm, c.Source.SampleRate, SampleRate)
	}
	return pcm
}

// Downmix averages interleaved multi-channel int16 PCM into mono. Uses int32
// accumulation and clamps to the int16 range.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := channels * 2
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		base := i * stride
		for ch := range channels {
			j := base + ch*2
			sum += int32(int16(uint16(pcm[j]) | uint16(pcm[j+1])<<8))
		}
		s := clamp16(sum / int32(channels))
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. If the rates match or are invalid, pcm is returned
// unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(uint16(pcm[idx*2]) | uint16(pcm[idx*2+1])<<8)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(uint16(pcm[(idx+1)*2]) | uint16(pcm[(idx+1)*2+1])<<8)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Framer re-slices a continuous PCM stream into fixed [FrameBytes] frames.
// Device buffers rarely line up exactly with the pipeline cadence after
// resampling; Framer carries the remainder over to the next write.
// Not safe for concurrent use.
type Framer struct {
	buf []byte
}

// Write appends pcm and calls emit once for every complete frame. Each frame
// passed to emit is a fresh slice owned by the callee.
func (f *Framer) Write(pcm []byte, emit FrameFunc) {
	f.buf = append(f.buf, pcm...)
	for len(f.buf) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, f.buf[:FrameBytes])
		emit(frame)
		f.buf = f.buf[FrameBytes:]
	}
}

// Reset discards any buffered partial frame.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
