package recording

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"

	"github.com/MrWong99/cuecard/pkg/audio"
)

// HeaderSize is the size of the canonical WAV header written by WriteWAV.
const HeaderSize = 44

// EncodeWAV wraps pipeline PCM (16 kHz, mono, s16le) in a WAV container.
func EncodeWAV(pcm []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(pcm))
	// Writes to a bytes.Buffer cannot fail.
	_ = WriteWAV(&buf, pcm)
	return buf.Bytes()
}

// WriteWAV writes pipeline PCM to out as a canonical 44-byte-header WAV
// stream.
func WriteWAV(out io.Writer, pcm []byte) error {
	const audioFormatPCM = 1

	dataSize := uint32(len(pcm))
	byteRate := uint32(audio.SampleRate * audio.Channels * audio.BytesPerSample)
	blockAlign := uint16(audio.Channels * audio.BytesPerSample)

	w := bufio.NewWriter(out)

	// RIFF header.
	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, 36+dataSize)
	w.WriteString("WAVE")

	// fmt chunk.
	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(w, binary.LittleEndian, uint16(audio.Channels))
	binary.Write(w, binary.LittleEndian, uint32(audio.SampleRate))
	binary.Write(w, binary.LittleEndian, byteRate)
	binary.Write(w, binary.LittleEndian, blockAlign)
	binary.Write(w, binary.LittleEndian, uint16(audio.BitsPerSample))

	// data chunk.
	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, dataSize)
	w.Write(pcm)

	// bufio.Writer keeps the first error and reports it here.
	return w.Flush()
}

// Info describes a decoded WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	PCMBytes   int64
	Duration   time.Duration
}

// String formats the info for humans.
func (i Info) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d-bit, %d bytes PCM, %s",
		i.SampleRate, i.Channels, i.BitDepth, i.PCMBytes, i.Duration.Round(time.Millisecond))
}

// Inspect decodes the header of a WAV stream.
func Inspect(r io.ReadSeeker) (Info, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return Info{}, fmt.Errorf("recording: inspect: %w", err)
		}
		return Info{}, fmt.Errorf("recording: inspect: not a valid WAV file")
	}
	// PCMSize is only known once the decoder reaches the data chunk.
	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("recording: inspect: %w", err)
	}
	bytesPerSec := int64(d.SampleRate) * int64(d.NumChans) * int64(d.BitDepth) / 8
	if bytesPerSec <= 0 {
		return Info{}, fmt.Errorf("recording: inspect: invalid format %d Hz, %d ch, %d-bit", d.SampleRate, d.NumChans, d.BitDepth)
	}
	pcmBytes := d.PCMLen()
	dur := time.Duration(pcmBytes) * time.Second / time.Duration(bytesPerSec)
	return Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		PCMBytes:   pcmBytes,
		Duration:   dur,
	}, nil
}
