package recording

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/MrWong99/cuecard/pkg/audio"
)

func frame(n int, fill byte) []byte { return bytes.Repeat([]byte{fill}, n) }

func TestAggregator_RoundTrip(t *testing.T) {
	t.Parallel()

	f1, f2, f3 := frame(audio.FrameBytes, 1), frame(audio.FrameBytes, 2), frame(640, 3)
	a := NewAggregator()
	a.Start()
	a.Push(f1)
	a.Push(f2)
	a.Push(f3)

	rec, ok := a.Finish()
	if !ok {
		t.Fatal("Finish returned no recording")
	}
	buf := rec.WAV

	if got := string(buf[0:4]); got != "RIFF" {
		t.Errorf("bytes 0-3 = %q, want RIFF", got)
	}
	if got := string(buf[8:12]); got != "WAVE" {
		t.Errorf("bytes 8-11 = %q, want WAVE", got)
	}
	if got := string(buf[36:40]); got != "data" {
		t.Errorf("bytes 36-39 = %q, want data", got)
	}

	wantData := uint32(len(f1) + len(f2) + len(f3))
	if got := binary.LittleEndian.Uint32(buf[40:44]); got != wantData {
		t.Errorf("data length = %d, want %d", got, wantData)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); got != 36+wantData {
		t.Errorf("RIFF size = %d, want %d", got, 36+wantData)
	}
	if len(buf) != HeaderSize+int(wantData) {
		t.Errorf("total length = %d, want %d", len(buf), HeaderSize+int(wantData))
	}
	if !bytes.Equal(buf[HeaderSize:], append(append(append([]byte{}, f1...), f2...), f3...)) {
		t.Error("payload is not the concatenation of the pushed frames")
	}
	if rec.Frames != 3 {
		t.Errorf("Frames = %d, want 3", rec.Frames)
	}
	if rec.PCMBytes() != int(wantData) {
		t.Errorf("PCMBytes() = %d, want %d", rec.PCMBytes(), wantData)
	}
}

func TestAggregator_FinishWithoutStart(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Push(frame(10, 1))
	if rec, ok := a.Finish(); ok || rec != nil {
		t.Errorf("Finish without Start = (%v, %v), want (nil, false)", rec, ok)
	}
}

func TestAggregator_EmptySession(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Start()
	if _, ok := a.Finish(); ok {
		t.Error("empty session should produce no recording")
	}
}

func TestAggregator_FinishResets(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Start()
	a.Push(frame(4, 1))
	if _, ok := a.Finish(); !ok {
		t.Fatal("first Finish should produce a recording")
	}
	if a.Active() {
		t.Error("aggregator should be inactive after Finish")
	}
	a.Push(frame(4, 1))
	if _, ok := a.Finish(); ok {
		t.Error("second Finish should produce nothing")
	}
}

func TestAggregator_StartDiscardsPrevious(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Start()
	a.Push(frame(8, 1))
	a.Start()
	a.Push(frame(4, 2))
	rec, ok := a.Finish()
	if !ok {
		t.Fatal("expected a recording")
	}
	if rec.PCMBytes() != 4 {
		t.Errorf("PCMBytes() = %d, want 4", rec.PCMBytes())
	}
}

func TestAggregator_PushCopies(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.Start()
	f := frame(4, 7)
	a.Push(f)
	f[0] = 99
	rec, _ := a.Finish()
	if rec.WAV[HeaderSize] != 7 {
		t.Errorf("recorded byte = %d, want 7; Push must copy its input", rec.WAV[HeaderSize])
	}
}

func TestEncodeWAV_DecodesWithGoAudio(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1000, -1000, 32767, -32768}
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
	}

	d := wav.NewDecoder(bytes.NewReader(EncodeWAV(pcm)))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if d.SampleRate != audio.SampleRate {
		t.Errorf("SampleRate = %d, want %d", d.SampleRate, audio.SampleRate)
	}
	if d.NumChans != 1 {
		t.Errorf("NumChans = %d, want 1", d.NumChans)
	}
	if d.BitDepth != 16 {
		t.Errorf("BitDepth = %d, want 16", d.BitDepth)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i, s := range samples {
		if buf.Data[i] != int(s) {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], s)
		}
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, audio.SampleRate*audio.BytesPerSample/2) // 500 ms
	info, err := Inspect(bytes.NewReader(EncodeWAV(pcm)))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.SampleRate != audio.SampleRate || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("unexpected format: %+v", info)
	}
	if info.PCMBytes != int64(len(pcm)) {
		t.Errorf("PCMBytes = %d, want %d", info.PCMBytes, len(pcm))
	}
	if info.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", info.Duration)
	}
}

func TestInspect_RejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Inspect(bytes.NewReader([]byte("definitely not a wav file at all........"))); err == nil {
		t.Error("expected an error for non-WAV input")
	}
}

func TestRecording_SaveAndDuration(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	a.Start()
	for range 25 {
		a.Push(frame(audio.FrameBytes, 0))
	}
	rec, ok := a.Finish()
	if !ok {
		t.Fatal("expected a recording")
	}
	if got := rec.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}

	dir := t.TempDir()
	path, err := rec.Save(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "cuecard-20260102-030405.wav" {
		t.Errorf("file name = %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, rec.WAV) {
		t.Error("saved file differs from the recording")
	}
}
