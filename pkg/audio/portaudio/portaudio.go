// Package portaudio implements [audio.Backend] on top of the PortAudio C
// library. Each [audio.Source] opens a blocking input stream at the device's
// native rate and channel count, converts the captured buffers to the
// pipeline format, and re-slices them into 40 ms frames.
//
// System audio is captured by selecting a loopback/monitor device (for
// example a PulseAudio monitor source or a virtual loopback driver) as the
// system device; PortAudio treats it like any other input.
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/cuecard/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Backend = (*Backend)(nil)
	_ audio.Source  = (*source)(nil)
)

// maxCaptureChannels caps the channel count requested from a device.
const maxCaptureChannels = 2

// Backend enumerates PortAudio devices and opens capture sources.
// Create it with [New] and release it with [Backend.Close].
type Backend struct {
	mu     sync.Mutex
	closed bool
}

// New initialises the PortAudio library.
func New() (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	slog.Debug("portaudio initialised", "version", portaudio.VersionText())
	return &Backend{}, nil
}

// Close terminates the PortAudio library. Idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return portaudio.Terminate()
}

// Devices implements [audio.Backend]. Device IDs are PortAudio device
// indices rendered as decimal strings.
func (b *Backend) Devices() (audio.DeviceList, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return audio.DeviceList{}, fmt.Errorf("portaudio: list devices: %w", err)
	}

	var list audio.DeviceList
	for i, info := range infos {
		list.Devices = append(list.Devices, audio.Device{
			ID:                strconv.Itoa(i),
			Name:              info.Name,
			InputChannels:     info.MaxInputChannels,
			OutputChannels:    info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		})
	}

	if def, err := portaudio.DefaultInputDevice(); err == nil {
		list.DefaultInputID = indexOf(infos, def)
	}
	if def, err := portaudio.DefaultOutputDevice(); err == nil {
		list.DefaultOutputID = indexOf(infos, def)
	}
	return list, nil
}

// Open implements [audio.Backend].
func (b *Backend) Open(deviceID string, kind audio.Kind) (audio.Source, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, errors.New("portaudio: backend closed")
	}

	idx, err := strconv.Atoi(deviceID)
	if err != nil {
		return nil, fmt.Errorf("portaudio: invalid device id %q", deviceID)
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	if idx < 0 || idx >= len(infos) {
		return nil, fmt.Errorf("portaudio: device %q not found", deviceID)
	}
	info := infos[idx]
	if info.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("portaudio: device %q (%s) has no input channels", deviceID, info.Name)
	}

	channels := min(info.MaxInputChannels, maxCaptureChannels)
	rate := int(info.DefaultSampleRate)
	if rate <= 0 {
		rate = audio.SampleRate
	}
	framesPerBuffer := rate * int(audio.FrameDuration/time.Millisecond) / 1000

	buf := make([]int16, framesPerBuffer*channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: framesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open %s device %q: %w", kind, info.Name, err)
	}

	slog.Debug("portaudio stream opened",
		"kind", kind.String(),
		"device", info.Name,
		"rate", rate,
		"channels", channels,
	)

	return &source{
		kind:   kind,
		name:   info.Name,
		stream: stream,
		buf:    buf,
		raw:    make([]byte, len(buf)*2),
		conv:   &audio.FormatConverter{Source: audio.Format{SampleRate: rate, Channels: channels}},
	}, nil
}

func indexOf(infos []*portaudio.DeviceInfo, target *portaudio.DeviceInfo) string {
	for i, info := range infos {
		if info == target || (info.Name == target.Name && info.HostApi == target.HostApi) {
			return strconv.Itoa(i)
		}
	}
	return ""
}

// source is a blocking PortAudio input stream read by a dedicated goroutine.
type source struct {
	kind   audio.Kind
	name   string
	stream *portaudio.Stream
	buf    []int16
	raw    []byte
	conv   *audio.FormatConverter
	framer audio.Framer

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// Start implements [audio.Source].
func (s *source) Start(onFrame audio.FrameFunc, onError audio.ErrorFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	if s.started {
		return fmt.Errorf("portaudio: %s source already started", s.kind)
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start %s stream: %w", s.kind, err)
	}
	s.started = true
	s.done = make(chan struct{})
	go s.readLoop(onFrame, onError)
	return nil
}

// readLoop owns buf, raw, conv and framer. It exits when the stream is
// closed or a non-recoverable read error occurs.
func (s *source) readLoop(onFrame audio.FrameFunc, onError audio.ErrorFunc) {
	defer close(s.done)
	for {
		err := s.stream.Read()
		if s.isClosed() {
			return
		}
		if err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Debug("portaudio input overflow", "kind", s.kind.String())
				continue
			}
			if onError != nil {
				onError(fmt.Errorf("portaudio: read %s stream: %w", s.kind, err))
			}
			return
		}

		for i, v := range s.buf {
			binary.LittleEndian.PutUint16(s.raw[i*2:], uint16(v))
		}
		s.framer.Write(s.conv.Convert(s.raw), onFrame)
	}
}

func (s *source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements [audio.Source]. It aborts the stream, waits for the read
// goroutine to exit, and releases the device.
func (s *source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.ErrStreamClosed
	}
	s.closed = true
	started := s.started
	done := s.done
	s.mu.Unlock()

	var errs []error
	if started {
		if err := s.stream.Abort(); err != nil && !audio.IsBenign(err) {
			errs = append(errs, fmt.Errorf("portaudio: abort %s stream: %w", s.kind, err))
		}
		<-done
	}
	if err := s.stream.Close(); err != nil && !audio.IsBenign(err) {
		errs = append(errs, fmt.Errorf("portaudio: close %s stream: %w", s.kind, err))
	}
	slog.Debug("portaudio stream closed", "kind", s.kind.String(), "device", s.name)
	return errors.Join(errs...)
}
