package audio

import "time"

// Wire format shared by every stage of the capture pipeline. These values are
// fixed; they are not configurable at runtime.
const (
	// SampleRate is the PCM sample rate in Hz.
	SampleRate = 16000

	// Channels is the channel count of pipeline PCM (mono).
	Channels = 1

	// BitsPerSample is the bit depth of pipeline PCM (signed 16-bit LE).
	BitsPerSample = 16

	// BytesPerSample is the size of a single sample in bytes.
	BytesPerSample = BitsPerSample / 8

	// FrameDuration is the capture cadence of a [Source].
	FrameDuration = 40 * time.Millisecond

	// FrameSamples is the number of samples in one frame (640 at 16 kHz).
	FrameSamples = SampleRate * int(FrameDuration/time.Millisecond) / 1000

	// FrameBytes is the byte length of one frame (1280).
	FrameBytes = FrameSamples * BytesPerSample
)

// Kind identifies which side of the conversation a [Source] captures.
type Kind int

const (
	// KindMic captures the local microphone.
	KindMic Kind = iota

	// KindSystem captures system output through a loopback device.
	KindSystem
)

// String returns the human-readable name of the source kind.
func (k Kind) String() string {
	switch k {
	case KindMic:
		return "mic"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Device describes one audio endpoint reported by a [Backend].
type Device struct {
	// ID is the backend-specific identifier passed to [Backend.Open].
	ID string

	// Name is the human-readable device name.
	Name string

	// InputChannels is the maximum number of capture channels.
	InputChannels int

	// OutputChannels is the maximum number of playback channels.
	OutputChannels int

	// DefaultSampleRate is the device's native sample rate in Hz.
	DefaultSampleRate float64
}

// IsInput reports whether the device can capture audio.
func (d Device) IsInput() bool { return d.InputChannels > 0 }

// DeviceList is the result of a device enumeration.
type DeviceList struct {
	Devices []Device

	// DefaultInputID is the ID of the system default capture device, if any.
	DefaultInputID string

	// DefaultOutputID is the ID of the system default playback device, if any.
	DefaultOutputID string
}

// Find returns the device with the given ID.
func (l DeviceList) Find(id string) (Device, bool) {
	for _, d := range l.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}
