package cli

import (
	"errors"
	"testing"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/pkg/audio"
	audiomock "github.com/MrWong99/cuecard/pkg/audio/mock"
)

func TestResolveDevices(t *testing.T) {
	t.Parallel()

	list := audio.DeviceList{
		Devices: []audio.Device{
			{ID: "mic-1", Name: "Desk Mic", InputChannels: 1},
			{ID: "mic-2", Name: "Headset", InputChannels: 1},
			{ID: "loop-1", Name: "Loopback", InputChannels: 2},
		},
		DefaultInputID: "mic-1",
	}
	listErr := errors.New("portaudio not initialised")

	tests := []struct {
		name    string
		list    audio.DeviceList
		listErr error
		cfg     config.AudioConfig
		wantMic string
		wantErr error
	}{
		{
			name:    "explicit devices",
			list:    list,
			cfg:     config.AudioConfig{MicDevice: "mic-2", SystemDevice: "loop-1"},
			wantMic: "mic-2",
		},
		{
			name:    "empty mic uses default input",
			list:    list,
			cfg:     config.AudioConfig{SystemDevice: "loop-1"},
			wantMic: "mic-1",
		},
		{
			name:    "missing system device",
			list:    list,
			cfg:     config.AudioConfig{MicDevice: "mic-1"},
			wantErr: session.ErrNoDevice,
		},
		{
			name:    "unknown system device",
			list:    list,
			cfg:     config.AudioConfig{SystemDevice: "loop-9"},
			wantErr: session.ErrNoDevice,
		},
		{
			name:    "unknown mic",
			list:    list,
			cfg:     config.AudioConfig{MicDevice: "mic-9", SystemDevice: "loop-1"},
			wantErr: session.ErrNoDevice,
		},
		{
			name:    "no default input",
			list:    audio.DeviceList{Devices: list.Devices},
			cfg:     config.AudioConfig{SystemDevice: "loop-1"},
			wantErr: session.ErrNoDevice,
		},
		{
			name:    "listing fails",
			listErr: listErr,
			cfg:     config.AudioConfig{MicDevice: "mic-1", SystemDevice: "loop-1"},
			wantErr: listErr,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			backend := &audiomock.Backend{DeviceList: tc.list, DevicesError: tc.listErr}

			opts, err := resolveDevices(backend, tc.cfg)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveDevices: %v", err)
			}
			if opts.MicDeviceID != tc.wantMic {
				t.Errorf("mic = %q, want %q", opts.MicDeviceID, tc.wantMic)
			}
			if opts.SystemDeviceID != tc.cfg.SystemDevice {
				t.Errorf("system = %q, want %q", opts.SystemDeviceID, tc.cfg.SystemDevice)
			}
		})
	}
}
