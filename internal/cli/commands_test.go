package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "", want: command{kind: cmdNone}},
		{line: "   ", want: command{kind: cmdNone}},
		{line: "snap shot.png", want: command{kind: cmdSnap, arg: "shot.png"}},
		{line: "IMAGE  a.png ", want: command{kind: cmdSnap, arg: "a.png"}},
		{line: "snap", wantErr: true},
		{line: "snap a.png b.png", wantErr: true},
		{line: "stop", want: command{kind: cmdStop}},
		{line: "quit", want: command{kind: cmdStop}},
		{line: "q", want: command{kind: cmdStop}},
		{line: "status", want: command{kind: cmdStatus}},
		{line: "?", want: command{kind: cmdHelp}},
		{line: "dance", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			t.Parallel()
			got, err := parseCommand(tc.line)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseCommand(%q) = %+v, want error", tc.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCommand(%q): %v", tc.line, err)
			}
			if got != tc.want {
				t.Errorf("parseCommand(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestReadPNG(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	good := filepath.Join(dir, "good.png")
	payload := append(append([]byte(nil), pngMagic...), 1, 2, 3)
	if err := os.WriteFile(good, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := readPNG(good)
	if err != nil {
		t.Fatalf("readPNG(good): %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("len = %d, want %d", len(data), len(payload))
	}

	if _, err := readPNG(bad); !errors.Is(err, errNotPNG) {
		t.Errorf("readPNG(bad) err = %v, want errNotPNG", err)
	}
	if _, err := readPNG(filepath.Join(dir, "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("readPNG(missing) err = %v, want ErrNotExist", err)
	}
}
