package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// pngMagic is the PNG file signature.
var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// errNotPNG is returned by readPNG for files without the PNG signature.
var errNotPNG = errors.New("not a PNG file")

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSnap
	cmdStop
	cmdStatus
	cmdHelp
)

// command is one parsed line of interactive input.
type command struct {
	kind commandKind
	arg  string
}

const commandHelp = "commands: snap <file.png> | status | stop | quit | help"

// parseCommand parses one line typed while a session runs. Blank lines
// yield cmdNone.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{kind: cmdNone}, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "snap", "image":
		if len(args) != 1 {
			return command{}, errors.New("usage: snap <file.png>")
		}
		return command{kind: cmdSnap, arg: args[0]}, nil
	case "stop", "quit", "exit", "q":
		return command{kind: cmdStop}, nil
	case "status":
		return command{kind: cmdStatus}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q; %s", name, commandHelp)
	}
}

// readPNG loads path and checks the PNG signature.
func readPNG(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return nil, fmt.Errorf("%s: %w", path, errNotPNG)
	}
	return data, nil
}
