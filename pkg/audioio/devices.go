package audioio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ErrDeviceNotFound is returned when no device matches the requested name.
var ErrDeviceNotFound = errors.New("audio device not found")

// Direction selects capture or playback devices.
type Direction string

const (
	Capture  Direction = "capture"
	Playback Direction = "playback"
)

// Device describes one ALSA PCM as listed by arecord -L / aplay -L.
type Device struct {
	// Name is the PCM name passed to -D, e.g. "hw:CARD=Loopback,DEV=0".
	Name string `json:"name"`

	// Description is the indented human readable text under the name.
	Description string `json:"description"`
}

// Matches reports whether substr occurs in the name or description,
// ignoring case.
func (d Device) Matches(substr string) bool {
	s := strings.ToLower(substr)
	return strings.Contains(strings.ToLower(d.Name), s) ||
		strings.Contains(strings.ToLower(d.Description), s)
}

// ParseDeviceList parses the output of "arecord -L" or "aplay -L".
// Names start at column 0, description lines are indented.
func ParseDeviceList(r io.Reader) ([]Device, error) {
	var devices []Device
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(devices) == 0 {
				continue
			}
			d := &devices[len(devices)-1]
			text := strings.TrimSpace(line)
			if d.Description == "" {
				d.Description = text
			} else {
				d.Description += ", " + text
			}
			continue
		}
		devices = append(devices, Device{Name: strings.TrimSpace(line)})
	}
	return devices, scanner.Err()
}

// FindDevice returns the first device whose name or description contains
// substr. An empty substr selects "default".
func FindDevice(devices []Device, substr string) (Device, error) {
	if substr == "" {
		return Device{Name: "default"}, nil
	}
	for _, d := range devices {
		if d.Matches(substr) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, substr)
}

// ListDevices enumerates ALSA PCMs for the given direction.
func ListDevices(ctx context.Context, dir Direction) ([]Device, error) {
	bin := "arecord"
	if dir == Playback {
		bin = "aplay"
	}
	out, err := exec.CommandContext(ctx, bin, "-L").Output()
	if err != nil {
		return nil, fmt.Errorf("%s -L: %w", bin, err)
	}
	return ParseDeviceList(strings.NewReader(string(out)))
}

// ResolveDevice lists devices for dir and picks the one matching substr.
func ResolveDevice(ctx context.Context, dir Direction, substr string) (Device, error) {
	if substr == "" {
		return Device{Name: "default"}, nil
	}
	devices, err := ListDevices(ctx, dir)
	if err != nil {
		return Device{}, err
	}
	return FindDevice(devices, substr)
}
