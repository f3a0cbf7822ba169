package audioio

import (
	"errors"
	"strings"
	"testing"
)

const arecordList = `null
    Discard all samples (playback) or generate zero samples (capture)
default
    Default Audio Device
hw:CARD=Loopback,DEV=0
    Loopback, Loopback PCM
    Direct hardware device without any conversions
plughw:CARD=CABLE,DEV=0
    VB-Audio CABLE Output, USB Audio
    Hardware device with all software conversions
`

func TestParseDeviceList(t *testing.T) {
	devices, err := ParseDeviceList(strings.NewReader(arecordList))
	if err != nil {
		t.Fatalf("ParseDeviceList failed: %v", err)
	}
	if len(devices) != 4 {
		t.Fatalf("Expected 4 devices, got %d", len(devices))
	}
	if devices[2].Name != "hw:CARD=Loopback,DEV=0" {
		t.Errorf("devices[2].Name = %q", devices[2].Name)
	}
	if !strings.Contains(devices[2].Description, "Direct hardware device") {
		t.Errorf("Description lines not joined: %q", devices[2].Description)
	}
}

func TestFindDevice(t *testing.T) {
	devices, _ := ParseDeviceList(strings.NewReader(arecordList))

	tests := []struct {
		name   string
		substr string
		want   string
		err    error
	}{
		{"empty selects default", "", "default", nil},
		{"description match", "CABLE Output", "plughw:CARD=CABLE,DEV=0", nil},
		{"case insensitive", "cable output", "plughw:CARD=CABLE,DEV=0", nil},
		{"name match", "Loopback", "hw:CARD=Loopback,DEV=0", nil},
		{"missing", "Voicemeeter Input", "", ErrDeviceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindDevice(devices, tt.substr)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindDevice failed: %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("FindDevice(%q) = %q, want %q", tt.substr, got.Name, tt.want)
			}
		})
	}
}
