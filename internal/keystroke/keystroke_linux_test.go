//go:build linux

package keystroke

import (
	"strings"
	"testing"
)

const procDevices = `I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
H: Handlers=sysrq kbd event3 leds
B: EV=120013
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Mouse"
H: Handlers=mouse0 event5
B: EV=17
B: KEY=ffff0000 0 0 0 0

I: Bus=0003 Vendor=1234 Product=5678 Version=0001
N: Name="emojid virtual keyboard"
H: Handlers=sysrq kbd event9
B: EV=3
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
H: Handlers=kbd event2
B: EV=3
B: KEY=10000000000000 0`

func TestParseDeviceList(t *testing.T) {
	got := parseDeviceList(strings.NewReader(procDevices))
	if len(got) != 1 {
		t.Fatalf("expected 1 keyboard, got %v", got)
	}
	if got[0] != "/dev/input/event3" {
		t.Errorf("expected event3, got %s", got[0])
	}
	for _, dev := range got {
		if dev == "/dev/input/event9" {
			t.Error("virtual keyboard must be skipped")
		}
		if dev == "/dev/input/event2" {
			t.Error("power button is not a keyboard")
		}
	}
}
