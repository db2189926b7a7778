//go:build linux

package inject

import (
	"bytes"
	"encoding/binary"
	"testing"

	"emojid/internal/keystroke"
)

func TestEncodeUserDev(t *testing.T) {
	data := encodeUserDev(keystroke.VirtualDeviceName)
	// sizeof(struct uinput_user_dev)
	if len(data) != 1116 {
		t.Fatalf("expected 1116 bytes, got %d", len(data))
	}
	name := data[:uinputNameSize]
	if !bytes.HasPrefix(name, []byte(keystroke.VirtualDeviceName+"\x00")) {
		t.Errorf("device name not NUL terminated: %q", name)
	}
}

func TestPasteEvents(t *testing.T) {
	events := tap(keyV)
	if len(events) != 4 {
		t.Fatalf("expected press, syn, release, syn; got %d events", len(events))
	}
	if events[0].Value != 1 || events[2].Value != 0 {
		t.Error("tap must press before release")
	}

	data := encodeEvents(events...)
	if len(data) != 4*binary.Size(inputEvent{}) {
		t.Errorf("unexpected encoded size %d", len(data))
	}
}
