//go:build linux

package inject

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"emojid/internal/keystroke"
)

// uinput ioctls from linux/uinput.h.
const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	evSyn     = 0
	evKey     = 1
	synReport = 0

	keyBackspace = 14
	keyLeftCtrl  = 29
	keyV         = 47

	uinputNameSize = 80
	absCnt         = 64
	busVirtual     = 0x06
)

// uinputUserDev mirrors struct uinput_user_dev.
type uinputUserDev struct {
	Name         [uinputNameSize]byte
	BusType      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

// inputEvent mirrors struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// devicePath is a var so tests can point it elsewhere.
var devicePath = "/dev/uinput"

// Compositors and X need a moment to pick up a new input device before
// its first events are routed.
var deviceSettle = 200 * time.Millisecond

// uinputSender types through a virtual keyboard named
// keystroke.VirtualDeviceName, which the keystroke hook never reads.
type uinputSender struct {
	mu sync.Mutex
	f  *os.File
}

func newPlatformInjector(cfg Config) (Injector, error) {
	clip, err := newPlatformClipboard()
	if err != nil {
		return nil, err
	}
	keys, err := openUinput()
	if err != nil {
		return nil, err
	}
	return &linuxInjector{pasteInjector: newPasteInjector(keys, clip, cfg)}, nil
}

func openUinput() (*uinputSender, error) {
	f, err := os.OpenFile(devicePath, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s is not writable", keystroke.ErrPermissionDenied, devicePath)
		}
		return nil, fmt.Errorf("open %s: %w", devicePath, err)
	}
	fd := int(f.Fd())

	setup := func() error {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, evKey); err != nil {
			return fmt.Errorf("UI_SET_EVBIT: %w", err)
		}
		for _, code := range []int{keyBackspace, keyLeftCtrl, keyV} {
			if err := unix.IoctlSetInt(fd, uiSetKeyBit, code); err != nil {
				return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
			}
		}
		if _, err := f.Write(encodeUserDev(keystroke.VirtualDeviceName)); err != nil {
			return fmt.Errorf("write uinput_user_dev: %w", err)
		}
		if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
			return fmt.Errorf("UI_DEV_CREATE: %w", err)
		}
		return nil
	}
	if err := setup(); err != nil {
		f.Close()
		return nil, err
	}

	time.Sleep(deviceSettle)
	return &uinputSender{f: f}, nil
}

func encodeUserDev(name string) []byte {
	var dev uinputUserDev
	copy(dev.Name[:uinputNameSize-1], name)
	dev.BusType = busVirtual
	dev.Vendor = 0x656d // "em"
	dev.Product = 0x6a64
	dev.Version = 1

	var buf bytes.Buffer
	binary.Write(&buf, binary.NativeEndian, &dev)
	return buf.Bytes()
}

func encodeEvents(events ...inputEvent) []byte {
	var buf bytes.Buffer
	for i := range events {
		binary.Write(&buf, binary.NativeEndian, &events[i])
	}
	return buf.Bytes()
}

// tap encodes press and release of code with a report after each.
func tap(code uint16) []inputEvent {
	return []inputEvent{
		{Type: evKey, Code: code, Value: 1},
		{Type: evSyn, Code: synReport},
		{Type: evKey, Code: code, Value: 0},
		{Type: evSyn, Code: synReport},
	}
}

func (s *uinputSender) write(events []inputEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	_, err := s.f.Write(encodeEvents(events...))
	return err
}

func (s *uinputSender) backspace(n int) error {
	for i := 0; i < n; i++ {
		if err := s.write(tap(keyBackspace)); err != nil {
			return err
		}
	}
	return nil
}

func (s *uinputSender) paste() error {
	events := []inputEvent{
		{Type: evKey, Code: keyLeftCtrl, Value: 1},
		{Type: evSyn, Code: synReport},
	}
	events = append(events, tap(keyV)...)
	events = append(events,
		inputEvent{Type: evKey, Code: keyLeftCtrl, Value: 0},
		inputEvent{Type: evSyn, Code: synReport},
	)
	return s.write(events)
}

func (s *uinputSender) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	unix.IoctlSetInt(int(s.f.Fd()), uiDevDestroy, 0)
	err := s.f.Close()
	s.f = nil
	return err
}

type linuxInjector struct {
	*pasteInjector
}

// Close destroys the virtual keyboard.
func (l *linuxInjector) Close() error {
	return l.keys.(*uinputSender).close()
}
