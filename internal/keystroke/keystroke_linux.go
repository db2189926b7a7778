//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// LinuxHook reads /dev/input event devices. evdev readers see events after
// the kernel delivered them, so this hook observes only: every event is
// delivered without a reply channel and always reaches the application.
type LinuxHook struct {
	BaseHook
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	filesMu sync.Mutex
	files   []*os.File
}

func newPlatformHook(cfg Config) Hook {
	h := &LinuxHook{}
	h.configure(cfg)
	return h
}

// Available checks if we can read input devices.
func (l *LinuxHook) Available() (bool, string) {
	devices, err := findKeyboardDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}
	for _, dev := range devices {
		if unix.Access(dev, unix.R_OK) == nil {
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}
	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

// findKeyboardDevices finds /dev/input devices that are keyboards, skipping
// our own virtual keyboard.
func findKeyboardDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseDeviceList(f), nil
}

func parseDeviceList(r io.Reader) []string {
	var devices []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	var name, handler string
	kbd, repeats := false, false

	flush := func() {
		if kbd && repeats && handler != "" && name != VirtualDeviceName && !seen[handler] {
			devices = append(devices, handler)
			seen[handler] = true
		}
		name, handler, kbd, repeats = "", "", false, false
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "N: Name="):
			name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(line) {
				if part == "kbd" {
					kbd = true
				}
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: EV="):
			// Power buttons and media remotes carry the kbd handler too;
			// only real keyboards autorepeat.
			ev, err := strconv.ParseUint(strings.TrimPrefix(line, "B: EV="), 16, 64)
			repeats = err == nil && ev&evRepBit != 0
		case line == "":
			flush()
		}
	}
	flush()
	return devices
}

// Start opens every readable keyboard and starts one reader per device.
func (l *LinuxHook) Start(ctx context.Context) error {
	devices, err := findKeyboardDevices()
	if err != nil || len(devices) == 0 {
		return ErrNotAvailable
	}

	var files []*os.File
	for _, dev := range devices {
		path, err := filepath.EvalSymlinks(dev)
		if err != nil {
			path = dev
		}
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return ErrPermissionDenied
	}

	if err := l.open(); err != nil {
		for _, f := range files {
			f.Close()
		}
		return err
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.filesMu.Lock()
	l.files = files
	l.filesMu.Unlock()

	for _, f := range files {
		l.wg.Add(1)
		go l.readLoop(f)
	}
	return nil
}

// inputEvent matches the Linux input_event struct.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evRepBit = 1 << 0x14 // EV_REP

	evKey       = 1
	keyRelease  = 0
	keyPress    = 1
	keyAutoRept = 2
)

func (l *LinuxHook) readLoop(f *os.File) {
	defer l.wg.Done()

	eventSize := binary.Size(inputEvent{})
	tv := int(unsafe.Sizeof(unix.Timeval{}))
	buf := make([]byte, eventSize)
	var mods Modifiers

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			// Stop closes the file to unblock the read.
			return
		}
		if l.ctx.Err() != nil {
			return
		}

		typ := binary.LittleEndian.Uint16(buf[tv : tv+2])
		code := binary.LittleEndian.Uint16(buf[tv+2 : tv+4])
		value := int32(binary.LittleEndian.Uint32(buf[tv+4 : tv+8]))
		if typ != evKey {
			continue
		}

		if m, ok := evdevModifiers[code]; ok {
			switch value {
			case keyPress:
				mods |= m
			case keyRelease:
				mods &^= m
			}
			continue
		}
		if value != keyPress && value != keyAutoRept {
			continue
		}
		l.Deliver(evdevEvent(code, mods, time.Now()))
	}
}

// Stop closes every device and waits for the readers.
func (l *LinuxHook) Stop() error {
	if !l.IsRunning() {
		return nil
	}
	if l.cancel != nil {
		l.cancel()
	}

	l.filesMu.Lock()
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
	l.filesMu.Unlock()

	l.wg.Wait()
	l.close()
	return nil
}

// Ensure LinuxHook satisfies Hook interface
var _ Hook = (*LinuxHook)(nil)

// deviceGate checks access to the input devices and /dev/uinput.
type deviceGate struct{}

func newPlatformGate() Gate {
	return deviceGate{}
}

func (deviceGate) IsTrusted() bool {
	devices, err := findKeyboardDevices()
	if err != nil {
		return false
	}
	readable := false
	for _, dev := range devices {
		if unix.Access(dev, unix.R_OK) == nil {
			readable = true
			break
		}
	}
	return readable && unix.Access("/dev/uinput", unix.W_OK) == nil
}

// RequestPermission is a no-op: device access is granted by group
// membership, which the process cannot request.
func (deviceGate) RequestPermission() {}
