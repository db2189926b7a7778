//go:build darwin

package keystroke

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework ApplicationServices -framework Foundation

#include <stdint.h>
#include "hook_darwin.h"
*/
import "C"

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf16"
	"unsafe"
)

// CGEventFlags modifier masks.
const (
	flagShift     = 0x00020000
	flagControl   = 0x00040000
	flagAlternate = 0x00080000
	flagCommand   = 0x00100000
)

// The tap callback is process global, so only one hook can be installed.
var activeHook atomic.Pointer[DarwinHook]

// DarwinHook uses CGEventTap and can consume events.
type DarwinHook struct {
	BaseHook
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newPlatformHook(cfg Config) Hook {
	h := &DarwinHook{}
	h.configure(cfg)
	return h
}

// Available checks if CGEventTap is available.
func (d *DarwinHook) Available() (bool, string) {
	if C.emojidCheckAccessibility() == 1 {
		return true, "CGEventTap available"
	}
	return false, "Accessibility permission required. Go to System Settings > Privacy & Security > Accessibility and add this application."
}

// Start installs the event tap.
func (d *DarwinHook) Start(ctx context.Context) error {
	if C.emojidCheckAccessibility() != 1 {
		return ErrPermissionDenied
	}
	if !activeHook.CompareAndSwap(nil, d) {
		return ErrAlreadyRunning
	}
	if err := d.open(); err != nil {
		activeHook.Store(nil)
		return err
	}

	switch C.emojidStartTap(C.int64_t(InjectedTag)) {
	case 0:
	case 1:
		d.abort()
		return ErrAlreadyRunning
	case -1:
		d.abort()
		return ErrPermissionDenied
	case -2:
		d.abort()
		return fmt.Errorf("%w: failed to create run loop source", ErrHookInstall)
	case -3:
		d.abort()
		return fmt.Errorf("%w: failed to create run loop thread", ErrHookInstall)
	default:
		d.abort()
		return fmt.Errorf("%w: timeout waiting for event tap to start", ErrHookInstall)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.healthLoop()
	return nil
}

func (d *DarwinHook) abort() {
	d.close()
	activeHook.Store(nil)
}

// healthLoop stops the hook when the tap dies, e.g. after the permission
// was revoked.
func (d *DarwinHook) healthLoop() {
	defer close(d.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if C.emojidTapDisabledBySystem() == 1 {
				d.noteDisabled()
			}
			if C.emojidTapEnabled() != 1 && d.IsRunning() {
				go d.Stop()
				return
			}
		}
	}
}

// Stop removes the event tap.
func (d *DarwinHook) Stop() error {
	if !d.close() {
		return nil
	}
	if d.cancel != nil {
		d.cancel()
	}
	C.emojidStopTap()
	activeHook.CompareAndSwap(d, nil)
	return nil
}

func (d *DarwinHook) event(code uint16, flags uint64, chars []uint16) RawEvent {
	ev := RawEvent{
		Key:       ClassifyKeyCode(code),
		Code:      code,
		Rune:      MacKeyRune(code),
		Text:      string(utf16.Decode(chars)),
		Timestamp: time.Now(),
	}
	if flags&flagShift != 0 {
		ev.Modifiers |= ModShift
	}
	if flags&flagControl != 0 {
		ev.Modifiers |= ModControl
	}
	if flags&flagAlternate != 0 {
		ev.Modifiers |= ModAlt
	}
	if flags&flagCommand != 0 {
		ev.Modifiers |= ModCommand
	}
	return ev
}

//export goHandleKey
func goHandleKey(code C.uint16_t, flags C.uint64_t, chars *C.uint16_t, n C.int) C.int {
	h := activeHook.Load()
	if h == nil {
		return 0
	}
	var units []uint16
	if n > 0 {
		units = unsafe.Slice((*uint16)(unsafe.Pointer(chars)), int(n))
	}
	if h.DeliverAndWait(h.event(uint16(code), uint64(flags), units)) {
		return 1
	}
	return 0
}

// Ensure DarwinHook satisfies Hook interface
var _ Hook = (*DarwinHook)(nil)

type accessibilityGate struct{}

func newPlatformGate() Gate {
	return accessibilityGate{}
}

// IsTrusted returns true if accessibility permissions are granted.
func (accessibilityGate) IsTrusted() bool {
	return C.emojidCheckAccessibility() == 1
}

// RequestPermission shows the system accessibility prompt.
func (accessibilityGate) RequestPermission() {
	C.emojidPromptAccessibility()
}
