//go:build darwin

package inject

/*
#cgo LDFLAGS: -framework ApplicationServices

#include <ApplicationServices/ApplicationServices.h>

static const CGKeyCode kEmojidDelete = 51;
static const CGKeyCode kEmojidV = 9;

static int emojidPostKey(CGEventSourceRef src, CGKeyCode code, CGEventFlags flags, int64_t tag) {
    CGEventRef down = CGEventCreateKeyboardEvent(src, code, true);
    CGEventRef up = CGEventCreateKeyboardEvent(src, code, false);
    if (down == NULL || up == NULL) {
        if (down) CFRelease(down);
        if (up) CFRelease(up);
        return -1;
    }
    CGEventSetFlags(down, flags);
    CGEventSetFlags(up, flags);
    CGEventSetIntegerValueField(down, kCGEventSourceUserData, tag);
    CGEventSetIntegerValueField(up, kCGEventSourceUserData, tag);
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
    return 0;
}

static CGEventSourceRef emojidNewSource(void) {
    return CGEventSourceCreate(kCGEventSourceStatePrivate);
}

static int emojidBackspace(CGEventSourceRef src, int n, int64_t tag) {
    for (int i = 0; i < n; i++) {
        if (emojidPostKey(src, kEmojidDelete, 0, tag) != 0) {
            return -1;
        }
    }
    return 0;
}

static int emojidPaste(CGEventSourceRef src, int64_t tag) {
    return emojidPostKey(src, kEmojidV, kCGEventFlagMaskCommand, tag);
}
*/
import "C"

import (
	"errors"
	"sync"

	"emojid/internal/keystroke"
)

// cgEventSender posts keyboard events tagged with keystroke.InjectedTag.
type cgEventSender struct {
	mu  sync.Mutex
	src C.CGEventSourceRef
}

func newPlatformInjector(cfg Config) (Injector, error) {
	clip, err := newPlatformClipboard()
	if err != nil {
		return nil, err
	}
	src := C.emojidNewSource()
	if src == 0 {
		return nil, errors.New("CGEventSourceCreate failed")
	}
	return &darwinInjector{
		pasteInjector: newPasteInjector(&cgEventSender{src: src}, clip, cfg),
	}, nil
}

func (s *cgEventSender) backspace(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if C.emojidBackspace(s.src, C.int(n), C.int64_t(keystroke.InjectedTag)) != 0 {
		return errors.New("CGEventCreateKeyboardEvent failed")
	}
	return nil
}

func (s *cgEventSender) paste() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if C.emojidPaste(s.src, C.int64_t(keystroke.InjectedTag)) != 0 {
		return errors.New("CGEventCreateKeyboardEvent failed")
	}
	return nil
}

func (s *cgEventSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != 0 {
		C.CFRelease(C.CFTypeRef(s.src))
		s.src = 0
	}
}

type darwinInjector struct {
	*pasteInjector
}

// Close releases the event source.
func (d *darwinInjector) Close() error {
	d.keys.(*cgEventSender).close()
	return nil
}
