//go:build darwin

package inject

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa

#include <stdlib.h>
#import <Cocoa/Cocoa.h>
#import <AppKit/AppKit.h>

// The executor goroutine is the only caller, so pasteboard access is
// serialized without hopping to the main queue.

static char* emojidGetClipboardText(void) {
    char* result = NULL;
    @autoreleasepool {
        NSPasteboard *pasteboard = [NSPasteboard generalPasteboard];
        NSString *text = [pasteboard stringForType:NSPasteboardTypeString];
        if (text != nil) {
            result = strdup([text UTF8String]);
        }
    }
    return result ? result : strdup("");
}

static int emojidSetClipboardText(const char* text) {
    int ok = 0;
    @autoreleasepool {
        NSPasteboard *pasteboard = [NSPasteboard generalPasteboard];
        [pasteboard clearContents];
        NSString *str = [NSString stringWithUTF8String:text];
        if (str != nil && [pasteboard setString:str forType:NSPasteboardTypeString]) {
            ok = 1;
        }
    }
    return ok;
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

// darwinClipboard implements Clipboard with NSPasteboard.
type darwinClipboard struct{}

func newPlatformClipboard() (Clipboard, error) {
	return darwinClipboard{}, nil
}

func (darwinClipboard) GetText() (string, error) {
	cstr := C.emojidGetClipboardText()
	defer C.free(unsafe.Pointer(cstr))
	return C.GoString(cstr), nil
}

func (darwinClipboard) SetText(text string) error {
	cstr := C.CString(text)
	defer C.free(unsafe.Pointer(cstr))
	if C.emojidSetClipboardText(cstr) != 1 {
		return errors.New("NSPasteboard rejected the text")
	}
	return nil
}
