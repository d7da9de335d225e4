//go:build darwin && cgo

package infra

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>

static int is_trusted(int prompt) {
    if (!prompt) {
        return AXIsProcessTrusted();
    }
    const void *keys[] = { kAXTrustedCheckOptionPrompt };
    const void *values[] = { kCFBooleanTrue };
    CFDictionaryRef opts = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
        &kCFCopyStringDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
    int trusted = AXIsProcessTrustedWithOptions(opts);
    CFRelease(opts);
    return trusted;
}
*/
import "C"

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// AXChecker asks the accessibility API directly.
type AXChecker struct{}

// Check returns Granted or Denied. With prompt set the OS shows its dialog
// when not trusted; the answer is not known until a later Check, so a
// prompted untrusted process reports Unknown.
func (AXChecker) Check(prompt bool) (domain.PermissionState, error) {
	p := C.int(0)
	if prompt {
		p = 1
	}
	if C.is_trusted(p) != 0 {
		return domain.PermissionGranted, nil
	}
	if prompt {
		return domain.PermissionUnknown, nil
	}
	return domain.PermissionDenied, nil
}

func platformChecker(logger *zap.Logger) domain.AccessibilityChecker {
	return AXChecker{}
}
