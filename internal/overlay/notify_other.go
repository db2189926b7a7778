//go:build !linux

package overlay

import "emojid/internal/logging"

func newNotifier(*logging.Logger) (Overlay, error) {
	return nil, ErrNotAvailable
}
