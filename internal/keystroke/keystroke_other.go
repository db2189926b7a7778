//go:build !darwin && !linux

package keystroke

import (
	"context"
)

// StubHook is used on unsupported platforms.
type StubHook struct {
	BaseHook
}

func newPlatformHook(cfg Config) Hook {
	h := &StubHook{}
	h.configure(cfg)
	return h
}

// Available returns false on unsupported platforms.
func (s *StubHook) Available() (bool, string) {
	return false, "key capture not implemented for this platform"
}

// Start returns an error on unsupported platforms.
func (s *StubHook) Start(ctx context.Context) error {
	return ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (s *StubHook) Stop() error {
	return nil
}

type stubGate struct{}

func newPlatformGate() Gate { return stubGate{} }

func (stubGate) IsTrusted() bool    { return false }
func (stubGate) RequestPermission() {}
