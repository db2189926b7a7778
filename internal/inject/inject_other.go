//go:build !darwin && !linux

package inject

func newPlatformInjector(Config) (Injector, error) {
	return nil, ErrNotAvailable
}

func newPlatformClipboard() (Clipboard, error) {
	return nil, ErrNoClipboard
}
