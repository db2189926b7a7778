//go:build linux

package inject

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// clipboardTool is one command-line clipboard program.
type clipboardTool struct {
	name string
	get  []string
	set  []string
}

// Wayland first, then X11.
var clipboardTools = []clipboardTool{
	{name: "wl-copy", get: []string{"wl-paste", "--no-newline"}, set: []string{"wl-copy"}},
	{name: "xclip", get: []string{"xclip", "-selection", "clipboard", "-o"}, set: []string{"xclip", "-selection", "clipboard", "-i"}},
	{name: "xsel", get: []string{"xsel", "--clipboard", "--output"}, set: []string{"xsel", "--clipboard", "--input"}},
}

// execClipboard implements Clipboard with xclip, xsel or wl-clipboard.
type execClipboard struct {
	tool clipboardTool
}

func newPlatformClipboard() (Clipboard, error) {
	wayland := os.Getenv("WAYLAND_DISPLAY") != ""
	for _, t := range clipboardTools {
		if t.name == "wl-copy" && !wayland {
			continue
		}
		if _, err := exec.LookPath(t.set[0]); err == nil {
			return &execClipboard{tool: t}, nil
		}
	}
	return nil, fmt.Errorf("%w: install wl-clipboard, xclip or xsel", ErrNoClipboard)
}

func (c *execClipboard) GetText() (string, error) {
	out, err := exec.Command(c.tool.get[0], c.tool.get[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.tool.get[0], err)
	}
	return string(out), nil
}

func (c *execClipboard) SetText(text string) error {
	cmd := exec.Command(c.tool.set[0], c.tool.set[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c.tool.set[0], err)
	}
	return nil
}
