// Package matcher detects a completed shortcut at the end of the typed
// buffer.
package matcher

import (
	"fmt"
	"strings"

	"github.com/rivo/uniseg"

	"emojid/internal/buffer"
	"emojid/internal/registry"
)

// Policy decides which shortcut wins when several registered shortcuts are
// suffixes of the buffer (":)" and ":-)").
type Policy int

const (
	// PolicyLongest applies the longest matching shortcut.
	PolicyLongest Policy = iota
	// PolicyFirst applies the first matching shortcut in registry iteration
	// order.
	PolicyFirst
)

// String returns the config spelling of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyLongest:
		return "longest"
	case PolicyFirst:
		return "first"
	default:
		return "unknown"
	}
}

// ParsePolicy parses a config value.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "longest":
		return PolicyLongest, nil
	case "first":
		return PolicyFirst, nil
	default:
		return PolicyLongest, fmt.Errorf("unknown match policy: %s", s)
	}
}

// Match is a shortcut found at the end of the buffer.
type Match struct {
	Shortcut    string
	Replacement string
	// Length is the shortcut length in grapheme clusters; it is the number
	// of characters to delete from the focused application.
	Length int
}

// Matcher tests the buffer suffix against the registry.
type Matcher struct {
	reg    *registry.Registry
	policy Policy
}

// New creates a matcher.
func New(reg *registry.Registry, policy Policy) *Matcher {
	return &Matcher{reg: reg, policy: policy}
}

// Policy returns the configured policy.
func (m *Matcher) Policy() Policy {
	return m.policy
}

// Match reports the shortcut the buffer ends with, if any.
func (m *Matcher) Match(buf *buffer.Buffer) (Match, bool) {
	if buf.Len() == 0 || m.reg.Len() == 0 {
		return Match{}, false
	}
	if m.policy == PolicyFirst {
		return m.matchFirst(buf)
	}
	return m.matchLongest(buf)
}

// matchLongest tries suffixes from the longest possible shortcut length
// down, so the cost is bounded by MaxShortcutLen lookups per keystroke.
func (m *Matcher) matchLongest(buf *buffer.Buffer) (Match, bool) {
	n := m.reg.MaxShortcutLen()
	if n > buf.Len() {
		n = buf.Len()
	}
	for ; n > 0; n-- {
		suffix := buf.Suffix(n)
		if repl, ok := m.reg.Lookup(suffix); ok {
			return Match{Shortcut: suffix, Replacement: repl, Length: n}, true
		}
	}
	return Match{}, false
}

func (m *Matcher) matchFirst(buf *buffer.Buffer) (Match, bool) {
	for _, e := range m.reg.Entries() {
		if buf.HasSuffix(e.Shortcut) {
			return Match{
				Shortcut:    e.Shortcut,
				Replacement: e.Replacement,
				Length:      uniseg.GraphemeClusterCount(e.Shortcut),
			}, true
		}
	}
	return Match{}, false
}
