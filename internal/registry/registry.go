// Package registry holds the read-only shortcut table used by the expansion
// engine.
//
// Shortcuts are kept in lexicographic order so that prefix search is a
// binary search for the start of the range followed by a linear walk while
// the prefix still matches. Lookup is a map access.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rivo/uniseg"
)

// Errors returned when building a registry.
var (
	ErrEmptyShortcut    = errors.New("registry: empty shortcut")
	ErrEmptyReplacement = errors.New("registry: empty replacement")
	ErrDuplicate        = errors.New("registry: duplicate shortcut")
)

// Entry maps a shortcut token to its replacement text.
type Entry struct {
	Shortcut    string `json:"shortcut" toml:"shortcut" yaml:"shortcut"`
	Replacement string `json:"replacement" toml:"replacement" yaml:"replacement"`
}

// Provider is the lookup surface the engine depends on.
type Provider interface {
	Lookup(shortcut string) (string, bool)
	PrefixSearch(prefix string, limit int) []string
	All() []string
}

// Registry is an immutable shortcut table.
type Registry struct {
	sorted   []string
	mappings map[string]string
	maxLen   int
}

// New builds a registry from entries. Entry order does not matter; the
// registry always iterates in lexicographic order.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{
		sorted:   make([]string, 0, len(entries)),
		mappings: make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		if e.Shortcut == "" {
			return nil, ErrEmptyShortcut
		}
		if e.Replacement == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyReplacement, e.Shortcut)
		}
		if _, ok := r.mappings[e.Shortcut]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, e.Shortcut)
		}
		r.mappings[e.Shortcut] = e.Replacement
		r.sorted = append(r.sorted, e.Shortcut)
		if n := uniseg.GraphemeClusterCount(e.Shortcut); n > r.maxLen {
			r.maxLen = n
		}
	}
	sort.Strings(r.sorted)
	return r, nil
}

// FromMap builds a registry from a shortcut -> replacement map.
func FromMap(m map[string]string) (*Registry, error) {
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, Entry{Shortcut: k, Replacement: v})
	}
	return New(entries)
}

// MustFromMap is like FromMap but panics on error. Intended for tables
// that are known to be valid at compile time.
func MustFromMap(m map[string]string) *Registry {
	r, err := FromMap(m)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the replacement for an exact shortcut.
func (r *Registry) Lookup(shortcut string) (string, bool) {
	v, ok := r.mappings[shortcut]
	return v, ok
}

// PrefixSearch returns shortcuts starting with prefix in lexicographic
// order. A limit <= 0 returns every match.
func (r *Registry) PrefixSearch(prefix string, limit int) []string {
	start := sort.SearchStrings(r.sorted, prefix)
	var out []string
	for i := start; i < len(r.sorted); i++ {
		if !strings.HasPrefix(r.sorted[i], prefix) {
			break
		}
		out = append(out, r.sorted[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// All returns every shortcut in lexicographic order.
func (r *Registry) All() []string {
	out := make([]string, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Entries returns every entry in lexicographic shortcut order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.sorted))
	for i, s := range r.sorted {
		out[i] = Entry{Shortcut: s, Replacement: r.mappings[s]}
	}
	return out
}

// Len returns the number of shortcuts.
func (r *Registry) Len() int {
	return len(r.sorted)
}

// MaxShortcutLen returns the length of the longest shortcut in grapheme
// clusters.
func (r *Registry) MaxShortcutLen() int {
	return r.maxLen
}

// Search returns entries whose shortcut contains query, ignoring case.
// An empty query returns everything.
func (r *Registry) Search(query string) []Entry {
	if query == "" {
		return r.Entries()
	}
	q := strings.ToLower(query)
	var out []Entry
	for _, s := range r.sorted {
		if strings.Contains(strings.ToLower(s), q) {
			out = append(out, Entry{Shortcut: s, Replacement: r.mappings[s]})
		}
	}
	return out
}

// Merge returns a registry holding every entry of base, with entries from
// override replacing base entries that share a shortcut.
func Merge(base, override *Registry) *Registry {
	merged := make(map[string]string, base.Len()+override.Len())
	for k, v := range base.mappings {
		merged[k] = v
	}
	for k, v := range override.mappings {
		merged[k] = v
	}
	// Both inputs already passed validation, so this cannot fail.
	return MustFromMap(merged)
}
