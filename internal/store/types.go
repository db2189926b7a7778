// Package store provides SQLite-based expansion history for emojid.
package store

import (
	"fmt"
	"time"
)

// Source says how an expansion was committed.
type Source string

const (
	// SourceMatch is an exact shortcut expanded as soon as it was typed.
	SourceMatch Source = "match"
	// SourceAccept is a popover candidate accepted with a binding.
	SourceAccept Source = "accept"
	// SourceComplete is a session closed by typing the full shortcut.
	SourceComplete Source = "complete"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceMatch, SourceAccept, SourceComplete:
		return true
	}
	return false
}

// Expansion is one committed substitution. The typed text around it is
// never stored.
type Expansion struct {
	ID          int64
	Shortcut    string
	Replacement string
	Source      Source
	At          time.Time
}

func (e *Expansion) validate() error {
	if e.Shortcut == "" {
		return fmt.Errorf("expansion: empty shortcut")
	}
	if !e.Source.Valid() {
		return fmt.Errorf("expansion: unknown source %q", e.Source)
	}
	return nil
}

// ShortcutUsage is the all-time tally for one shortcut. It survives Prune.
type ShortcutUsage struct {
	Shortcut    string
	Replacement string
	Uses        int64
	LastUsed    time.Time
}

// Stats summarizes the history.
type Stats struct {
	// Retained counts rows still in the log.
	Retained int64
	// AllTime counts every expansion ever recorded.
	AllTime  int64
	BySource map[Source]int64
	Top      []ShortcutUsage
	First    time.Time
	Last     time.Time
}
