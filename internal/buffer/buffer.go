// Package buffer tracks the trailing window of recently typed text.
//
// The buffer stores grapheme clusters rather than bytes or runes so that a
// shortcut or emoji always occupies the number of positions a user (and the
// focused application's backspace key) sees. All lengths and counts in this
// package are cluster counts.
package buffer

import (
	"strings"

	"github.com/rivo/uniseg"
)

// DefaultCapacity is the buffer size used when none is configured.
const DefaultCapacity = 50

// Buffer is a capacity-bounded sequence of grapheme clusters. When an append
// would exceed the capacity the oldest cluster is evicted.
//
// Buffer is not safe for concurrent use; the engine owns it from a single
// goroutine.
type Buffer struct {
	clusters []string
	capacity int

	// evicted counts clusters dropped from the front, giving every cluster a
	// stable logical index in the typed stream.
	evicted int
}

// New creates a buffer holding at most capacity clusters.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		clusters: make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Append adds one typed character. If the character extends the last
// cluster (a combining mark, variation selector, skin tone or ZWJ sequence)
// the last cluster grows instead of a new one being added.
func (b *Buffer) Append(s string) {
	if s == "" {
		return
	}
	if n := len(b.clusters); n > 0 {
		joined := b.clusters[n-1] + s
		if uniseg.GraphemeClusterCount(joined) == 1 {
			b.clusters[n-1] = joined
			return
		}
	}
	b.AppendText(s)
}

// AppendText appends arbitrary text split into grapheme clusters. It never
// merges with the existing last cluster, so replacement text is always
// appended as a unit.
func (b *Buffer) AppendText(s string) {
	state := -1
	for len(s) > 0 {
		var cluster string
		cluster, s, _, state = uniseg.StepString(s, state)
		b.push(cluster)
	}
}

func (b *Buffer) push(cluster string) {
	if len(b.clusters) == b.capacity {
		// Shift in place to keep the backing array bounded.
		copy(b.clusters, b.clusters[1:])
		b.clusters = b.clusters[:len(b.clusters)-1]
		b.evicted++
	}
	b.clusters = append(b.clusters, cluster)
}

// RemoveLast drops the last cluster. It is a no-op on an empty buffer.
func (b *Buffer) RemoveLast() {
	if len(b.clusters) == 0 {
		return
	}
	b.clusters = b.clusters[:len(b.clusters)-1]
}

// RemoveSuffix drops the last n clusters and returns how many were
// removed. A count larger than the buffer clears it; the external text
// surface may have held fewer characters than assumed.
func (b *Buffer) RemoveSuffix(n int) int {
	if n <= 0 {
		return 0
	}
	if n >= len(b.clusters) {
		removed := len(b.clusters)
		b.Clear()
		return removed
	}
	b.clusters = b.clusters[:len(b.clusters)-n]
	return n
}

// Clear empties the buffer. The logical index keeps advancing so that a
// position recorded before the clear never matches a later cluster.
func (b *Buffer) Clear() {
	b.evicted += len(b.clusters)
	b.clusters = b.clusters[:0]
}

// Len returns the number of clusters held.
func (b *Buffer) Len() int {
	return len(b.clusters)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Offset returns the logical index of the first held cluster.
func (b *Buffer) Offset() int {
	return b.evicted
}

// LogicalLen returns the logical index one past the last held cluster.
func (b *Buffer) LogicalLen() int {
	return b.evicted + len(b.clusters)
}

// String returns the buffer content.
func (b *Buffer) String() string {
	return strings.Join(b.clusters, "")
}

// Last returns the last cluster, or "" if the buffer is empty.
func (b *Buffer) Last() string {
	if len(b.clusters) == 0 {
		return ""
	}
	return b.clusters[len(b.clusters)-1]
}

// Suffix returns the text of the last n clusters. n is clamped to Len.
func (b *Buffer) Suffix(n int) string {
	if n <= 0 {
		return ""
	}
	if n > len(b.clusters) {
		n = len(b.clusters)
	}
	return strings.Join(b.clusters[len(b.clusters)-n:], "")
}

// HasSuffix reports whether the buffer ends with s on a cluster boundary.
func (b *Buffer) HasSuffix(s string) bool {
	n := uniseg.GraphemeClusterCount(s)
	if n == 0 || n > len(b.clusters) {
		return false
	}
	return b.Suffix(n) == s
}

// At returns the cluster at a logical index.
func (b *Buffer) At(logical int) (string, bool) {
	i := logical - b.evicted
	if i < 0 || i >= len(b.clusters) {
		return "", false
	}
	return b.clusters[i], true
}

// SuffixFrom returns the text from a logical index to the end. It reports
// false when the index has been evicted or lies beyond the end.
func (b *Buffer) SuffixFrom(logical int) (string, bool) {
	i := logical - b.evicted
	if i < 0 || i >= len(b.clusters) {
		return "", false
	}
	return strings.Join(b.clusters[i:], ""), true
}
