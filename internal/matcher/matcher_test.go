package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emojid/internal/buffer"
	"emojid/internal/registry"
)

func typed(s string) *buffer.Buffer {
	b := buffer.New(50)
	for _, r := range s {
		b.Append(string(r))
	}
	return b
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected Policy
		hasError bool
	}{
		{"", PolicyLongest, false},
		{"longest", PolicyLongest, false},
		{"LONGEST", PolicyLongest, false},
		{"first", PolicyFirst, false},
		{"fuzzy", PolicyLongest, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePolicy(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
			assert.Equal(t, tt.expected.String(), p.String())
		})
	}
}

func TestMatch_Exact(t *testing.T) {
	reg := registry.MustFromMap(map[string]string{":)": "🙂"})
	m := New(reg, PolicyLongest)

	got, ok := m.Match(typed("hi :)"))
	require.True(t, ok)
	assert.Equal(t, Match{Shortcut: ":)", Replacement: "🙂", Length: 2}, got)

	_, ok = m.Match(typed("hi :"))
	assert.False(t, ok)
	_, ok = m.Match(buffer.New(5))
	assert.False(t, ok)
}

func TestMatch_OverlapPolicies(t *testing.T) {
	// ":-)" ends with "-)" which is also registered. Lexicographic order puts
	// "-)" first, so the first-match policy picks the shorter shortcut.
	reg := registry.MustFromMap(map[string]string{
		"-)":  "A",
		":-)": "B",
	})

	got, ok := New(reg, PolicyLongest).Match(typed("x:-)"))
	require.True(t, ok)
	assert.Equal(t, ":-)", got.Shortcut)
	assert.Equal(t, 3, got.Length)

	got, ok = New(reg, PolicyFirst).Match(typed("x:-)"))
	require.True(t, ok)
	assert.Equal(t, "-)", got.Shortcut)
	assert.Equal(t, 2, got.Length)
}

func TestMatch_LengthInClusters(t *testing.T) {
	reg := registry.MustFromMap(map[string]string{"👍🏽!": "ok"})
	b := buffer.New(10)
	b.AppendText("a👍🏽!")

	got, ok := New(reg, PolicyLongest).Match(b)
	require.True(t, ok)
	assert.Equal(t, 2, got.Length)
}
