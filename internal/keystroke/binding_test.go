package keystroke

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBinding(t *testing.T) {
	tests := []struct {
		input    string
		expected Binding
		hasError bool
	}{
		{"tab", Binding{Key: KeyTab}, false},
		{"ctrl+return", Binding{Key: KeyReturn, Modifiers: ModControl}, false},
		{"Ctrl+Enter", Binding{Key: KeyReturn, Modifiers: ModControl}, false},
		{"ctrl+n", Binding{Key: KeyCharacter, Rune: 'n', Modifiers: ModControl}, false},
		{"ctrl+shift+T", Binding{Key: KeyCharacter, Rune: 't', Modifiers: ModControl | ModShift}, false},
		{"cmd+opt+space", Binding{Key: KeySpace, Modifiers: ModCommand | ModAlt}, false},
		{"ctrl++", Binding{Key: KeyCharacter, Rune: '+', Modifiers: ModControl}, false},
		{"", Binding{}, false},
		{"hyper+x", Binding{}, true},
		{"ctrl+pagedown", Binding{}, true},
		{"ctrl+", Binding{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			b, err := ParseBinding(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, b)
		})
	}
}

func TestBindingStringRoundTrip(t *testing.T) {
	for _, s := range []string{"tab", "ctrl+return", "ctrl+n", "ctrl+shift+h", "alt+cmd+x"} {
		b := MustParseBinding(s)
		again, err := ParseBinding(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, again, s)
	}
	assert.Equal(t, "ctrl+shift+t", MustParseBinding("shift+ctrl+t").String())
}

func TestBindingMatches_ExactModifiers(t *testing.T) {
	b := MustParseBinding("ctrl+n")

	assert.True(t, b.Matches(RawEvent{Key: KeyCharacter, Rune: 'n', Modifiers: ModControl}))
	assert.True(t, b.Matches(RawEvent{Key: KeyCharacter, Rune: 'N', Modifiers: ModControl}))
	assert.False(t, b.Matches(RawEvent{Key: KeyCharacter, Rune: 'n', Modifiers: ModControl | ModShift}))
	assert.False(t, b.Matches(RawEvent{Key: KeyCharacter, Rune: 'n'}))
	assert.False(t, b.Matches(RawEvent{Key: KeyCharacter, Rune: 'p', Modifiers: ModControl}))

	assert.False(t, Binding{}.Matches(RawEvent{}), "zero binding never matches")
}

func TestBindingsLookup(t *testing.T) {
	bs := DefaultBindings()

	tests := []struct {
		name string
		ev   RawEvent
		cmd  Command
	}{
		{"tab", Chord(bs.Accept), CommandAccept},
		{"ctrl+return", Chord(bs.AcceptAlt), CommandAcceptAlt},
		{"ctrl+n", Chord(bs.Next), CommandNext},
		{"ctrl+p", Chord(bs.Previous), CommandPrevious},
		{"ctrl+shift+h", Chord(bs.TogglePopover), CommandTogglePopover},
		{"ctrl+shift+t", Chord(bs.ToggleService), CommandToggleService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := bs.Lookup(tt.ev)
			require.True(t, ok)
			assert.Equal(t, tt.cmd, cmd)
		})
	}

	_, ok := bs.Lookup(Char("a"))
	assert.False(t, ok)
}

func TestBindingsValidate(t *testing.T) {
	assert.NoError(t, DefaultBindings().Validate())

	bs := DefaultBindings()
	bs.Next = bs.Accept
	assert.Error(t, bs.Validate())

	bs = DefaultBindings()
	bs.Next = Binding{}
	bs.Previous = Binding{}
	assert.NoError(t, bs.Validate(), "unbound commands do not collide")
}

func TestBindingsTOML(t *testing.T) {
	var doc struct {
		Keybindings Bindings `toml:"keybindings"`
	}
	_, err := toml.Decode(`
[keybindings]
accept = "ctrl+y"
next = "alt+j"
`, &doc)
	require.NoError(t, err)
	assert.Equal(t, MustParseBinding("ctrl+y"), doc.Keybindings.Accept)
	assert.Equal(t, MustParseBinding("alt+j"), doc.Keybindings.Next)
	assert.True(t, doc.Keybindings.Previous.IsZero())

	_, err = toml.Decode(`
[keybindings]
accept = "hyper+y"
`, &doc)
	assert.Error(t, err)
}

func TestBindingsSet(t *testing.T) {
	bs := DefaultBindings()
	require.NoError(t, bs.Set("accept", MustParseBinding("ctrl+y")))
	require.NoError(t, bs.Set("toggle_service", Binding{}))
	assert.Equal(t, MustParseBinding("ctrl+y"), bs.Accept)
	assert.True(t, bs.ToggleService.IsZero())

	assert.Error(t, bs.Set("explode", MustParseBinding("ctrl+e")))
}
