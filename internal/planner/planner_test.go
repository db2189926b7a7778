package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emojid/internal/buffer"
)

func TestSubstitute(t *testing.T) {
	b := buffer.New(50)
	b.AppendText("hi :)")

	p := Substitute(b, 2, "🙂")

	require.Len(t, p.Actions, 2)
	assert.Equal(t, Action{Kind: DeleteBackward, Count: 2}, p.Actions[0])
	assert.Equal(t, Action{Kind: InsertText, Text: "🙂"}, p.Actions[1])
	assert.Equal(t, "hi 🙂", b.String())
	assert.Equal(t, 2, p.DeleteCount())
	assert.Equal(t, "🙂", p.Inserted())
}

func TestSubstitute_Underflow(t *testing.T) {
	b := buffer.New(50)
	b.AppendText("ab")

	p := Substitute(b, 5, "x")

	// The screen still receives the full delete count.
	assert.Equal(t, 5, p.DeleteCount())
	assert.Equal(t, "x", b.String())
}

func TestSubstitute_Edges(t *testing.T) {
	tests := []struct {
		name     string
		tokenLen int
		repl     string
		kinds    []Kind
		want     string
	}{
		{"delete only", 1, "", []Kind{DeleteBackward}, "a"},
		{"insert only", 0, "z", []Kind{InsertText}, "abz"},
		{"nothing", 0, "", nil, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := buffer.New(10)
			b.AppendText("ab")
			p := Substitute(b, tt.tokenLen, tt.repl)

			var kinds []Kind
			for _, a := range p.Actions {
				kinds = append(kinds, a.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, tt.kinds == nil, p.Empty())
		})
	}
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "delete_backward(3)", Action{Kind: DeleteBackward, Count: 3}.String())
	assert.Equal(t, "insert_text(4 bytes)", Action{Kind: InsertText, Text: "😏"}.String())
}

func TestPlan_WithExtraDelete(t *testing.T) {
	b := buffer.New(50)
	b.AppendText(":sm")
	p := Substitute(b, 3, "😏")

	got := p.WithExtraDelete(1)
	assert.Equal(t, 4, got.DeleteCount())
	assert.Equal(t, "😏", got.Inserted())
	assert.Equal(t, 3, p.DeleteCount(), "original plan is unchanged")

	insertOnly := Plan{Actions: []Action{{Kind: InsertText, Text: "x"}}}
	got = insertOnly.WithExtraDelete(2)
	require.Len(t, got.Actions, 2)
	assert.Equal(t, Action{Kind: DeleteBackward, Count: 2}, got.Actions[0])

	assert.True(t, Plan{}.WithExtraDelete(1).Empty())
	assert.Equal(t, p, p.WithExtraDelete(0))
}
