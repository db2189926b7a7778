// Package planner turns a committed substitution into the ordered actions
// the injector performs and reconciles the buffer with the expected screen
// state.
package planner

import (
	"fmt"

	"emojid/internal/buffer"
)

// Kind is the type of an injector action.
type Kind int

const (
	DeleteBackward Kind = iota
	InsertText
)

func (k Kind) String() string {
	switch k {
	case DeleteBackward:
		return "delete_backward"
	case InsertText:
		return "insert_text"
	default:
		return "unknown"
	}
}

// Action is one injector step. Count is set for DeleteBackward, Text for
// InsertText.
type Action struct {
	Kind  Kind
	Count int
	Text  string
}

func (a Action) String() string {
	if a.Kind == DeleteBackward {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Count)
	}
	return fmt.Sprintf("%s(%d bytes)", a.Kind, len(a.Text))
}

// Plan is a complete substitution: deletes always precede the insert.
type Plan struct {
	Actions []Action
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return len(p.Actions) == 0
}

// DeleteCount returns the total number of characters the plan deletes.
func (p Plan) DeleteCount() int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == DeleteBackward {
			n += a.Count
		}
	}
	return n
}

// Inserted returns the concatenated inserted text.
func (p Plan) Inserted() string {
	var s string
	for _, a := range p.Actions {
		if a.Kind == InsertText {
			s += a.Text
		}
	}
	return s
}

// Substitute plans replacing the last tokenLen clusters with replacement
// and applies the same edit to buf, so the buffer reflects the screen once
// the plan has run. A tokenLen larger than the buffer clears it.
func Substitute(buf *buffer.Buffer, tokenLen int, replacement string) Plan {
	var p Plan
	if tokenLen > 0 {
		p.Actions = append(p.Actions, Action{Kind: DeleteBackward, Count: tokenLen})
		buf.RemoveSuffix(tokenLen)
	}
	if replacement != "" {
		p.Actions = append(p.Actions, Action{Kind: InsertText, Text: replacement})
		buf.AppendText(replacement)
	}
	return p
}

// WithExtraDelete returns p with n more clusters deleted up front. It covers
// keys the hook could not suppress, which already reached the application
// but were never added to the buffer.
func (p Plan) WithExtraDelete(n int) Plan {
	if n <= 0 || p.Empty() {
		return p
	}
	out := Plan{Actions: append([]Action(nil), p.Actions...)}
	if out.Actions[0].Kind == DeleteBackward {
		out.Actions[0].Count += n
		return out
	}
	out.Actions = append([]Action{{Kind: DeleteBackward, Count: n}}, out.Actions...)
	return out
}
