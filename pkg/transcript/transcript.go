// Package transcript holds the ordered turns of a spoken exercise.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one utterance.
type Turn struct {
	Role    Role          `json:"role"`
	Message string        `json:"message"`
	Offset  time.Duration `json:"offset"`
}

// Transcript is an ordered list of turns.
type Transcript struct {
	Turns []Turn `json:"turns"`
}

// FromText wraps a monologue as a single user turn. Surrounding whitespace
// is trimmed.
func FromText(text string) Transcript {
	text = strings.TrimSpace(text)
	if text == "" {
		return Transcript{}
	}
	return Transcript{Turns: []Turn{{Role: RoleUser, Message: text}}}
}

// Append adds a turn. Blank messages are dropped.
func (t *Transcript) Append(role Role, message string, offset time.Duration) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	t.Turns = append(t.Turns, Turn{Role: role, Message: message, Offset: offset})
}

// Empty reports whether no turn carries text.
func (t Transcript) Empty() bool {
	for _, turn := range t.Turns {
		if strings.TrimSpace(turn.Message) != "" {
			return false
		}
	}
	return true
}

// Text joins the messages with newlines, without speaker labels.
func (t Transcript) Text() string {
	msgs := make([]string, 0, len(t.Turns))
	for _, turn := range t.Turns {
		msgs = append(msgs, turn.Message)
	}
	return strings.Join(msgs, "\n")
}

// Dialogue renders one "label: message" line per turn. userLabel and
// agentLabel name the two speakers.
func (t Transcript) Dialogue(userLabel, agentLabel string) string {
	var b strings.Builder
	for _, turn := range t.Turns {
		label := userLabel
		if turn.Role == RoleAgent {
			label = agentLabel
		}
		fmt.Fprintf(&b, "%s: %s\n", label, turn.Message)
	}
	return b.String()
}

// Concat returns a followed by b.
func Concat(a, b Transcript) Transcript {
	out := Transcript{Turns: make([]Turn, 0, len(a.Turns)+len(b.Turns))}
	out.Turns = append(out.Turns, a.Turns...)
	out.Turns = append(out.Turns, b.Turns...)
	return out
}
