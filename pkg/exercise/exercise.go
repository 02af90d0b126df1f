// Package exercise describes the rehearsal exercises a session can run.
//
// Each exercise kind is resolved once, at session creation, into a Profile
// that carries everything the orchestrator needs to know about it: which
// agent to talk to, which authorization variant to request, and whether a
// recorded declaration precedes the live conversation.
package exercise

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind identifies an exercise. The string values are the agent types used
// by the authorization service and the result pages.
type Kind string

const (
	// KindDeclaration is the press conference: a recorded declaration
	// followed by a question/answer conversation.
	KindDeclaration Kind = "declaration"

	// KindCommittee is the works-council (CSE) defense.
	KindCommittee Kind = "comite"

	// KindInterview is the live TV interview.
	KindInterview Kind = "investisseurs"
)

// Variant names an authorization variant for a signed conversation URL.
type Variant string

const (
	VariantDeclaration Variant = "declaration"
	VariantQuestions   Variant = "questions-reponses"
	VariantCommittee   Variant = "comite"
	VariantInterview   Variant = "investisseurs"
)

// ErrUnknownKind is returned for a kind that is not in the catalog.
var ErrUnknownKind = errors.New("exercise: unknown kind")

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts the canonical values plus a few English aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "declaration", "press", "press-conference":
		return KindDeclaration, nil
	case "comite", "committee", "cse":
		return KindCommittee, nil
	case "investisseurs", "interview", "tv":
		return KindInterview, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Profile is the resolved description of one exercise kind.
type Profile struct {
	Kind         Kind   `json:"kind"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	FirstMessage string `json:"first_message"`

	// MultiPhase is true when a recorded declaration precedes the live
	// conversation.
	MultiPhase bool `json:"multi_phase"`

	// Variant and AgentID describe the live conversation.
	// AgentID is only used when the signed URL cannot be obtained.
	Variant Variant `json:"variant"`
	AgentID string  `json:"-"`
}

// HasAgent reports whether the direct connection fallback is available.
func (p Profile) HasAgent() bool {
	return p.AgentID != ""
}

// Agents holds the provider agent identifiers per exercise.
type Agents struct {
	Declaration string `yaml:"declaration" json:"declaration"`
	Questions   string `yaml:"questions" json:"questions"`
	Committee   string `yaml:"committee" json:"committee"`
	Interview   string `yaml:"interview" json:"interview"`
}

// ForVariant returns the agent serving a variant.
// The questions variant falls back to the declaration agent.
func (a Agents) ForVariant(v Variant) string {
	switch v {
	case VariantDeclaration:
		return a.Declaration
	case VariantQuestions:
		if a.Questions != "" {
			return a.Questions
		}
		return a.Declaration
	case VariantCommittee:
		return a.Committee
	case VariantInterview:
		return a.Interview
	}
	return ""
}

// Catalog resolves kinds into profiles. Agent identifiers can be replaced at
// runtime; sessions already created keep the profile they resolved.
type Catalog struct {
	mu     sync.RWMutex
	agents Agents
}

// NewCatalog creates a catalog using the given agent identifiers.
func NewCatalog(agents Agents) *Catalog {
	return &Catalog{agents: agents}
}

// SetAgents replaces the agent identifiers.
func (c *Catalog) SetAgents(agents Agents) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents = agents
}

// Agents returns the current agent identifiers.
func (c *Catalog) Agents() Agents {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agents
}

// Profile resolves a kind.
func (c *Catalog) Profile(kind Kind) (Profile, error) {
	p, ok := builtin[kind]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	p.AgentID = c.Agents().ForVariant(p.Variant)
	return p, nil
}

// Profiles returns every profile sorted by kind.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, 0, len(builtin))
	for kind := range builtin {
		p, _ := c.Profile(kind)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

var builtin = map[Kind]Profile{
	KindDeclaration: {
		Kind:         KindDeclaration,
		Title:        "Conférence de presse",
		Description:  "Pitchez votre projet et répondez aux questions de la presse",
		FirstMessage: "Bonjour, vous avez la parole pour votre déclaration. Prenez votre temps.",
		MultiPhase:   true,
		Variant:      VariantQuestions,
	},
	KindCommittee: {
		Kind:         KindCommittee,
		Title:        "Comité social et économique (CSE)",
		Description:  "Faites face aux élus du personnel",
		FirstMessage: "Bonjour, présentez-nous les résultats de l'exercice.",
		Variant:      VariantCommittee,
	},
	KindInterview: {
		Kind:         KindInterview,
		Title:        "Interview TV",
		Description:  "Répondez à un journaliste imprévisible",
		FirstMessage: "Bonjour, présentez-nous votre projet et votre demande de financement.",
		Variant:      VariantInterview,
	},
}
