// Package agents resolves raw agent and namespace strings into canonical swarm
// agent keys and their presentation attributes.
package agents

import "strings"

// Key is the canonical name of a swarm agent. The zero value means unknown.
type Key string

const (
	Unknown             Key = ""
	Planner             Key = "planner"
	Reconnaissance      Key = "reconnaissance"
	InitialAccess       Key = "initial_access"
	Execution           Key = "execution"
	Persistence         Key = "persistence"
	PrivilegeEscalation Key = "privilege_escalation"
	DefenseEvasion      Key = "defense_evasion"
	Summary             Key = "summary"
	Tool                Key = "tool"
	Supervisor          Key = "supervisor"
)

// UnknownName is the raw agent name used when a namespace carries no agent.
const UnknownName = "Unknown"

type matchRule struct {
	key      Key
	keywords []string
}

// Order matters: the first rule with a matching keyword wins.
var precedence = []matchRule{
	{key: Planner, keywords: []string{"planner"}},
	{key: Reconnaissance, keywords: []string{"reconnaissance", "recon"}},
	{key: InitialAccess, keywords: []string{"initial_access", "initial"}},
	{key: Execution, keywords: []string{"execution"}},
	{key: Persistence, keywords: []string{"persistence"}},
	{key: PrivilegeEscalation, keywords: []string{"privilege_escalation", "privilege"}},
	{key: DefenseEvasion, keywords: []string{"defense_evasion", "defense", "evasion"}},
	{key: Summary, keywords: []string{"summary"}},
	{key: Tool, keywords: []string{"tool"}},
	{key: Supervisor, keywords: []string{"supervisor"}},
}

// Normalize maps a raw agent or namespace string onto a Key using
// case-insensitive substring matching in fixed precedence order.
// Names that match no keyword yield Unknown.
func Normalize(raw string) Key {
	if raw == "" {
		return Unknown
	}
	lower := strings.ToLower(raw)
	for _, rule := range precedence {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.key
			}
		}
	}
	return Unknown
}

// Keys lists every known agent key in precedence order.
func Keys() []Key {
	keys := make([]Key, 0, len(precedence))
	for _, rule := range precedence {
		keys = append(keys, rule.key)
	}
	return keys
}

// FromNamespace returns the raw agent name carried by a graph namespace.
// The first namespace segment has the form "<Agent>:<uuid>"; a segment
// without ":" yields UnknownName and one starting with ":" yields "".
func FromNamespace(namespace []string) string {
	if len(namespace) == 0 {
		return UnknownName
	}
	head, _, found := strings.Cut(namespace[0], ":")
	if !found {
		return UnknownName
	}
	return head
}

// ActivityName returns the name used to track agent turn-taking: the
// canonical key when the raw name resolves, otherwise the lowercased raw
// name. Empty and unknown names return "".
func ActivityName(raw string) string {
	if key := Normalize(raw); key != Unknown {
		return string(key)
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, UnknownName) {
		return ""
	}
	return strings.ToLower(trimmed)
}
