package agents

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Profile holds the static presentation attributes of an agent.
type Profile struct {
	DisplayName string `yaml:"display_name" json:"display_name"`
	Color       string `yaml:"color" json:"color"`
	CLIColor    string `yaml:"cli_color" json:"cli_color"`
	Avatar      string `yaml:"avatar" json:"avatar"`
	CSSClass    string `yaml:"css_class" json:"css_class"`
}

// Info is a fully resolved view of one raw agent name.
type Info struct {
	Key Key `json:"normalized_name"`
	Profile
}

// Table is an immutable lookup of profiles keyed by canonical agent.
type Table struct {
	profiles map[Key]Profile
	fallback Profile
}

var defaultFallback = Profile{
	DisplayName: "Unknown Agent",
	Color:       "#adb5bd",
	CLIColor:    "blue",
	Avatar:      "🤖",
	CSSClass:    "agent-message",
}

var defaultProfiles = map[Key]Profile{
	Planner:             {DisplayName: "Planner", Color: "#4dabf7", CLIColor: "cyan", Avatar: "🧠", CSSClass: "planner-message"},
	Reconnaissance:      {DisplayName: "Reconnaissance", Color: "#51cf66", CLIColor: "green", Avatar: "🔍", CSSClass: "reconnaissance-message"},
	InitialAccess:       {DisplayName: "Initial Access", Color: "#ff6b6b", CLIColor: "red", Avatar: "🔓", CSSClass: "initial-access-message"},
	Execution:           {DisplayName: "Execution", Color: "#ffa94d", CLIColor: "yellow", Avatar: "⚡", CSSClass: "execution-message"},
	Persistence:         {DisplayName: "Persistence", Color: "#9775fa", CLIColor: "magenta", Avatar: "🔗", CSSClass: "persistence-message"},
	PrivilegeEscalation: {DisplayName: "Privilege Escalation", Color: "#f06595", CLIColor: "magenta", Avatar: "👑", CSSClass: "privilege-escalation-message"},
	DefenseEvasion:      {DisplayName: "Defense Evasion", Color: "#868e96", CLIColor: "white", Avatar: "🥷", CSSClass: "defense-evasion-message"},
	Summary:             {DisplayName: "Summary", Color: "#20c997", CLIColor: "green", Avatar: "📋", CSSClass: "summary-message"},
	Tool:                {DisplayName: "Tool", Color: "#fab005", CLIColor: "yellow", Avatar: "🔧", CSSClass: "tool-message"},
	Supervisor:          {DisplayName: "Supervisor", Color: "#339af0", CLIColor: "blue", Avatar: "👁", CSSClass: "supervisor-message"},
}

// DefaultTable returns the built-in profile table.
func DefaultTable() *Table {
	profiles := make(map[Key]Profile, len(defaultProfiles))
	for key, profile := range defaultProfiles {
		profiles[key] = profile
	}
	return &Table{profiles: profiles, fallback: defaultFallback}
}

type tableFile struct {
	Default *Profile           `yaml:"default"`
	Agents  map[string]Profile `yaml:"agents"`
}

// LoadTable reads a YAML profile file and merges it over the defaults.
// Unset fields keep their default value; agent names are normalized.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent profiles: %w", err)
	}
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agent profiles: %w", err)
	}

	table := DefaultTable()
	if file.Default != nil {
		table.fallback = mergeProfile(table.fallback, *file.Default)
	}
	for name, override := range file.Agents {
		key := Normalize(name)
		if key == Unknown {
			return nil, fmt.Errorf("parse agent profiles: unknown agent %q", name)
		}
		table.profiles[key] = mergeProfile(table.profiles[key], override)
	}
	return table, nil
}

func mergeProfile(base, override Profile) Profile {
	if override.DisplayName != "" {
		base.DisplayName = override.DisplayName
	}
	if override.Color != "" {
		base.Color = override.Color
	}
	if override.CLIColor != "" {
		base.CLIColor = override.CLIColor
	}
	if override.Avatar != "" {
		base.Avatar = override.Avatar
	}
	if override.CSSClass != "" {
		base.CSSClass = override.CSSClass
	}
	return base
}

// Profile returns the profile for a raw name, or the fallback profile.
func (t *Table) Profile(raw string) Profile {
	if profile, ok := t.profiles[Normalize(raw)]; ok {
		return profile
	}
	return t.fallback
}

// Fallback returns the profile used for unknown agents.
func (t *Table) Fallback() Profile {
	return t.fallback
}

// Info resolves every attribute of a raw name at once.
func (t *Table) Info(raw string) Info {
	profile := t.Profile(raw)
	profile.DisplayName = t.DisplayName(raw)
	return Info{Key: Normalize(raw), Profile: profile}
}

// DisplayName returns a human readable agent name. Unknown raw names are
// title-cased rather than collapsed onto the fallback, except for the empty
// and "Unknown" names.
func (t *Table) DisplayName(raw string) string {
	if raw == "" || raw == UnknownName {
		return t.fallback.DisplayName
	}
	if profile, ok := t.profiles[Normalize(raw)]; ok && profile.DisplayName != "" {
		return profile.DisplayName
	}
	return fallbackName(raw)
}

func (t *Table) Color(raw string) string    { return t.Profile(raw).Color }
func (t *Table) CLIColor(raw string) string { return t.Profile(raw).CLIColor }
func (t *Table) Avatar(raw string) string   { return t.Profile(raw).Avatar }
func (t *Table) CSSClass(raw string) string { return t.Profile(raw).CSSClass }

// All returns resolved info for every known agent in precedence order.
func (t *Table) All() []Info {
	out := make([]Info, 0, len(precedence))
	for _, key := range Keys() {
		out = append(out, t.Info(string(key)))
	}
	return out
}

func fallbackName(raw string) string {
	if strings.Contains(raw, "_") {
		return TitleWords(strings.ReplaceAll(raw, "_", " "))
	}
	runes := []rune(strings.ToLower(raw))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// TitleWords upper-cases the first letter of every space separated word and
// lower-cases the rest.
func TitleWords(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
