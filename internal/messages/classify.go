package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"redswarm/internal/agents"
	"redswarm/internal/graph"
)

// idPrefixLen is how many runes of content feed a synthesized identifier.
// Distinct messages from one agent sharing this prefix collide and the later
// one is treated as a repeat.
const idPrefixLen = 100

// Agent names attributed to messages that no swarm agent authored.
const (
	UserAgentName = "User"
	ToolAgentName = "Tool"
)

// StableID returns nativeID when set, otherwise an identifier derived from
// the agent name and a hash of the content prefix.
func StableID(nativeID, agentName, content string) string {
	if id := strings.TrimSpace(nativeID); id != "" {
		return id
	}
	prefix := content
	if runes := []rune(content); len(runes) > idPrefixLen {
		prefix = string(runes[:idPrefixLen])
	}
	return fmt.Sprintf("%s_%016x", agentName, xxhash.Sum64String(prefix))
}

// KindOf maps a raw graph message type onto a Kind.
func KindOf(raw graph.RawMessage) (Kind, bool) {
	switch strings.ToLower(raw.Type) {
	case graph.TypeHuman, "user", "humanmessage":
		return KindUser, true
	case graph.TypeAI, "assistant", "aimessage", "aimessagechunk":
		return KindAI, true
	case graph.TypeTool, "toolmessage":
		return KindTool, true
	default:
		return "", false
	}
}

// Seen is the set of message identifiers already emitted in one run.
// It is not safe for concurrent use.
type Seen struct {
	ids map[string]struct{}
}

func NewSeen() *Seen {
	return &Seen{ids: make(map[string]struct{})}
}

// Observe records id and reports whether it was new.
func (s *Seen) Observe(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *Seen) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Seen) Len() int {
	return len(s.ids)
}

// Classify decides whether raw should be emitted and with which kind. A
// message is emitted the first time its identifier is observed in seen;
// repeats and unsupported types return false.
func Classify(raw graph.RawMessage, agentName string, seen *Seen) (bool, Kind) {
	kind, ok := KindOf(raw)
	if !ok {
		return false, ""
	}
	id := StableID(raw.ID, agentName, ExtractContent(raw.Content))
	if !seen.Observe(id) {
		return false, ""
	}
	return true, kind
}

// Classifier converts raw graph messages into Messages, suppressing repeats
// within its lifetime. Use one Classifier per run.
type Classifier struct {
	seen *Seen
	now  func() time.Time
}

func NewClassifier(now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{seen: NewSeen(), now: now}
}

// Ingest classifies raw and, when it is new, converts it.
func (c *Classifier) Ingest(raw graph.RawMessage, agentName string) (Message, bool) {
	emit, _ := Classify(raw, agentName, c.seen)
	if !emit {
		return nil, false
	}
	return FromRaw(raw, agentName, c.now())
}

// FromRaw converts a raw graph message into its Message variant.
func FromRaw(raw graph.RawMessage, agentName string, at time.Time) (Message, bool) {
	kind, ok := KindOf(raw)
	if !ok {
		return nil, false
	}
	content := ExtractContent(raw.Content)
	id := StableID(raw.ID, agentName, content)

	switch kind {
	case KindUser:
		return UserMessage{ID: id, Content: content, Timestamp: at}, true
	case KindAI:
		msg := AgentMessage{
			ID:        id,
			AgentName: agentName,
			Agent:     agents.Normalize(agentName),
			Content:   content,
			Model:     raw.ModelName(),
			Usage:     raw.Usage,
			Timestamp: at,
		}
		for _, call := range raw.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: call.ID, Name: call.Name, Args: call.Args})
		}
		return msg, true
	default:
		name := raw.Name
		if name == "" {
			name = "Unknown Tool"
		}
		return ToolMessage{
			ID:              id,
			AgentName:       agentName,
			ToolName:        name,
			ToolDisplayName: DisplayToolName(name),
			ToolCallID:      raw.ToolCallID,
			Content:         content,
			Timestamp:       at,
		}, true
	}
}
