package langgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"redswarm/internal/graph"
)

type wireToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type wireMessage struct {
	Type             string         `json:"type"`
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Content          any            `json:"content"`
	ToolCalls        []wireToolCall `json:"tool_calls"`
	ToolCallID       string         `json:"tool_call_id"`
	UsageMetadata    *graph.Usage   `json:"usage_metadata"`
	ResponseMetadata map[string]any `json:"response_metadata"`
}

type nodeState struct {
	Messages []wireMessage `json:"messages"`
}

// decodeUpdate parses a {node: state} object keeping node order.
func decodeUpdate(namespace []string, data []byte) (graph.Update, error) {
	update := graph.Update{Namespace: namespace}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return update, fmt.Errorf("decode update: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return update, fmt.Errorf("decode update: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return update, fmt.Errorf("decode update: %w", err)
		}
		node, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return update, fmt.Errorf("decode node %s: %w", node, err)
		}
		update.Nodes = append(update.Nodes, graph.NodeUpdate{Node: node, Messages: decodeMessages(raw)})
	}
	return update, nil
}

// decodeMessages reads a node state's message list. States without one,
// such as null or interrupt payloads, yield nil.
func decodeMessages(raw json.RawMessage) []graph.RawMessage {
	var state nodeState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil
	}
	out := make([]graph.RawMessage, 0, len(state.Messages))
	for _, m := range state.Messages {
		msg := graph.RawMessage{
			Type:       strings.ToLower(m.Type),
			ID:         m.ID,
			Name:       m.Name,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Usage:      m.UsageMetadata,
			Metadata:   m.ResponseMetadata,
		}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, graph.RawToolCall{ID: call.ID, Name: call.Name, Args: decodeArgs(call.Args)})
		}
		out = append(out, msg)
	}
	return out
}

// decodeArgs accepts an args object or a JSON string holding one. Malformed
// strings are repaired; anything unusable becomes an empty map.
func decodeArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err == nil && args != nil {
		return args
	}
	args = map[string]any{}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return args
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return args
	}
	if err := json.Unmarshal([]byte(text), &args); err == nil {
		return args
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return map[string]any{}
	}
	args = map[string]any{}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return map[string]any{}
	}
	return args
}
