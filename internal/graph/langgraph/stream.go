package langgraph

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"redswarm/internal/graph"
	"redswarm/internal/logging"
)

// sseStream reads server-sent events of a streaming run. Update events are
// named "updates" or "updates|<ns>|<ns>..." when they come from a subgraph.
type sseStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	logger    logging.Logger
	closeOnce sync.Once
	closeErr  error
	finished  bool
}

type sseEvent struct {
	name string
	data string
}

func (s *sseStream) Next(ctx context.Context) (graph.Update, error) {
	for {
		if err := ctx.Err(); err != nil {
			return graph.Update{}, err
		}
		if s.finished {
			return graph.Update{}, io.EOF
		}
		event, err := s.readEvent()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return graph.Update{}, ctxErr
			}
			return graph.Update{}, err
		}

		kind, namespace := splitEventName(event.name)
		switch kind {
		case "updates":
			update, err := decodeUpdate(namespace, []byte(event.data))
			if err != nil {
				s.logger.Warn("Skipping undecodable update (event=%s): %v", event.name, err)
				continue
			}
			return update, nil
		case "error":
			return graph.Update{}, fmt.Errorf("graph run failed: %s", errorDetail(event.data))
		case "end":
			s.finished = true
			return graph.Update{}, io.EOF
		default:
			continue
		}
	}
}

// readEvent collects lines up to the next blank line.
func (s *sseStream) readEvent() (sseEvent, error) {
	var event sseEvent
	var data []string
	seen := false
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if seen {
				event.data = strings.Join(data, "\n")
				return event, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event.name = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		return sseEvent{}, fmt.Errorf("read event stream: %w", err)
	}
	if seen {
		event.data = strings.Join(data, "\n")
		return event, nil
	}
	return sseEvent{}, io.EOF
}

func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// splitEventName separates "updates|Planner:1|tools:2" into its kind and
// namespace path.
func splitEventName(name string) (string, []string) {
	if name == "" {
		return "message", nil
	}
	parts := strings.Split(name, "|")
	var namespace []string
	for _, part := range parts[1:] {
		if part = strings.TrimSpace(part); part != "" {
			namespace = append(namespace, part)
		}
	}
	return parts[0], namespace
}

func errorDetail(data string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err == nil {
		switch {
		case payload.Error != "" && payload.Message != "":
			return payload.Error + ": " + payload.Message
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		}
	}
	return strings.TrimSpace(data)
}
