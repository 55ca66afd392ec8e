// Package terminal projects tool messages onto the lines of a simulated
// shell pane.
package terminal

import (
	"strings"
	"sync"
	"time"

	"redswarm/internal/messages"
)

// LineType tags terminal lines.
type LineType string

const (
	LineCommand LineType = "command"
	LineOutput  LineType = "output"
)

// TimestampLayout formats line timestamps.
const TimestampLayout = "15:04:05"

// Line is one rendered terminal entry. Output content is already escaped.
type Line struct {
	Type      LineType `json:"type"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
}

// DefaultMaxLines bounds a projector's retained buffer.
const DefaultMaxLines = 200

// Projector turns tool messages into terminal lines and keeps the buffer of
// the active terminal. Each message id is projected at most once until
// Clear. It is safe for concurrent use.
type Projector struct {
	mu        sync.Mutex
	processed map[string]struct{}
	lines     []Line
	maxLines  int
	now       func() time.Time
}

// Option configures a Projector.
type Option func(*Projector)

// WithMaxLines bounds the retained buffer; non-positive keeps the default.
func WithMaxLines(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.maxLines = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Projector) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProjector(opts ...Option) *Projector {
	p := &Projector{
		processed: make(map[string]struct{}),
		maxLines:  DefaultMaxLines,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project renders msg and appends the result to the buffer. A message id
// already projected returns nil.
func (p *Projector) Project(msg messages.ToolMessage) []Line {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.ID != "" {
		if _, ok := p.processed[msg.ID]; ok {
			return nil
		}
		p.processed[msg.ID] = struct{}{}
	}

	lines := Render(msg.ToolDisplayName, msg.Content, p.now().Format(TimestampLayout))
	p.lines = append(p.lines, lines...)
	if over := len(p.lines) - p.maxLines; over > 0 {
		p.lines = append([]Line(nil), p.lines[over:]...)
	}
	return lines
}

// Lines returns a copy of the retained buffer.
func (p *Projector) Lines() []Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Line(nil), p.lines...)
}

// Clear empties the buffer and forgets projected ids.
func (p *Projector) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = nil
	p.processed = make(map[string]struct{})
}

// Render is the stateless projection of one tool result. Blank content
// renders nothing.
func Render(displayName, content, timestamp string) []Line {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if displayName == "" {
		displayName = "Tool"
	}

	if IsTerminalTool(displayName) {
		if lines, ok := renderShell(content, timestamp); ok {
			return lines
		}
		return []Line{
			{Type: LineCommand, Content: CleanCommand(strings.ToLower(displayName)), Timestamp: timestamp},
			{Type: LineOutput, Content: Sanitize(content), Timestamp: timestamp},
		}
	}

	return []Line{
		{Type: LineCommand, Content: displayName, Timestamp: timestamp},
		{Type: LineOutput, Content: Sanitize(content), Timestamp: timestamp},
	}
}

// renderShell splits content at its first command line.
func renderShell(content, timestamp string) ([]Line, bool) {
	rows := strings.Split(content, "\n")
	for i, row := range rows {
		row = strings.TrimSpace(row)
		if !isCommandLine(row) {
			continue
		}
		command := CleanCommand(ExtractCommand(row))
		if command == "" {
			continue
		}
		lines := []Line{{Type: LineCommand, Content: command, Timestamp: timestamp}}
		if rest := strings.TrimSpace(strings.Join(rows[i+1:], "\n")); rest != "" {
			lines = append(lines, Line{Type: LineOutput, Content: Sanitize(rest), Timestamp: timestamp})
		}
		return lines, true
	}
	return nil, false
}
