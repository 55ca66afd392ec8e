package main

import (
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"

	"redswarm/internal/agents"
	"redswarm/internal/messages"
	"redswarm/internal/replay"
	"redswarm/internal/terminal"
)

var cliColors = map[string]color.Attribute{
	"black":   color.FgBlack,
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
}

var (
	terminalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	outputStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// replayPrinter writes a replayed session as a transcript.
type replayPrinter struct {
	out      io.Writer
	profiles *agents.Table
	markdown *glamour.TermRenderer
	plain    bool
}

func newReplayPrinter(out io.Writer, profiles *agents.Table, renderMarkdown, plain bool) (*replayPrinter, error) {
	p := &replayPrinter{out: out, profiles: profiles, plain: plain}
	if !renderMarkdown {
		return p, nil
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w-4, 120)
	}
	style := glamour.WithStandardStyle("dark")
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	p.markdown = renderer
	return p, nil
}

func (p *replayPrinter) Print(result *replay.Result) {
	fmt.Fprintf(p.out, "%s %s\n", bold("Session"), result.SessionID)
	if result.Model != "" {
		fmt.Fprintf(p.out, "%s %s\n", bold("Model"), result.Model)
	}
	fmt.Fprintf(p.out, "%s %d\n\n", bold("Events"), result.EventCount)

	for _, w := range result.Wire() {
		p.printMessage(w)
	}

	if len(result.Terminal) > 0 {
		fmt.Fprintln(p.out, p.terminalPane(result.Terminal))
	}
	p.printStatus(result)
}

func (p *replayPrinter) agentLabel(name string) string {
	info := p.profiles.Info(name)
	label := info.Avatar + " " + info.DisplayName
	if p.plain {
		return info.DisplayName
	}
	attr, ok := cliColors[info.CLIColor]
	if !ok {
		attr = color.FgBlue
	}
	return color.New(attr, color.Bold).Sprint(label)
}

func (p *replayPrinter) printMessage(w messages.Wire) {
	switch w.Type {
	case messages.KindUser:
		fmt.Fprintf(p.out, "%s %s\n\n", bold("> You:"), w.Content)
	case messages.KindAI:
		fmt.Fprintf(p.out, "%s\n", p.agentLabel(w.AgentName))
		if content := strings.TrimSpace(w.Content); content != "" {
			fmt.Fprintln(p.out, p.renderMarkdown(content))
		}
		for _, call := range w.ToolCalls {
			fmt.Fprintf(p.out, "  %s %s\n", gray("->"), call.Name)
		}
		fmt.Fprintln(p.out)
	case messages.KindTool:
		name := w.ToolDisplayName
		if name == "" {
			name = w.ToolName
		}
		fmt.Fprintf(p.out, "%s %s\n", gray("tool"), bold(name))
		fmt.Fprintf(p.out, "%s\n\n", gray(indent(w.Content, "   ")))
	}
}

func (p *replayPrinter) renderMarkdown(content string) string {
	if p.markdown == nil {
		return content
	}
	rendered, err := p.markdown.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func (p *replayPrinter) terminalPane(lines []terminal.Line) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		content := html.UnescapeString(line.Content)
		switch {
		case p.plain:
			b.WriteString(content)
		case line.Type == terminal.LineCommand:
			b.WriteString(commandStyle.Render(content))
		default:
			b.WriteString(outputStyle.Render(content))
		}
	}
	if p.plain {
		return b.String()
	}
	return terminalStyle.Render(b.String())
}

func (p *replayPrinter) printStatus(result *replay.Result) {
	active := "none"
	if result.ActiveAgent != "" {
		active = p.profiles.DisplayName(result.ActiveAgent)
	}
	completed := make([]string, 0, len(result.CompletedAgents))
	for _, name := range result.CompletedAgents {
		completed = append(completed, p.profiles.DisplayName(name))
	}
	fmt.Fprintf(p.out, "\n%s %s\n", bold("Active:"), green(active))
	if len(completed) > 0 {
		fmt.Fprintf(p.out, "%s %s\n", bold("Completed:"), strings.Join(completed, ", "))
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
