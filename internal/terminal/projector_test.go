package terminal

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redswarm/internal/messages"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 13, 45, 10, 0, time.UTC)
}

func TestProjectTerminalToolSplitsCommandAndOutput(t *testing.T) {
	p := NewProjector(WithClock(fixedClock))
	lines := p.Project(messages.ToolMessage{
		ID:              "t1",
		ToolDisplayName: "Terminal",
		Content:         "$ nmap -sV 10.0.0.1\nopen 22/tcp ssh",
	})

	require.Len(t, lines, 2)
	assert.Equal(t, Line{Type: LineCommand, Content: "nmap -sV 10.0.0.1", Timestamp: "13:45:10"}, lines[0])
	assert.Equal(t, LineOutput, lines[1].Type)
	assert.Equal(t, "open 22/tcp ssh", lines[1].Content)
}

func TestProjectNonTerminalToolEscapesOutput(t *testing.T) {
	p := NewProjector()
	lines := p.Project(messages.ToolMessage{ID: "t2", ToolDisplayName: "Searchsploit", Content: "<script>alert(1)</script>"})

	require.Len(t, lines, 2)
	assert.Equal(t, "Searchsploit", lines[0].Content)
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", lines[1].Content)
	assert.NotContains(t, lines[1].Content, "<")
	assert.NotContains(t, lines[1].Content, ">")
}

func TestProjectTerminalToolWithoutMarker(t *testing.T) {
	lines := Render("Shell Exec", "uid=0(root)\nok", "00:00:00")
	require.Len(t, lines, 2)
	assert.Equal(t, "shell exec", lines[0].Content)
	assert.Equal(t, "uid=0(root)<br>ok", lines[1].Content)
}

func TestProjectMarkerVariants(t *testing.T) {
	lines := Render("Command Exec", "banner\nRunning command: msfconsole -q\n[*] started", "t")
	require.Len(t, lines, 2)
	assert.Equal(t, "msfconsole -q", lines[0].Content)
	assert.Equal(t, "[*] started", lines[1].Content)

	lines = Render("Terminal", "# whoami", "t")
	require.Len(t, lines, 1)
	assert.Equal(t, "whoami", lines[0].Content)
}

func TestProjectSkipsRepeatsAndBlankContent(t *testing.T) {
	p := NewProjector()
	msg := messages.ToolMessage{ID: "same", ToolDisplayName: "Nmap", Content: "x"}
	assert.Len(t, p.Project(msg), 2)
	assert.Nil(t, p.Project(msg))
	assert.Nil(t, p.Project(messages.ToolMessage{ID: "blank", ToolDisplayName: "Nmap", Content: "  "}))
	assert.Len(t, p.Lines(), 2)

	p.Clear()
	assert.Empty(t, p.Lines())
	assert.Len(t, p.Project(msg), 2)
}

func TestProjectorBoundsBuffer(t *testing.T) {
	p := NewProjector(WithMaxLines(4))
	for i := 0; i < 5; i++ {
		p.Project(messages.ToolMessage{ID: fmt.Sprint(i), ToolDisplayName: "Nmap", Content: fmt.Sprint("out", i)})
	}
	lines := p.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "out4", lines[3].Content)
	assert.Equal(t, "out3", lines[1].Content)
}

func TestSanitizeOrder(t *testing.T) {
	assert.Equal(t, "a &amp;lt; b<br>c &gt; d", Sanitize("a &lt; b\nc > d"))
}

func TestCleanCommand(t *testing.T) {
	assert.Equal(t, "ls -la", CleanCommand("Executing: ls -la\nmore"))
	assert.Equal(t, "id", CleanCommand("$ id"))
	assert.Equal(t, "id", CleanCommand("# id"))
	assert.Equal(t, "nmap", CleanCommand("Running command: nmap"))
}

func TestIsTerminalTool(t *testing.T) {
	assert.True(t, IsTerminalTool("Terminal"))
	assert.True(t, IsTerminalTool("Execute Command"))
	assert.True(t, IsTerminalTool("Shell"))
	assert.False(t, IsTerminalTool("Nmap Scan"))
}
