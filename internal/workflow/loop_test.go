package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "redswarm/internal/errors"
	"redswarm/internal/executor"
	"redswarm/internal/graph"
	"redswarm/internal/messages"
	"redswarm/internal/sessionlog"
	"redswarm/internal/terminal"
	"redswarm/internal/testutil"
)

type captured struct {
	mu        sync.Mutex
	messages  []messages.Message
	terminal  []terminal.Line
	completed int
	errors    []string
	notices   []string
}

func (c *captured) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(m messages.Message) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.messages = append(c.messages, m)
		},
		OnTerminal: func(lines []terminal.Line) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.terminal = append(c.terminal, lines...)
		},
		OnComplete: func(executor.Event) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.completed++
		},
		OnError: func(msg string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errors = append(c.errors, msg)
		},
		OnNotice: func(msg string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.notices = append(c.notices, msg)
		},
	}
}

func (c *captured) kinds() []messages.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]messages.Kind, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Kind())
	}
	return out
}

func newLoop(g graph.Graph, opts ...Option) *Loop {
	return New(executor.New(g), graph.NewThreadConfig("tester", "c1"), opts...)
}

func waitResult(t *testing.T, h *Handle) RunResult {
	t.Helper()
	select {
	case <-h.Done():
		return h.Wait()
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not finish")
		return RunResult{}
	}
}

func aiTick(namespace, id, content string) graph.Update {
	return testutil.Tick(namespace, testutil.Node("agent", testutil.AI(id, content)))
}

func TestAgentTransitionsFollowTurnTaking(t *testing.T) {
	g := &testutil.ScriptedGraph{Ticks: []graph.Update{
		aiTick("Planner:1", "a1", "plan"),
		aiTick("Planner:1", "a2", "plan more"),
		aiTick("Reconnaissance:2", "b1", "scanning"),
		aiTick("Reconnaissance:2", "b2", "scan done"),
		aiTick("Summary:3", "c1", "report"),
	}}
	loop := newLoop(g)
	got := &captured{}

	result, err := loop.Run(context.Background(), "assess 10.0.0.1", got.callbacks())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 6, result.EventCount)
	assert.Equal(t, map[string]int{"Planner": 2, "Reconnaissance": 2, "Summary": 1}, result.AgentActivity)
	assert.Equal(t, AgentStatus{Active: "summary", Completed: []string{"planner", "reconnaissance"}}, loop.Status())
	assert.Equal(t, 1, got.completed)
	assert.Empty(t, got.errors)
	assert.False(t, loop.Running())
}

func TestEchoedUserInputIsNotRepeated(t *testing.T) {
	g := &testutil.ScriptedGraph{Ticks: []graph.Update{
		testutil.Tick("", testutil.Node("__start__", testutil.Human("h1", "scan it"))),
		aiTick("Planner:1", "a1", "on it"),
	}}
	loop := newLoop(g)
	got := &captured{}

	_, err := loop.Run(context.Background(), "scan it", got.callbacks())
	require.NoError(t, err)

	assert.Equal(t, []messages.Kind{messages.KindUser, messages.KindAI}, got.kinds())
	assert.Len(t, loop.Messages(), 2)
}

func TestToolMessagesReachTerminalAndLog(t *testing.T) {
	store := sessionlog.NewStore(t.TempDir())
	recorder := sessionlog.NewRecorder(store)
	sessionID := recorder.StartSession("gpt-4o")

	call := graph.RawToolCall{ID: "c1", Name: "nmap_scan", Args: map[string]any{"target": "10.0.0.1"}}
	g := &testutil.ScriptedGraph{Ticks: []graph.Update{
		testutil.Tick("Reconnaissance:1", testutil.Node("agent", testutil.AI("a1", "running nmap", call))),
		testutil.Tick("Reconnaissance:1", testutil.Node("tools",
			testutil.ToolResult("t1", "terminal", "$ nmap -sV 10.0.0.1\nopen 22/tcp ssh"))),
	}}
	cfg := DefaultConfig()
	cfg.LogToolCommands = true
	loop := newLoop(g, WithRecorder(recorder), WithConfig(cfg))
	got := &captured{}

	result, err := loop.Run(context.Background(), "scan", got.callbacks())
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, got.terminal, 2)
	assert.Equal(t, terminal.LineCommand, got.terminal[0].Type)
	assert.Equal(t, "nmap -sV 10.0.0.1", got.terminal[0].Content)
	assert.Equal(t, "open 22/tcp ssh", got.terminal[1].Content)
	assert.Len(t, loop.Terminal(), 2)

	saved, err := store.Load(context.Background(), sessionID)
	require.NoError(t, err)
	types := make([]sessionlog.EventType, 0, len(saved.Events))
	for _, event := range saved.Events {
		types = append(types, event.Type)
	}
	assert.Equal(t, []sessionlog.EventType{
		sessionlog.EventUserInput,
		sessionlog.EventAgentResponse,
		sessionlog.EventToolCommand,
		sessionlog.EventToolOutput,
	}, types)
	assert.Equal(t, "nmap_scan 10.0.0.1", saved.Events[2].Content)
	assert.Equal(t, "terminal", saved.Events[3].ToolName)
	assert.Equal(t, "Reconnaissance", saved.Events[3].AgentName)
	require.Len(t, saved.Events[1].ToolCalls, 1)
}

func TestIdleTimeoutEndsRunWithDistinctKind(t *testing.T) {
	g := &testutil.ScriptedGraph{Block: true}
	cfg := DefaultConfig()
	cfg.IdleTimeout = 30 * time.Millisecond
	loop := newLoop(g, WithConfig(cfg))
	got := &captured{}

	handle, err := loop.Start(context.Background(), "slow tool", got.callbacks())
	require.NoError(t, err)
	result := waitResult(t, handle)

	assert.False(t, result.Success)
	assert.Equal(t, apperrors.KindIdleTimeout, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "Workflow timeout")
	assert.Equal(t, []string{result.ErrorMessage}, got.errors)
	assert.False(t, loop.Running())
	require.Len(t, g.Streams(), 1)
	assert.True(t, g.Streams()[0].Closed())
}

func TestSecondRunRejectedWhileActive(t *testing.T) {
	g := &testutil.ScriptedGraph{Ticks: []graph.Update{aiTick("Planner:1", "a1", "thinking")}, Block: true}
	loop := newLoop(g)
	first := &captured{}

	handle, err := loop.Start(context.Background(), "first", first.callbacks())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(first.kinds()) == 2 }, time.Second, 5*time.Millisecond)

	second := &captured{}
	_, err = loop.Start(context.Background(), "second", second.callbacks())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, MsgAlreadyRunning, err.Error())
	assert.Empty(t, second.kinds())
	assert.True(t, loop.Running())
	assert.Equal(t, "planner", loop.Status().Active)
	assert.Len(t, loop.Messages(), 2)

	assert.True(t, loop.Stop())
	result := waitResult(t, handle)
	assert.True(t, result.Success)
	assert.True(t, result.Cancelled)
	assert.Empty(t, first.errors)
	assert.False(t, loop.Running())
	assert.True(t, g.Streams()[0].Closed())
	assert.False(t, loop.Stop())
}

func TestEmptyInputRejected(t *testing.T) {
	loop := newLoop(&testutil.ScriptedGraph{})
	_, err := loop.Start(context.Background(), "   ", Callbacks{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.False(t, loop.Running())
	assert.Empty(t, loop.Messages())
}

func TestErrorEventsAreTranslated(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
		kind    apperrors.Kind
	}{
		{"corruption", errors.New("INVALID_CHAT_HISTORY: dangling call"), MsgHistoryCorrupted, apperrors.KindHistoryCorrupted},
		{"generic", errors.New("boom"), "Workflow execution error: boom", apperrors.KindExecution},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &testutil.ScriptedGraph{Ticks: []graph.Update{aiTick("Planner:1", "a1", "partial")}, Err: tc.err}
			loop := newLoop(g)
			got := &captured{}

			result, err := loop.Run(context.Background(), "go", got.callbacks())
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, tc.message, result.ErrorMessage)
			assert.Equal(t, tc.kind, result.ErrorKind)
			assert.Equal(t, []string{tc.message}, got.errors)
			assert.Len(t, loop.Messages(), 2, "partial history is retained")
			assert.False(t, loop.Running())
		})
	}
}

func TestParentCancellationIsNotAnError(t *testing.T) {
	g := &testutil.ScriptedGraph{Block: true}
	loop := newLoop(g)
	got := &captured{}
	ctx, cancel := context.WithCancel(context.Background())

	handle, err := loop.Start(ctx, "go", got.callbacks())
	require.NoError(t, err)
	cancel()
	result := waitResult(t, handle)

	assert.True(t, result.Cancelled)
	assert.Empty(t, got.errors)
}

func TestHistoryIsBounded(t *testing.T) {
	var ticks []graph.Update
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		ticks = append(ticks, aiTick("Planner:1", id, "msg "+id))
	}
	cfg := DefaultConfig()
	cfg.MaxStructuredMessages = 3
	cfg.MaxEventHistory = 2
	loop := newLoop(&testutil.ScriptedGraph{Ticks: ticks}, WithConfig(cfg))

	_, err := loop.Run(context.Background(), "go", Callbacks{})
	require.NoError(t, err)

	msgs := loop.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a5", msgs[2].Identifier())
	assert.Equal(t, "a3", msgs[0].Identifier())

	history := loop.EventHistory()
	require.Len(t, history, 2)
	assert.Equal(t, executor.EventMessage, history[0].Type)
	assert.Equal(t, executor.EventWorkflowComplete, history[1].Type)
}

func TestCheckpointMaintenanceAndNotice(t *testing.T) {
	checkpointer := &testutil.Checkpointer{}
	cfg := DefaultConfig()
	cfg.CheckpointResetTurns = 2
	cfg.NewChatWarningTurns = 3
	loop := newLoop(&testutil.ScriptedGraph{}, WithConfig(cfg), WithCheckpointer(checkpointer))
	got := &captured{}

	for i := 0; i < 3; i++ {
		_, err := loop.Run(context.Background(), "turn", got.callbacks())
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"user_tester_conv_c1"}, checkpointer.Cleared())
	assert.Empty(t, got.notices)

	for i := 0; i < 2; i++ {
		_, err := loop.Run(context.Background(), "turn", got.callbacks())
		require.NoError(t, err)
	}
	assert.Len(t, checkpointer.Cleared(), 2)
	assert.Len(t, got.notices, 2)
}

func TestCheckpointClearFailureDoesNotFailRun(t *testing.T) {
	checkpointer := &testutil.Checkpointer{Err: errors.New("unavailable")}
	cfg := DefaultConfig()
	cfg.CheckpointResetTurns = 1
	loop := newLoop(&testutil.ScriptedGraph{}, WithConfig(cfg), WithCheckpointer(checkpointer))

	for i := 0; i < 2; i++ {
		result, err := loop.Run(context.Background(), "turn", Callbacks{})
		require.NoError(t, err)
		assert.True(t, result.Success)
	}
	assert.Len(t, checkpointer.Cleared(), 1)
}

func TestResetClearsSessionState(t *testing.T) {
	g := &testutil.ScriptedGraph{Ticks: []graph.Update{
		aiTick("Planner:1", "a1", "plan"),
		testutil.Tick("Planner:1", testutil.Node("tools", testutil.ToolResult("t1", "nmap_scan", "22/tcp open"))),
	}}
	loop := newLoop(g)
	_, err := loop.Run(context.Background(), "go", Callbacks{})
	require.NoError(t, err)
	require.NotEmpty(t, loop.Terminal())

	next := graph.NewThreadConfig("tester", "c2")
	require.NoError(t, loop.Reset(next))
	assert.Empty(t, loop.Messages())
	assert.Empty(t, loop.EventHistory())
	assert.Empty(t, loop.Terminal())
	assert.Equal(t, AgentStatus{Completed: []string{}}, loop.Status())
	assert.Equal(t, next.ThreadID, loop.Thread().ThreadID)
}

func TestResetRejectedWhileRunning(t *testing.T) {
	loop := newLoop(&testutil.ScriptedGraph{Block: true})
	handle, err := loop.Start(context.Background(), "go", Callbacks{})
	require.NoError(t, err)

	assert.True(t, apperrors.IsValidation(loop.Reset(graph.NewThreadConfig("x", ""))))
	handle.Stop()
	waitResult(t, handle)
	assert.NoError(t, loop.Reset(graph.NewThreadConfig("x", "")))
}
