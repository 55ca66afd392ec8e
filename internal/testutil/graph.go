// Package testutil provides deterministic stand-ins for the external
// execution graph used across package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"redswarm/internal/graph"
)

// ScriptedGraph replays canned ticks. Each Stream call gets a fresh copy.
type ScriptedGraph struct {
	Ticks []graph.Update
	// Err is returned once all ticks are consumed.
	Err error
	// OpenErr fails Stream itself.
	OpenErr error
	// Block waits for cancellation once all ticks are consumed.
	Block bool
	// Delay is applied before every tick.
	Delay time.Duration

	mu      sync.Mutex
	streams []*ScriptedStream
	inputs  []graph.RawMessage
	threads []graph.ThreadConfig
}

func (g *ScriptedGraph) Stream(ctx context.Context, input graph.RawMessage, thread graph.ThreadConfig) (graph.UpdateStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, input)
	g.threads = append(g.threads, thread)
	if g.OpenErr != nil {
		return nil, g.OpenErr
	}
	stream := &ScriptedStream{
		ticks: append([]graph.Update(nil), g.Ticks...),
		err:   g.Err,
		block: g.Block,
		delay: g.Delay,
	}
	g.streams = append(g.streams, stream)
	return stream, nil
}

// Streams returns every stream opened so far.
func (g *ScriptedGraph) Streams() []*ScriptedStream {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*ScriptedStream(nil), g.streams...)
}

// Inputs returns the input messages passed to Stream.
func (g *ScriptedGraph) Inputs() []graph.RawMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]graph.RawMessage(nil), g.inputs...)
}

// Threads returns the thread configs passed to Stream.
func (g *ScriptedGraph) Threads() []graph.ThreadConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]graph.ThreadConfig(nil), g.threads...)
}

// ScriptedStream is the UpdateStream handed out by ScriptedGraph.
type ScriptedStream struct {
	mu     sync.Mutex
	ticks  []graph.Update
	next   int
	err    error
	block  bool
	delay  time.Duration
	closed atomic.Int32
}

func (s *ScriptedStream) Next(ctx context.Context) (graph.Update, error) {
	if s.closed.Load() > 0 {
		return graph.Update{}, fmt.Errorf("stream closed")
	}
	if err := ctx.Err(); err != nil {
		return graph.Update{}, err
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return graph.Update{}, ctx.Err()
		}
	}

	s.mu.Lock()
	if s.next < len(s.ticks) {
		tick := s.ticks[s.next]
		s.next++
		s.mu.Unlock()
		return tick, nil
	}
	s.mu.Unlock()

	if s.err != nil {
		return graph.Update{}, s.err
	}
	if s.block {
		<-ctx.Done()
		return graph.Update{}, ctx.Err()
	}
	return graph.Update{}, io.EOF
}

func (s *ScriptedStream) Close() error {
	s.closed.Add(1)
	return nil
}

// Closed reports whether Close was called at least once.
func (s *ScriptedStream) Closed() bool {
	return s.closed.Load() > 0
}

// Tick builds an update for a namespace such as "Planner:1". An empty
// namespace builds a root tick.
func Tick(namespace string, nodes ...graph.NodeUpdate) graph.Update {
	update := graph.Update{Nodes: nodes}
	if namespace != "" {
		update.Namespace = []string{namespace}
	}
	return update
}

// Node builds a node update holding msgs.
func Node(name string, msgs ...graph.RawMessage) graph.NodeUpdate {
	return graph.NodeUpdate{Node: name, Messages: msgs}
}

func Human(id, content string) graph.RawMessage {
	return graph.RawMessage{Type: graph.TypeHuman, ID: id, Content: content}
}

func AI(id, content string, calls ...graph.RawToolCall) graph.RawMessage {
	return graph.RawMessage{Type: graph.TypeAI, ID: id, Content: content, ToolCalls: calls}
}

func ToolResult(id, name, content string) graph.RawMessage {
	return graph.RawMessage{Type: graph.TypeTool, ID: id, Name: name, Content: content}
}

// Checkpointer records cleared threads.
type Checkpointer struct {
	Err error

	mu      sync.Mutex
	cleared []string
}

func (c *Checkpointer) ClearThread(_ context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, threadID)
	return c.Err
}

// Cleared returns the thread ids cleared so far.
func (c *Checkpointer) Cleared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cleared...)
}
