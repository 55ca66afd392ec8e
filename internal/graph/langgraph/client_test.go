package langgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redswarm/internal/graph"
)

type fakeServer struct {
	mu       sync.Mutex
	threads  []string
	runs     []map[string]any
	deleted  []string
	events   string
	runCode  int
	pingCode int
	deleteFn func(w http.ResponseWriter)
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.threads = append(f.threads, fmt.Sprint(body["thread_id"]))
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /threads/{id}/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.runs = append(f.runs, body)
		f.mu.Unlock()
		if f.runCode != 0 {
			http.Error(w, "assistant not found", f.runCode)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, f.events)
	})
	mux.HandleFunc("DELETE /threads/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		respond := f.deleteFn
		f.mu.Unlock()
		if respond != nil {
			respond(w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {
		if f.pingCode != 0 {
			http.Error(w, "starting", f.pingCode)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

func (f *fakeServer) onDelete(respond func(w http.ResponseWriter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteFn = respond
}

func newTestClient(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL + "/", AssistantID: "redteam"})
	require.NoError(t, err)
	return client
}

const sampleEvents = `event: metadata
data: {"run_id":"r1"}

event: updates|Planner:1f2e
data: {"agent":{"messages":[{"type":"human","content":"scan"},{"type":"ai","id":"ai-1","content":"handing off","tool_calls":[{"id":"c1","name":"transfer_to_reconnaissance","args":{}}],"usage_metadata":{"input_tokens":10,"output_tokens":5,"total_tokens":15},"response_metadata":{"model_name":"gpt-4o"}}]}}

: keep-alive

event: updates|Reconnaissance:9a|tools:3c
data: {"tools":{"messages":[{"type":"tool","id":"t-1","name":"nmap_scan","tool_call_id":"c2","content":"22/tcp open"}]},"agent":null}

event: updates
data: {"zeta":{"messages":[]},"alpha":{"messages":[{"type":"ai","id":"ai-2","content":[{"type":"text","text":"done"}]}]}}

event: end
data: null

`

func drain(t *testing.T, stream graph.UpdateStream) []graph.Update {
	t.Helper()
	var updates []graph.Update
	for {
		update, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return updates
		}
		require.NoError(t, err)
		updates = append(updates, update)
	}
}

func TestStreamDecodesUpdates(t *testing.T) {
	f := &fakeServer{events: sampleEvents}
	client := newTestClient(t, f)
	thread := graph.NewThreadConfig("alice", "7")

	stream, err := client.Stream(context.Background(), graph.RawMessage{Type: graph.TypeHuman, Content: "scan"}, thread)
	require.NoError(t, err)
	defer stream.Close()
	updates := drain(t, stream)

	require.Len(t, updates, 3)
	assert.Equal(t, []string{"Planner:1f2e"}, updates[0].Namespace)
	latest, ok := updates[0].Nodes[0].Latest()
	require.True(t, ok)
	assert.Equal(t, "ai-1", latest.ID)
	assert.Equal(t, "gpt-4o", latest.ModelName())
	require.NotNil(t, latest.Usage)
	assert.Equal(t, 10, latest.Usage.InputTokens)
	require.Len(t, latest.ToolCalls, 1)
	assert.Equal(t, "transfer_to_reconnaissance", latest.ToolCalls[0].Name)

	assert.Equal(t, []string{"Reconnaissance:9a", "tools:3c"}, updates[1].Namespace)
	require.Len(t, updates[1].Nodes, 2)
	tool, _ := updates[1].Nodes[0].Latest()
	assert.Equal(t, "nmap_scan", tool.Name)
	assert.Equal(t, "c2", tool.ToolCallID)
	_, ok = updates[1].Nodes[1].Latest()
	assert.False(t, ok)

	assert.Empty(t, updates[2].Namespace)
	assert.Equal(t, "zeta", updates[2].Nodes[0].Node)
	assert.Equal(t, "alpha", updates[2].Nodes[1].Node)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"user_alice_conv_7"}, f.threads)
	require.Len(t, f.runs, 1)
	run := f.runs[0]
	assert.Equal(t, "redteam", run["assistant_id"])
	assert.Equal(t, true, run["stream_subgraphs"])
	assert.Equal(t, []any{"updates"}, run["stream_mode"])
	config := run["config"].(map[string]any)
	assert.Equal(t, float64(graph.DefaultRecursionLimit), config["recursion_limit"])
	configurable := config["configurable"].(map[string]any)
	assert.Equal(t, "user_alice_conv_7", configurable["thread_id"])
	assert.Equal(t, "main", configurable["checkpoint_ns"])
}

func TestStreamErrorEvent(t *testing.T) {
	f := &fakeServer{events: "event: error\ndata: {\"error\":\"ValueError\",\"message\":\"INVALID_CHAT_HISTORY\"}\n\n"}
	client := newTestClient(t, f)

	stream, err := client.Stream(context.Background(), graph.RawMessage{Type: graph.TypeHuman, Content: "x"}, graph.NewThreadConfig("u", ""))
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_CHAT_HISTORY")
}

func TestStreamRejectedRun(t *testing.T) {
	f := &fakeServer{runCode: http.StatusNotFound}
	client := newTestClient(t, f)

	_, err := client.Stream(context.Background(), graph.RawMessage{Type: graph.TypeHuman, Content: "x"}, graph.NewThreadConfig("u", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "assistant not found")
}

func TestStreamEndsWithoutEndEvent(t *testing.T) {
	f := &fakeServer{events: "event: updates\ndata: {\"agent\":{\"messages\":[{\"type\":\"ai\",\"content\":\"hi\"}]}}\n"}
	client := newTestClient(t, f)
	stream, err := client.Stream(context.Background(), graph.RawMessage{Type: graph.TypeHuman, Content: "x"}, graph.NewThreadConfig("u", ""))
	require.NoError(t, err)

	updates := drain(t, stream)
	assert.Len(t, updates, 1)
	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestStreamHonoursCancelledContext(t *testing.T) {
	f := &fakeServer{events: sampleEvents}
	client := newTestClient(t, f)
	stream, err := client.Stream(context.Background(), graph.RawMessage{Type: graph.TypeHuman, Content: "x"}, graph.NewThreadConfig("u", ""))
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClearThread(t *testing.T) {
	f := &fakeServer{}
	client := newTestClient(t, f)
	require.NoError(t, client.ClearThread(context.Background(), "user_u"))

	f.onDelete(func(w http.ResponseWriter) { http.Error(w, "missing", http.StatusNotFound) })
	require.NoError(t, client.ClearThread(context.Background(), "user_u"), "clearing a missing thread is a no-op")

	f.onDelete(func(w http.ResponseWriter) { http.Error(w, "db down", http.StatusInternalServerError) })
	err := client.ClearThread(context.Background(), "user_u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	f.mu.Lock()
	assert.Equal(t, []string{"user_u", "user_u", "user_u"}, f.deleted)
	f.mu.Unlock()
	assert.NoError(t, client.ClearThread(context.Background(), ""))
}

func TestPing(t *testing.T) {
	client := newTestClient(t, &fakeServer{})
	assert.NoError(t, client.Ping(context.Background()))

	client = newTestClient(t, &fakeServer{pingCode: http.StatusServiceUnavailable})
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)

	client, err := New(Config{BaseURL: "http://localhost:2024"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAssistantID, client.assistantID)
}

func TestDecodeArgsRepairsStrings(t *testing.T) {
	assert.Equal(t, map[string]any{"target": "10.0.0.1"}, decodeArgs(json.RawMessage(`{"target":"10.0.0.1"}`)))
	assert.Equal(t, map[string]any{"target": "10.0.0.1"}, decodeArgs(json.RawMessage(`"{\"target\":\"10.0.0.1\"}"`)))
	assert.Equal(t, map[string]any{"target": "10.0.0.1"}, decodeArgs(json.RawMessage(`"{'target': '10.0.0.1'"`)))
	assert.Equal(t, map[string]any{}, decodeArgs(json.RawMessage(`null`)))
	assert.Equal(t, map[string]any{}, decodeArgs(nil))
	assert.Equal(t, map[string]any{}, decodeArgs(json.RawMessage(`42`)))
}

func TestSplitEventName(t *testing.T) {
	kind, ns := splitEventName("updates|a:1|b:2")
	assert.Equal(t, "updates", kind)
	assert.Equal(t, []string{"a:1", "b:2"}, ns)

	kind, ns = splitEventName("end")
	assert.Equal(t, "end", kind)
	assert.Nil(t, ns)
}
