package workflow

import (
	"sync"

	apperrors "redswarm/internal/errors"
	"redswarm/internal/metrics"
)

// RunResult summarizes a finished run.
type RunResult struct {
	Success       bool                `json:"success"`
	EventCount    int                 `json:"event_count"`
	AgentActivity map[string]int      `json:"agent_activity"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	ErrorKind     apperrors.Kind      `json:"error_kind,omitempty"`
	Cancelled     bool                `json:"cancelled,omitempty"`
	Metrics       *metrics.RunMetrics `json:"metrics,omitempty"`
}

// Handle controls one in-flight run. Stop is the only way to cancel it.
type Handle struct {
	ID string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	result   RunResult
}

func newHandle(id string) *Handle {
	return &Handle{
		ID:   id,
		stop: make(chan struct{}),
		done: make(chan struct{}),
		result: RunResult{
			AgentActivity: make(map[string]int),
		},
	}
}

// Stop asks the run to stop observing events. Tool calls already running in
// the sandbox are not killed. It does not wait; use Wait for that.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed once the run has finished and its state is released.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes and returns its result.
func (h *Handle) Wait() RunResult {
	<-h.done
	return h.result
}

func (h *Handle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}
