package metrics

import (
	"sync"
	"time"

	"redswarm/internal/logging"
)

// UsageRecord is one priced model call.
type UsageRecord struct {
	RunID        string    `json:"run_id"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	InputCost    float64   `json:"input_cost"`
	OutputCost   float64   `json:"output_cost"`
	TotalCost    float64   `json:"total_cost"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunMetrics aggregates every call recorded for one run.
type RunMetrics struct {
	RunID        string             `json:"run_id"`
	Calls        int                `json:"calls"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
	TotalTokens  int                `json:"total_tokens"`
	TotalCost    float64            `json:"total_cost"`
	ByModel      map[string]float64 `json:"by_model,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	EndedAt      time.Time          `json:"ended_at"`
}

// Duration is zero until the run has ended.
func (m RunMetrics) Duration() time.Duration {
	if m.EndedAt.IsZero() {
		return 0
	}
	return m.EndedAt.Sub(m.StartedAt)
}

func (m RunMetrics) clone() RunMetrics {
	out := m
	if m.ByModel != nil {
		out.ByModel = make(map[string]float64, len(m.ByModel))
		for k, v := range m.ByModel {
			out.ByModel[k] = v
		}
	}
	return out
}

// Tracker keeps per-run aggregates keyed by an opaque run identifier.
type Tracker struct {
	mu     sync.Mutex
	runs   map[string]*RunMetrics
	now    func() time.Time
	logger logging.Logger
}

func NewTracker() *Tracker {
	return &Tracker{
		runs:   make(map[string]*RunMetrics),
		now:    time.Now,
		logger: logging.NewComponentLogger("CostTracker"),
	}
}

// StartRun opens an aggregate for runID, resetting any previous one.
func (t *Tracker) StartRun(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[runID] = &RunMetrics{RunID: runID, StartedAt: t.now()}
}

// Record prices a call and adds it to the run's aggregate. Calls for an
// unknown run open it implicitly.
func (t *Tracker) Record(runID, model string, inputTokens, outputTokens int) UsageRecord {
	inputCost, outputCost, totalCost := CalculateCost(inputTokens, outputTokens, model)
	record := UsageRecord{
		RunID:        runID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    totalCost,
		Timestamp:    t.now(),
	}

	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok {
		run = &RunMetrics{RunID: runID, StartedAt: record.Timestamp}
		t.runs[runID] = run
	}
	run.Calls++
	run.InputTokens += inputTokens
	run.OutputTokens += outputTokens
	run.TotalTokens += record.TotalTokens
	run.TotalCost += totalCost
	if model != "" {
		if run.ByModel == nil {
			run.ByModel = make(map[string]float64)
		}
		run.ByModel[model] += totalCost
	}
	t.mu.Unlock()

	t.logger.Debug("Recording usage: run=%s, model=%s, tokens=%d/%d, cost=$%.6f",
		runID, model, inputTokens, outputTokens, totalCost)
	return record
}

// Snapshot returns a copy of the run's aggregate so far.
func (t *Tracker) Snapshot(runID string) (RunMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		return RunMetrics{}, false
	}
	return run.clone(), true
}

// EndRun closes and forgets the run, returning its final aggregate.
func (t *Tracker) EndRun(runID string) RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		now := t.now()
		return RunMetrics{RunID: runID, StartedAt: now, EndedAt: now}
	}
	delete(t.runs, runID)
	run.EndedAt = t.now()
	return run.clone()
}

// Active reports how many runs are open.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}
