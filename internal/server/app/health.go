package app

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// HealthStatus is the readiness of one component.
type HealthStatus string

const (
	HealthStatusReady    HealthStatus = "ready"
	HealthStatusError    HealthStatus = "error"
	HealthStatusDisabled HealthStatus = "disabled"
)

type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthProbe checks one dependency.
type HealthProbe interface {
	Check(ctx context.Context) ComponentHealth
}

// HealthCheckerImpl aggregates health probes for all components
type HealthCheckerImpl struct {
	probes []HealthProbe
	mu     sync.RWMutex
}

func NewHealthChecker(probes ...HealthProbe) *HealthCheckerImpl {
	return &HealthCheckerImpl{probes: probes}
}

func (h *HealthCheckerImpl) RegisterProbe(probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all components
func (h *HealthCheckerImpl) CheckAll(ctx context.Context) []ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	results := make([]ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// Pinger is implemented by graph clients that can probe their server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GraphProbe reports whether the execution graph server answers.
type GraphProbe struct {
	pinger Pinger
}

func NewGraphProbe(pinger Pinger) *GraphProbe {
	return &GraphProbe{pinger: pinger}
}

func (p *GraphProbe) Check(ctx context.Context) ComponentHealth {
	if p.pinger == nil {
		return ComponentHealth{Name: "graph", Status: HealthStatusDisabled, Message: "graph client does not support probing"}
	}
	if err := p.pinger.Ping(ctx); err != nil {
		return ComponentHealth{Name: "graph", Status: HealthStatusError, Message: err.Error()}
	}
	return ComponentHealth{Name: "graph", Status: HealthStatusReady}
}

// SessionLogProbe reports whether the session log directory exists.
type SessionLogProbe struct {
	dir string
}

func NewSessionLogProbe(dir string) *SessionLogProbe {
	return &SessionLogProbe{dir: dir}
}

func (p *SessionLogProbe) Check(context.Context) ComponentHealth {
	info, err := os.Stat(p.dir)
	switch {
	case os.IsNotExist(err):
		// created on first save
		return ComponentHealth{Name: "sessionlog", Status: HealthStatusReady, Message: "no sessions saved yet", Details: map[string]any{"dir": p.dir}}
	case err != nil:
		return ComponentHealth{Name: "sessionlog", Status: HealthStatusError, Message: err.Error()}
	case !info.IsDir():
		return ComponentHealth{Name: "sessionlog", Status: HealthStatusError, Message: fmt.Sprintf("%s is not a directory", p.dir)}
	}
	return ComponentHealth{Name: "sessionlog", Status: HealthStatusReady, Details: map[string]any{"dir": p.dir}}
}

// BroadcasterProbe exposes the fan-out counters.
type BroadcasterProbe struct {
	broadcaster *EventBroadcaster
}

func NewBroadcasterProbe(broadcaster *EventBroadcaster) *BroadcasterProbe {
	return &BroadcasterProbe{broadcaster: broadcaster}
}

func (p *BroadcasterProbe) Check(context.Context) ComponentHealth {
	stats := p.broadcaster.Stats()
	return ComponentHealth{
		Name:   "broadcaster",
		Status: HealthStatusReady,
		Details: map[string]any{
			"active_connections": stats.ActiveConnections,
			"events_sent":        stats.TotalEventsSent,
			"events_dropped":     stats.DroppedEvents,
		},
	}
}
