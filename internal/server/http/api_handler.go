package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"redswarm/internal/agents"
	apperrors "redswarm/internal/errors"
	"redswarm/internal/logging"
	"redswarm/internal/messages"
	"redswarm/internal/replay"
	"redswarm/internal/server/app"
	"redswarm/internal/sessionlog"
	"redswarm/internal/terminal"
)

// Coordinator is the session surface the API drives. *app.ServerCoordinator
// implements it.
type Coordinator interface {
	CreateSession(userID string) app.SessionInfo
	Session(sessionID string) (app.SessionInfo, error)
	ListSessions() []app.SessionInfo
	SendMessage(sessionID, input string) (string, error)
	StopRun(sessionID string) (bool, error)
	NewChat(ctx context.Context, sessionID string) (app.SessionInfo, error)
	Messages(sessionID string) ([]messages.Wire, error)
	Terminal(sessionID string) ([]terminal.Line, error)
	ListLogs(ctx context.Context, limit int) ([]sessionlog.Summary, error)
	Replay(ctx context.Context, logSessionID string) replay.Outcome
}

type CreateSessionRequest struct {
	UserID string `json:"user_id"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type SendMessageResponse struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	StreamURL string `json:"stream_url"`
}

type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version"`
	Timestamp  time.Time             `json:"timestamp"`
	Uptime     string                `json:"uptime"`
	Components []app.ComponentHealth `json:"components,omitempty"`
}

// ReplayResponse is a replayed session in display form.
type ReplayResponse struct {
	Message         string          `json:"message"`
	SessionID       string          `json:"session_id"`
	Model           string          `json:"model,omitempty"`
	EventCount      int             `json:"event_count"`
	Messages        []messages.Wire `json:"messages"`
	Terminal        []terminal.Line `json:"terminal"`
	ActiveAgent     string          `json:"active_agent"`
	CompletedAgents []string        `json:"completed_agents"`
	AgentActivity   map[string]int  `json:"agent_activity"`
}

type APIHandler struct {
	coordinator Coordinator
	health      *app.HealthCheckerImpl
	profiles    *agents.Table
	version     string
	startTime   time.Time
	logger      logging.Logger
}

func NewAPIHandler(coordinator Coordinator, health *app.HealthCheckerImpl, profiles *agents.Table, version string) *APIHandler {
	if profiles == nil {
		profiles = agents.DefaultTable()
	}
	if health == nil {
		health = app.NewHealthChecker()
	}
	return &APIHandler{
		coordinator: coordinator,
		health:      health,
		profiles:    profiles,
		version:     version,
		startTime:   time.Now(),
		logger:      logging.NewComponentLogger("APIHandler"),
	}
}

func (h *APIHandler) HandleHealth(c *gin.Context) {
	components := h.health.CheckAll(c.Request.Context())
	status := "ok"
	for _, component := range components {
		if component.Status == app.HealthStatusError {
			status = "degraded"
		}
	}
	writeData(c, http.StatusOK, HealthResponse{
		Status:     status,
		Version:    h.version,
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: components,
	})
}

func (h *APIHandler) HandleAgents(c *gin.Context) {
	writeData(c, http.StatusOK, h.profiles.All())
}

func (h *APIHandler) HandleCreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, h.logger, apperrors.ValidationError("invalid request: "+err.Error()))
			return
		}
	}
	writeData(c, http.StatusCreated, h.coordinator.CreateSession(req.UserID))
}

func (h *APIHandler) HandleListSessions(c *gin.Context) {
	writeData(c, http.StatusOK, h.coordinator.ListSessions())
}

func (h *APIHandler) HandleGetSession(c *gin.Context) {
	info, err := h.coordinator.Session(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeData(c, http.StatusOK, info)
}

func (h *APIHandler) HandleSendMessage(c *gin.Context) {
	sessionID := c.Param("id")
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, apperrors.ValidationError("invalid request: "+err.Error()))
		return
	}
	runID, err := h.coordinator.SendMessage(sessionID, req.Content)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeData(c, http.StatusAccepted, SendMessageResponse{
		SessionID: sessionID,
		RunID:     runID,
		StreamURL: "/api/sessions/" + sessionID + "/stream",
	})
}

func (h *APIHandler) HandleGetMessages(c *gin.Context) {
	msgs, err := h.coordinator.Messages(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeData(c, http.StatusOK, msgs)
}

func (h *APIHandler) HandleStop(c *gin.Context) {
	stopped, err := h.coordinator.StopRun(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeData(c, http.StatusOK, gin.H{"stopped": stopped})
}

func (h *APIHandler) HandleNewChat(c *gin.Context) {
	info, err := h.coordinator.NewChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeData(c, http.StatusOK, info)
}

func (h *APIHandler) HandleTerminal(c *gin.Context) {
	lines, err := h.coordinator.Terminal(c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeData(c, http.StatusOK, lines)
}

func (h *APIHandler) HandleListHistory(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(c, h.logger, apperrors.ValidationError("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	summaries, err := h.coordinator.ListLogs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if summaries == nil {
		summaries = []sessionlog.Summary{}
	}
	writeData(c, http.StatusOK, summaries)
}

func (h *APIHandler) HandleReplay(c *gin.Context) {
	outcome := h.coordinator.Replay(c.Request.Context(), c.Param("id"))
	if !outcome.Success {
		h.logger.Warn("Replay of %s failed: %s", c.Param("id"), outcome.Message)
		status := statusForKind(outcome.Kind)
		if outcome.Err != nil {
			status = statusFor(outcome.Err)
		}
		c.AbortWithStatusJSON(status, APIResponse{
			Error: outcome.Message,
			Kind:  string(outcome.Kind),
		})
		return
	}
	result := outcome.Result
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: outcome.Message,
		Data: ReplayResponse{
			Message:         outcome.Message,
			SessionID:       result.SessionID,
			Model:           result.Model,
			EventCount:      result.EventCount,
			Messages:        result.Wire(),
			Terminal:        result.Terminal,
			ActiveAgent:     result.ActiveAgent,
			CompletedAgents: result.CompletedAgents,
			AgentActivity:   result.AgentActivity,
		},
	})
}
