// Package observability implements the simulator's read-only snapshot and
// command API (§4.9, §6): live session/queue inspection, on-demand MO
// injection, and a runtime config/log tap. Routing and JSON response
// style is grounded on lanxingjue-smps's api/handlers package, the one
// example repo in the pack that wires gin-gonic/gin onto an SMPP session
// server, generalized from its Chinese-language stats/session handlers
// to this domain's fields.
package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smppsim/smppsim/internal/lifecycle"
	"github.com/smppsim/smppsim/internal/logging"
	"github.com/smppsim/smppsim/internal/metrics"
	"github.com/smppsim/smppsim/internal/mo"
	"github.com/smppsim/smppsim/internal/queue"
	"github.com/smppsim/smppsim/internal/session"
)

// Config holds the observability server's bind address (§6 SERVER_PORT).
type Config struct {
	Addr string
}

// Server is the simulator's HTTP control plane.
type Server struct {
	cfg  Config
	gin  *gin.Engine
	http *http.Server

	registry    *session.Registry
	inbound     *queue.Inbound
	metrics     *metrics.Registry
	scheduler   *lifecycle.Scheduler
	injector    *mo.Injector
	broadcaster *logging.Broadcaster

	runtime *RuntimeConfig
}

// RuntimeConfig holds the handful of tunables POST /api/config is allowed
// to change while the process is running (§4.9).
type RuntimeConfig struct {
	level *logging.LevelVar
}

// NewRuntimeConfig wraps a shared level variable the logger was built
// against, so changing it here takes effect immediately.
func NewRuntimeConfig(level *logging.LevelVar) *RuntimeConfig {
	return &RuntimeConfig{level: level}
}

// New builds the observability server and registers its routes.
func New(cfg Config, registry *session.Registry, inbound *queue.Inbound, m *metrics.Registry, scheduler *lifecycle.Scheduler, injector *mo.Injector, broadcaster *logging.Broadcaster, runtime *RuntimeConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		gin:         engine,
		registry:    registry,
		inbound:     inbound,
		metrics:     m,
		scheduler:   scheduler,
		injector:    injector,
		broadcaster: broadcaster,
		runtime:     runtime,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.gin.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/sessions", s.handleSessions)
	api.GET("/queues", s.handleQueues)
	api.POST("/mo", s.handleInjectMO)
	api.POST("/config", s.handleConfig)
	api.GET("/logs/stream", s.handleLogStream)
}

// ListenAndServe blocks serving the observability API until the process
// is asked to shut down.
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{Addr: s.cfg.Addr, Handler: s.gin}
	err := s.http.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type statusResponse struct {
	SubmittedTotal    int64   `json:"submitted_total"`
	EvictedTotal      int64   `json:"evicted_total"`
	DeliveredTotal    int64   `json:"delivered_total"`
	ReceiptsSentTotal int64   `json:"receipts_sent_total"`
	DroppedTotal      int64   `json:"dropped_total"`
	MOSentTotal       int64   `json:"mo_sent_total"`
	MODroppedTotal    int64   `json:"mo_dropped_total"`
	ThrottledTotal    int64   `json:"throttled_total"`
	Throughput1s      float64 `json:"throughput_1s"`
	ActiveSessions    int     `json:"active_sessions"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		SubmittedTotal:    s.metrics.SubmittedTotal.Count(),
		EvictedTotal:      s.metrics.EvictedTotal.Count(),
		DeliveredTotal:    s.metrics.DeliveredTotal.Count(),
		ReceiptsSentTotal: s.metrics.ReceiptsSentTotal.Count(),
		DroppedTotal:      s.metrics.DroppedTotal.Count(),
		MOSentTotal:       s.metrics.MOSentTotal.Count(),
		MODroppedTotal:    s.metrics.MODroppedTotal.Count(),
		ThrottledTotal:    s.metrics.ThrottledTotal.Count(),
		Throughput1s:      s.metrics.Throughput1sRate(),
		ActiveSessions:    s.registry.Count(),
	})
}

// sessionResponse mirrors §6's literal GET /api/sessions contract:
// {session_id, system_id, bind_kind, remote_addr, age_s, last_activity_s}.
type sessionResponse struct {
	SessionID       uint64 `json:"session_id"`
	SystemID        string `json:"system_id"`
	BindKind        string `json:"bind_kind"`
	RemoteAddr      string `json:"remote_addr"`
	AgeSeconds      float64 `json:"age_s"`
	LastActivitySec float64 `json:"last_activity_s"`
	State           string  `json:"state"`
}

func (s *Server) handleSessions(c *gin.Context) {
	sessions := s.registry.Snapshot()
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			SessionID:       sess.ID(),
			SystemID:        sess.SystemID(),
			BindKind:        sess.BindKind().String(),
			RemoteAddr:      sess.RemoteAddr(),
			AgeSeconds:      sess.Age().Seconds(),
			LastActivitySec: sess.IdleFor().Seconds(),
			State:           sess.State().String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

type queueMessageResponse struct {
	MessageID      string `json:"message_id"`
	SourceAddr     string `json:"source_addr"`
	DestAddr       string `json:"dest_addr"`
	State          string `json:"state"`
	OwningSystemID string `json:"owning_system_id"`
	SubmitTime     string `json:"submit_time"`
}

// queuesResponse mirrors §6's literal GET /api/queues contract:
// {inbound:[{message_id,state,...}], outbound_pending:N}, plus the
// lifetime counters the inbound queue already tracks.
type queuesResponse struct {
	Inbound         []queueMessageResponse `json:"inbound"`
	OutboundPending int                    `json:"outbound_pending"`
	Len             int                    `json:"len"`
	SubmittedTotal  uint64                 `json:"submitted_total"`
	EvictedTotal    uint64                 `json:"evicted_total"`
}

func (s *Server) handleQueues(c *gin.Context) {
	msgs := s.inbound.Snapshot()
	submitted, evicted := s.inbound.Counts()

	out := make([]queueMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, queueMessageResponse{
			MessageID:      m.MessageID,
			SourceAddr:     m.SourceAddr,
			DestAddr:       m.DestAddr,
			State:          m.State.Code(),
			OwningSystemID: m.OwningSystemID,
			SubmitTime:     m.SubmitTime.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, queuesResponse{
		Inbound:         out,
		OutboundPending: s.registry.OutboundPending(),
		Len:             s.inbound.Len(),
		SubmittedTotal:  submitted,
		EvictedTotal:    evicted,
	})
}

type injectMORequest struct {
	Index          *int   `json:"index"`
	SourceAddr     string `json:"source_addr"`
	DestAddr       string `json:"dest_addr"`
	ShortMessage   string `json:"short_message"`
	TargetSystemID string `json:"target_system_id"`
}

func (s *Server) handleInjectMO(c *gin.Context) {
	var req injectMORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Index != nil {
		delivered, err := s.injector.InjectByIndex(*req.Index)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": delivered})
		return
	}

	if req.TargetSystemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_system_id is required for a custom injection"})
		return
	}
	delivered := s.injector.InjectCustom(mo.Entry{
		SourceAddr:     req.SourceAddr,
		DestAddr:       req.DestAddr,
		ShortMessage:   req.ShortMessage,
		TargetSystemID: req.TargetSystemID,
	})
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

// configRequest is POST /api/config's body. LogLevel changes the runtime
// log level directly; Key/Value drives update_tunable(key, value) (§4.9)
// against the whitelisted set `lifecycle.*`, `mo.interval_ms`,
// `queue.capacity`.
type configRequest struct {
	LogLevel string `json:"log_level"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

func (s *Server) handleConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.LogLevel != "" {
		if err := s.runtime.level.Set(req.LogLevel); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"log_level": s.runtime.level.String()})
		return
	}

	if req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if err := s.updateTunable(req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "rejected", "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "key": req.Key, "value": req.Value})
}

// updateTunable routes a validated key to whichever component owns it,
// rejecting anything outside the whitelist (§4.9, §7).
func (s *Server) updateTunable(key, value string) error {
	switch {
	case strings.HasPrefix(key, "lifecycle."):
		return s.scheduler.UpdateTunable(strings.TrimPrefix(key, "lifecycle."), value)
	case key == "mo.interval_ms":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("mo.interval_ms: %q is not an integer: %w", value, err)
		}
		return s.injector.UpdateInterval(time.Duration(ms) * time.Millisecond)
	case key == "queue.capacity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("queue.capacity: %q is not an integer: %w", value, err)
		}
		return s.inbound.UpdateCapacity(n)
	default:
		return fmt.Errorf("%q is not a whitelisted tunable", key)
	}
}

// handleLogStream serves GET /api/logs/stream as Server-Sent Events, one
// `data:` line per emitted log record.
func (s *Server) handleLogStream(c *gin.Context) {
	ch, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case line, ok := <-ch:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", line)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
