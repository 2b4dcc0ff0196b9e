// Package api implements the HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/khariha/ferris-wheel/internal/buildinfo"
	"github.com/khariha/ferris-wheel/internal/calendar"
	"github.com/khariha/ferris-wheel/internal/connwatch"
	"github.com/khariha/ferris-wheel/internal/delegate"
	"github.com/khariha/ferris-wheel/internal/memory"
	"github.com/khariha/ferris-wheel/internal/usage"
)

// MissingFieldError is the body of every 400 from the chat endpoints.
const MissingFieldError = "No 'request' field provided"

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Chatter answers one client request. [assistant.Assistant] satisfies it.
type Chatter interface {
	Ask(ctx context.Context, clientID, request string) string
}

// ConversationLister lists stored conversations.
type ConversationLister interface {
	Conversations(ctx context.Context, clientID string) ([]memory.ConversationRecord, error)
}

// EventLister lists stored calendar events.
type EventLister interface {
	List(ctx context.Context, clientID string) ([]calendar.Event, error)
}

// DelegationLister lists recent delegations.
type DelegationLister interface {
	Recent(ctx context.Context, clientID string, limit int) ([]*delegate.Record, error)
}

// HealthReporter reports dependency health. [connwatch.Manager]
// satisfies it.
type HealthReporter interface {
	Status() map[string]connwatch.Status
	Down() []string
}

// UsageSummarizer aggregates token usage. [usage.Store] satisfies it.
type UsageSummarizer interface {
	Summary(ctx context.Context, clientID string, start, end time.Time) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, clientID string, start, end time.Time) (map[string]*usage.Summary, error)
}

// Server is the HTTP API server.
type Server struct {
	address        string
	port           int
	chat           Chatter
	requestTimeout time.Duration
	conversations  ConversationLister
	events         EventLister
	delegations    DelegationLister
	health         HealthReporter
	usage          UsageSummarizer
	now            func() time.Time
	logger         *slog.Logger
	server         *http.Server
}

// NewServer creates a new API server. requestTimeout bounds every chat
// request; zero leaves requests unbounded.
func NewServer(address string, port int, chat Chatter, requestTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:        address,
		port:           port,
		chat:           chat,
		requestTimeout: requestTimeout,
		now:            time.Now,
		logger:         logger.With("component", "api"),
	}
}

// SetConversations enables GET /conversations/{clientUUID}.
func (s *Server) SetConversations(c ConversationLister) {
	s.conversations = c
}

// SetEvents enables GET /events/{clientUUID}.
func (s *Server) SetEvents(e EventLister) {
	s.events = e
}

// SetDelegations enables GET /delegations/{clientUUID}.
func (s *Server) SetDelegations(d DelegationLister) {
	s.delegations = d
}

// SetHealth adds dependency status to GET /health.
func (s *Server) SetHealth(h HealthReporter) {
	s.health = h
}

// SetUsage enables GET /usage/{clientUUID}.
func (s *Server) SetUsage(u UsageSummarizer) {
	s.usage = u
}

// Handler returns the routed handler, wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat/ws", s.handleChatSocket)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	mux.HandleFunc("GET /conversations/{clientUUID}", s.handleConversations)
	mux.HandleFunc("GET /events/{clientUUID}", s.handleEvents)
	mux.HandleFunc("GET /delegations/{clientUUID}", s.handleDelegations)
	mux.HandleFunc("GET /usage/{clientUUID}", s.handleUsage)

	return s.withLogging(mux)
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Chat requests wait on several completions.
		WriteTimeout: s.requestTimeout + 30*time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// handleHealth always answers 200; a down dependency makes the status
// "degraded" rather than failing the probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "healthy",
		"build":  buildinfo.Info(),
	}
	if s.health != nil {
		body["dependencies"] = s.health.Status()
		if down := s.health.Down(); len(down) > 0 {
			body["status"] = "degraded"
			body["down"] = down
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, body, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	ClientUUID    string `json:"clientUUID"`
	ClientRequest string `json:"clientRequest"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Message string `json:"message"`
}

// FormatAnswer wraps an answer for chat responses.
func FormatAnswer(answer string) string {
	return "The model says: " + answer
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Debug("chat body rejected", "error", err)
		s.errorResponse(w, http.StatusBadRequest, MissingFieldError)
		return
	}
	if req.ClientUUID == "" || req.ClientRequest == "" {
		s.errorResponse(w, http.StatusBadRequest, MissingFieldError)
		return
	}

	answer := s.ask(r.Context(), req.ClientUUID, req.ClientRequest)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{Message: FormatAnswer(answer)}, s.logger)
}

func (s *Server) ask(ctx context.Context, clientID, request string) string {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	return s.chat.Ask(ctx, clientID, request)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}
	clientID := r.PathValue("clientUUID")
	recs, err := s.conversations.Conversations(r.Context(), clientID)
	if err != nil {
		s.logger.Error("list conversations failed", "client_id", clientID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if recs == nil {
		recs = []memory.ConversationRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"clientUUID":    clientID,
		"conversations": recs,
		"count":         len(recs),
	}, s.logger)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}
	clientID := r.PathValue("clientUUID")
	events, err := s.events.List(r.Context(), clientID)
	if err != nil {
		s.logger.Error("list events failed", "client_id", clientID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []calendar.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"clientUUID": clientID,
		"events":     events,
		"count":      len(events),
	}, s.logger)
}

func (s *Server) handleDelegations(w http.ResponseWriter, r *http.Request) {
	if s.delegations == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "delegation store not configured")
		return
	}
	clientID := r.PathValue("clientUUID")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := s.delegations.Recent(r.Context(), clientID, limit)
	if err != nil {
		s.logger.Error("list delegations failed", "client_id", clientID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list delegations")
		return
	}
	if recs == nil {
		recs = []*delegate.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"clientUUID":  clientID,
		"delegations": recs,
		"count":       len(recs),
	}, s.logger)
}

// handleUsage reports a client's token usage over the last ?days=N days
// (default 30).
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage store not configured")
		return
	}
	clientID := r.PathValue("clientUUID")

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	end := s.now()
	start := end.AddDate(0, 0, -days)

	total, err := s.usage.Summary(r.Context(), clientID, start, end)
	if err != nil {
		s.logger.Error("usage summary failed", "client_id", clientID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to summarize usage")
		return
	}
	byModel, err := s.usage.SummaryByModel(r.Context(), clientID, start, end)
	if err != nil {
		s.logger.Error("usage by model failed", "client_id", clientID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to summarize usage")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"clientUUID": clientID,
		"start":      start.UTC(),
		"end":        end.UTC(),
		"total":      total,
		"by_model":   byModel,
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}
