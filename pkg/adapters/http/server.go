package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/statestack/internal/logging"
	"github.com/aretw0/statestack/internal/presentation/graph"
	"github.com/aretw0/statestack/pkg/domain"
	"github.com/aretw0/statestack/pkg/registry"
	"github.com/aretw0/statestack/pkg/transition"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// World defines the subset of statestack.World served over HTTP.
type World interface {
	Agents() []domain.AgentID
	Inspect(id domain.AgentID) (domain.StackSnapshot, error)
	RequestTransition(id domain.AgentID, req transition.Request) (*transition.Ticket, error)
	Notify(id domain.AgentID, event string, payload any) error
	Registry() *registry.Registry
}

// Server serves inspection and control endpoints for a world.
type Server struct {
	World   World
	Streams *StreamManager

	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler replaces the default promhttp handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a StreamManager, typically one also registered as the world's
// snapshot publisher.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewServer creates a Server for world.
func NewServer(world World, opts ...Option) *Server {
	s := &Server{
		World:   world,
		logger:  logging.NewNop(),
		metrics: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates a new HTTP handler for the world.
func NewHandler(world World, opts ...Option) http.Handler {
	return NewServer(world, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Handle("/metrics", s.metrics)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.ListAgents)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetAgent)
			r.Get("/graph", s.GetGraph)
			r.Get("/stream", s.SubscribeAgent)
			r.Post("/transitions", s.PostTransition)
			r.Post("/events/{event}", s.PostEvent)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TicketResponse describes a queued transition request.
type TicketResponse struct {
	Seq     uint64            `json:"seq"`
	Status  transition.Status `json:"status"`
	Entered domain.InstanceID `json:"entered,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func ticketResponse(tk *transition.Ticket) TicketResponse {
	resp := TicketResponse{
		Seq:     tk.Seq(),
		Status:  tk.Status(),
		Entered: tk.Entered(),
	}
	if err := tk.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// ListAgents handles the GET /agents request.
func (s *Server) ListAgents(w http.ResponseWriter, r *http.Request) {
	snaps := make([]domain.StackSnapshot, 0)
	for _, id := range s.World.Agents() {
		snap, err := s.World.Inspect(id)
		if err != nil {
			// Detached between the two calls.
			continue
		}
		snaps = append(snaps, snap)
	}
	writeJSON(w, http.StatusOK, snaps, s.logger)
}

// GetAgent handles the GET /agents/{id} request.
func (s *Server) GetAgent(w http.ResponseWriter, r *http.Request) {
	snap, err := s.World.Inspect(agentID(r))
	if err != nil {
		s.writeError(w, "Inspect", err)
		return
	}
	writeJSON(w, http.StatusOK, snap, s.logger)
}

// GetGraph handles the GET /agents/{id}/graph request with a Mermaid flowchart of the
// catalog, overlaid with the agent's stack.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := s.World.Inspect(agentID(r))
	if err != nil {
		s.writeError(w, "Graph", err)
		return
	}
	reg := s.World.Registry()
	if reg == nil {
		s.writeError(w, "Graph", domain.ErrWorldUnloaded)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(reg, graph.OverlayFromSnapshot(snap)))
}

// PostTransition handles the POST /agents/{id}/transitions request.
// With ?wait=true the response is delayed until the request was applied or rejected.
func (s *Server) PostTransition(w http.ResponseWriter, r *http.Request) {
	var req transition.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostTransition: Invalid request body", "error", err)
		return
	}

	tk, err := s.World.RequestTransition(agentID(r), req)
	if err != nil {
		s.writeError(w, "PostTransition", err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		select {
		case <-tk.Done():
		case <-r.Context().Done():
			return
		}
		status := http.StatusOK
		if tk.Status() != transition.StatusApplied {
			status = statusFor(tk.Err())
		}
		writeJSON(w, status, ticketResponse(tk), s.logger)
		return
	}

	writeJSON(w, http.StatusAccepted, ticketResponse(tk), s.logger)
}

// PostEvent handles the POST /agents/{id}/events/{event} request.
// The optional JSON body becomes the event payload.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid event payload", http.StatusBadRequest)
		s.logger.Warn("PostEvent: Invalid payload", "error", err)
		return
	}

	if err := s.World.Notify(agentID(r), chi.URLParam(r, "event"), payload); err != nil {
		s.writeError(w, "PostEvent", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SubscribeAgent handles the GET /agents/{id}/stream request (SSE).
// Each published snapshot of the agent is sent as one data message.
func (s *Server) SubscribeAgent(w http.ResponseWriter, r *http.Request) {
	id := agentID(r)
	if _, err := s.World.Inspect(id); err != nil {
		s.writeError(w, "Subscribe", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeAgent: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "agent", string(id))
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func agentID(r *http.Request) domain.AgentID {
	return domain.AgentID(chi.URLParam(r, "id"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAgentNotAttached):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRootPop),
		errors.Is(err, domain.ErrRequestCanceled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWorldUnloaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err)
	} else {
		s.logger.Debug(op+" rejected", "error", err, "status", status)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}
