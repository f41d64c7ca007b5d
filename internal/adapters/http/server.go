package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/actdata"
	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/internal/presentation/graph"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/schema"
	"github.com/aretw0/actdata/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the documents of a session manager over JSON.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// CommitEvent is broadcast to document subscribers after every successful commit.
type CommitEvent struct {
	Document    string                  `json:"document"`
	Transaction string                  `json:"transaction"`
	Report      *domain.ExecutionReport `json:"report"`
}

// NewHandler creates a new HTTP handler over the session manager.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.ListDocuments)
		r.Post("/", s.CreateDocument)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetDocument)
			r.Delete("/", s.DeleteDocument)
			r.Get("/graph", s.GetGraph)
			r.Get("/events", s.SubscribeEvents)
			r.Post("/nodes/{type}", s.AddNode)
			r.Get("/nodes/{node}", s.GetNode)
			r.Patch("/nodes/{node}", s.SetParams)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	reg := s.Sessions.Registry()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":            "actdata-http",
		"version":        strings.TrimSpace(actdata.Version),
		"format_version": reg.CurrentVersion(),
		"types":          reg.Types(),
		"functions":      reg.Functions(),
	})
}

// ListDocuments handles the GET /documents request.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// CreateDocument handles the POST /documents request. The body may name the document.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("CreateDocument: invalid request body", "err", err)
			return
		}
	}
	doc, err := s.Sessions.Create(r.Context(), body.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, doc.Snapshot())
}

// GetDocument handles the GET /documents/{id} request.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc.Snapshot())
}

// DeleteDocument handles the DELETE /documents/{id} request.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetGraph handles the GET /documents/{id}/graph request with a Mermaid flowchart.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	g, err := doc.Graph()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(g, nil))
}

// NodeView is the JSON form of one Node: raw values keyed by Parameter name.
type NodeView struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Values map[string]any `json:"values"`
	Stale  []string       `json:"stale,omitempty"`
}

func viewNode(node *document.Node) NodeView {
	v := NodeView{ID: node.ID().String(), Name: node.Name(), Values: make(map[string]any)}
	for _, p := range node.Parameters() {
		if val, err := p.GetValue(); err == nil {
			v.Values[p.Name()] = schema.Raw(val)
		}
		if p.IsStale() {
			v.Stale = append(v.Stale, p.Name())
		}
	}
	return v
}

// GetNode handles the GET /documents/{id}/nodes/{node} request.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := domain.ParseNodeID(chi.URLParam(r, "node"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := s.Sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	node, err := doc.Node(nodeID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewNode(node))
}

// UpdateResponse is returned by the mutating node endpoints.
type UpdateResponse struct {
	Node   NodeView                `json:"node"`
	Report *domain.ExecutionReport `json:"report"`
}

// AddNode handles the POST /documents/{id}/nodes/{type} request. The body holds the initial
// values keyed by Parameter name.
func (s *Server) AddNode(w http.ResponseWriter, r *http.Request) {
	typeID := domain.TypeID(chi.URLParam(r, "type"))
	typ, err := s.Sessions.Registry().Type(typeID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	values, ok := s.decodeValues(w, r, typ.ID)
	if !ok {
		return
	}
	coerced, err := schema.ValidateValues(typ, values)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var view NodeView
	s.update(w, r, "add "+string(typeID), func(doc *document.Document) error {
		part, err := doc.Partition(typeID)
		if err != nil {
			return err
		}
		node, err := part.AddNode()
		if err != nil {
			return err
		}
		if err := setAll(node, coerced); err != nil {
			return err
		}
		view = viewNode(node)
		return nil
	}, &view, http.StatusCreated)
}

// SetParams handles the PATCH /documents/{id}/nodes/{node} request. Values are validated
// against the Node type, written in one transaction and committed.
func (s *Server) SetParams(w http.ResponseWriter, r *http.Request) {
	nodeID, err := domain.ParseNodeID(chi.URLParam(r, "node"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	typ, err := s.Sessions.Registry().Type(nodeID.Type)
	if err != nil {
		s.writeError(w, err)
		return
	}
	values, ok := s.decodeValues(w, r, typ.ID)
	if !ok {
		return
	}
	coerced, err := schema.ValidateValues(typ, values)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var view NodeView
	s.update(w, r, "set "+nodeID.String(), func(doc *document.Document) error {
		node, err := doc.Node(nodeID)
		if err != nil {
			return err
		}
		if err := setAll(node, coerced); err != nil {
			return err
		}
		view = viewNode(node)
		return nil
	}, &view, http.StatusOK)
}

func (s *Server) decodeValues(w http.ResponseWriter, r *http.Request, t domain.TypeID) (map[string]any, bool) {
	values := map[string]any{}
	if r.ContentLength == 0 {
		return values, true
	}
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("invalid values body", "type", t, "err", err)
		return nil, false
	}
	return values, true
}

func setAll(node *document.Node, values map[domain.ParamIndex]domain.Value) error {
	for idx, v := range values {
		p, err := node.Parameter(idx)
		if err != nil {
			return err
		}
		if err := p.SetValue(v); err != nil {
			return err
		}
	}
	return nil
}

// update commits fn through the session manager, refreshes view from the committed document
// and broadcasts the report to subscribers.
func (s *Server) update(w http.ResponseWriter, r *http.Request, name string, fn func(*document.Document) error, view *NodeView, status int) {
	id := chi.URLParam(r, "id")
	report, err := s.Sessions.Update(r.Context(), id, name, fn)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Values written by Tree Functions are only visible after the commit.
	if doc, err := s.Sessions.Open(r.Context(), id); err == nil {
		if nodeID, err := domain.ParseNodeID(view.ID); err == nil {
			if node, err := doc.Node(nodeID); err == nil {
				*view = viewNode(node)
			}
		}
	}

	if payload, err := json.Marshal(CommitEvent{Document: id, Transaction: name, Report: report}); err == nil {
		s.Streams.Broadcast(id, string(payload))
	}
	s.writeJSON(w, status, UpdateResponse{Node: *view, Report: report})
}

// SubscribeEvents handles the GET /documents/{id}/events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	id := chi.URLParam(r, "id")
	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: subscribing to document commits", "document", id)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "document", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: commit\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, domain.ErrUnknownType),
		errors.Is(err, domain.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDocumentExists),
		errors.Is(err, domain.ErrCyclicDependency),
		errors.Is(err, domain.ErrRetouchedInput),
		errors.Is(err, domain.ErrNotConverged),
		errors.Is(err, domain.ErrDanglingReference):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTypeMismatch),
		errors.Is(err, domain.ErrUnknownParameterID),
		errors.Is(err, domain.ErrConversionFailed),
		len(schema.ValidationErrors(err)) > 0:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := ErrorResponse{Error: err.Error()}
	for _, fe := range schema.ValidationErrors(err) {
		resp.Fields = append(resp.Fields, fe.Error())
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	} else {
		s.logger.Debug("request rejected", "status", status, "err", err)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
