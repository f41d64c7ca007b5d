package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/actdata"
	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/internal/presentation/graph"
	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/schema"
	"github.com/aretw0/actdata/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegistryURI is the resource describing the registered types and functions.
const RegistryURI = "actdata://registry"

// NodeResult is the structured form of one Node: raw values keyed by Parameter name.
type NodeResult struct {
	ID     string         `json:"id" jsonschema_description:"Node address, e.g. Box:1"`
	Name   string         `json:"name,omitempty"`
	Values map[string]any `json:"values" jsonschema_description:"Parameter values keyed by name"`
	Stale  []string       `json:"stale,omitempty" jsonschema_description:"Parameters awaiting recomputation"`
}

// UpdateResult is returned by set_parameters.
type UpdateResult struct {
	Node     NodeResult `json:"node"`
	Passes   int        `json:"passes" jsonschema_description:"Execution passes of the commit"`
	Executed []string   `json:"executed" jsonschema_description:"Hosts of the Tree Functions that ran"`
	Failed   []string   `json:"failed,omitempty" jsonschema_description:"Errors of failed Tree Functions"`
}

// RegistryInfo is the content of the registry resource.
type RegistryInfo struct {
	Version   int                 `json:"version"`
	Types     map[string][]string `json:"types"`
	Functions []string            `json:"functions"`
}

// Server exposes the documents of a session manager as MCP tools.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("actdata-mcp", strings.TrimSpace(actdata.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: list_documents
	s.mcpServer.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the IDs of the stored documents."),
	), s.handleListDocuments)

	// TOOL: inspect_node
	inspectTool := mcp.NewTool("inspect_node",
		mcp.WithDescription("Read the Parameter values of one Node of a stored document."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document ID")),
		mcp.WithString("node", mcp.Required(), mcp.Description("Node address, e.g. Box:1")),
		mcp.WithOutputSchema[NodeResult](),
	)
	s.mcpServer.AddTool(inspectTool, mcp.NewStructuredToolHandler(s.handleInspectNode))

	// TOOL: set_parameters
	setTool := mcp.NewTool("set_parameters",
		mcp.WithDescription("Write Parameter values of one Node in a single transaction and run the affected Tree Functions."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document ID")),
		mcp.WithString("node", mcp.Required(), mcp.Description("Node address, e.g. Box:1")),
		mcp.WithString("values", mcp.Required(), mcp.Description("JSON object of values keyed by Parameter name")),
		mcp.WithOutputSchema[UpdateResult](),
	)
	s.mcpServer.AddTool(setTool, mcp.NewStructuredToolHandler(s.handleSetParameters))

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the dependency graph of a document as a Mermaid flowchart."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document ID")),
	), s.handleGetGraph)
}

func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.sessions.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if ids == nil {
		ids = []string{}
	}
	jsonBytes, _ := json.Marshal(ids)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.sessions.Open(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open failed: %v", err)), nil
	}
	g, err := doc.Graph()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("graph failed: %v", err)), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(g, nil)), nil
}

func nodeResult(node *document.Node) NodeResult {
	r := NodeResult{ID: node.ID().String(), Name: node.Name(), Values: make(map[string]any)}
	for _, p := range node.Parameters() {
		if v, err := p.GetValue(); err == nil {
			r.Values[p.Name()] = schema.Raw(v)
		}
		if p.IsStale() {
			r.Stale = append(r.Stale, p.Name())
		}
	}
	return r
}

func (s *Server) openNode(ctx context.Context, args map[string]interface{}) (*document.Node, error) {
	docID, _ := args["document"].(string)
	nodeID, err := domain.ParseNodeID(fmt.Sprint(args["node"]))
	if err != nil {
		return nil, err
	}
	doc, err := s.sessions.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	return doc.Node(nodeID)
}

// Handler methods for structured tools

func (s *Server) handleInspectNode(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (NodeResult, error) {
	node, err := s.openNode(ctx, args)
	if err != nil {
		return NodeResult{}, fmt.Errorf("inspect failed: %w", err)
	}
	return nodeResult(node), nil
}

func (s *Server) handleSetParameters(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (UpdateResult, error) {
	docID, _ := args["document"].(string)
	nodeID, err := domain.ParseNodeID(fmt.Sprint(args["node"]))
	if err != nil {
		return UpdateResult{}, err
	}
	valuesStr, _ := args["values"].(string)
	var values map[string]any
	if err := json.Unmarshal([]byte(valuesStr), &values); err != nil {
		return UpdateResult{}, fmt.Errorf("values must be a JSON object: %w", err)
	}

	typ, err := s.sessions.Registry().Type(nodeID.Type)
	if err != nil {
		return UpdateResult{}, err
	}
	coerced, err := schema.ValidateValues(typ, values)
	if err != nil {
		return UpdateResult{}, err
	}

	report, err := s.sessions.Update(ctx, docID, "mcp set "+nodeID.String(), func(doc *document.Document) error {
		node, err := doc.Node(nodeID)
		if err != nil {
			return err
		}
		for idx, v := range coerced {
			p, err := node.Parameter(idx)
			if err != nil {
				return err
			}
			if err := p.SetValue(v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("MCP set_parameters rejected", "document", docID, "node", nodeID, "err", err)
		return UpdateResult{}, fmt.Errorf("update failed: %w", err)
	}

	node, err := s.openNode(ctx, args)
	if err != nil {
		return UpdateResult{}, err
	}
	res := UpdateResult{Node: nodeResult(node), Executed: []string{}}
	if report != nil {
		res.Passes = report.Passes
		for _, host := range report.Executed() {
			res.Executed = append(res.Executed, host.String())
		}
		for _, run := range report.Runs {
			if run.Status == domain.StatusFailed {
				res.Failed = append(res.Failed, run.Host.String()+": "+run.Error)
			}
		}
	}
	return res, nil
}

func (s *Server) registryInfo() RegistryInfo {
	reg := s.sessions.Registry()
	info := RegistryInfo{Version: reg.CurrentVersion(), Types: make(map[string][]string)}
	for _, id := range reg.Types() {
		typ, err := reg.Type(id)
		if err != nil {
			continue
		}
		names := make([]string, len(typ.Params))
		for i, p := range typ.Params {
			names[i] = p.Name + ":" + p.Kind.String()
		}
		info.Types[string(id)] = names
	}
	for _, fn := range reg.Functions() {
		info.Functions = append(info.Functions, string(fn))
	}
	return info
}

func (s *Server) registerResources() {
	// EXPOSE: actdata://registry
	s.mcpServer.AddResource(mcp.NewResource(RegistryURI, "Registered Node types and Tree Functions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.registryInfo())
		if err != nil {
			return nil, fmt.Errorf("failed to encode registry: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      RegistryURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
