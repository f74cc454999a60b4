// Package mcpserver exposes the knowledge graph over the Model Context
// Protocol: twelve tools covering graph CRUD, retrieval, community
// detection, and answer validation, plus read-only resources under
// yagokoro:// URIs. Every tool handler passes through the RBAC authorizer
// and the rate limiter before touching a store.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yagokoro-dev/yagokoro/community"
	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
	"github.com/yagokoro-dev/yagokoro/query"
	"github.com/yagokoro-dev/yagokoro/secure"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

// Options configures one server instance.
type Options struct {
	// Version is reported during the MCP handshake.
	Version string
	// APIKey is the secret the transport owner presents; it is checked
	// against the authorizer on every guarded call.
	APIKey string
	// Auth may be nil, which allows everything (local single-user mode).
	Auth *secure.Authorizer
	// Limiter may be nil, which disables rate limiting.
	Limiter secure.Limiter
	// CommunityLevel selects the partition level for global search.
	CommunityLevel int
}

// Server wires the retrieval engines behind an MCP server.
type Server struct {
	graph      graphstore.Store
	vectors    vectorstore.Store
	client     llm.Client
	local      *query.LocalEngine
	global     *query.GlobalEngine
	hybrid     *query.HybridEngine
	summarizer *community.Summarizer
	opts       Options
	mcp        *mcp.Server
}

// New builds the server and registers every tool and resource.
func New(graph graphstore.Store, vectors vectorstore.Store, client llm.Client, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}

	local := query.NewLocalEngine(graph, vectors, client, query.LocalOptions{})
	global := query.NewGlobalEngine(graph, client, query.GlobalOptions{CommunityLevel: opts.CommunityLevel})

	s := &Server{
		graph:      graph,
		vectors:    vectors,
		client:     client,
		local:      local,
		global:     global,
		hybrid:     query.NewHybridEngine(local, global, query.HybridOptions{}),
		summarizer: community.NewSummarizer(client, graph),
		opts:       opts,
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "yagokoro", Version: opts.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("mcp: serving over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// guard applies RBAC and rate limiting for one tool invocation. The rate
// limit key is the API-key ID when authenticated, or a shared anonymous
// bucket otherwise.
func (s *Server) guard(ctx context.Context, operation, resource string) error {
	key, err := s.opts.Auth.Authorize(ctx, s.opts.APIKey, operation, resource)
	if err != nil {
		return err
	}
	if s.opts.Limiter != nil {
		limitKey := "anonymous"
		if key != nil {
			limitKey = key.ID
		}
		if err := s.opts.Limiter.Consume(ctx, limitKey); err != nil {
			return err
		}
	}
	return nil
}
