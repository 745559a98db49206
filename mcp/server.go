package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/internal/correlation"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
	"github.com/emeryray2002/mcp-secops-v3/internal/version"
)

// Transport selects how the server talks to its MCP client.
type Transport string

const (
	// TransportStdio speaks JSON-RPC over the process's stdin and stdout.
	TransportStdio Transport = "stdio"
	// TransportHTTP serves MCP streamable HTTP on Config.Listen.
	TransportHTTP Transport = "http"
)

// Config controls MCP server runtime behaviour.
type Config struct {
	// Name is reported to clients during initialisation.
	Name string
	// Instance is the default Chronicle tenant, shown in tool docs.
	Instance chronicle.Instance
	// Listen and MCPPath apply to TransportHTTP only.
	Listen          string
	MCPPath         string
	ShutdownTimeout time.Duration
}

// Server is the MCP service contract.
type Server interface {
	Run(ctx context.Context, transport Transport) error
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config  Config
	Toolkit *Toolkit
	Logger  pslog.Logger
}

type server struct {
	cfg          Config
	toolkit      *Toolkit
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	transportLog pslog.Logger
	toolLog      pslog.Logger
	metrics      *toolMetrics
	mcp          *mcpsdk.Server
	mcpHTTPPath  string
}

// NewServer constructs the SecOps MCP server.
func NewServer(req NewServerRequest) (Server, error) {
	if req.Toolkit == nil {
		return nil, fmt.Errorf("mcp: toolkit is required")
	}
	cfg := req.Config
	if cfg.Instance == (chronicle.Instance{}) {
		cfg.Instance = req.Toolkit.DefaultInstance()
	}
	return newServer(cfg, req.Toolkit, req.Logger), nil
}

func newServer(cfg Config, toolkit *Toolkit, logger pslog.Logger) *server {
	applyDefaults(&cfg)
	logger = loggingutil.EnsureLogger(logger)
	s := &server{
		cfg:          cfg,
		toolkit:      toolkit,
		logger:       logger,
		lifecycleLog: loggingutil.WithSubsystem(logger, "server.lifecycle.mcp"),
		transportLog: loggingutil.WithSubsystem(logger, "mcp.transport"),
		toolLog:      loggingutil.WithSubsystem(logger, "mcp.tools"),
		mcpHTTPPath:  cleanHTTPPath(cfg.MCPPath),
	}
	s.metrics = newToolMetrics(s.toolLog)
	s.mcp = s.newMCPServer()
	return s
}

func (s *server) newMCPServer() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    s.cfg.Name,
		Version: version.Current(),
	}, &mcpsdk.ServerOptions{
		Instructions:       defaultServerInstructions(s.cfg),
		InitializedHandler: s.handleInitialized,
	})
	s.registerResources(srv)
	s.registerTools(srv)
	return srv
}

func (s *server) handleInitialized(_ context.Context, req *mcpsdk.InitializedRequest) {
	if req == nil || req.Session == nil {
		return
	}
	s.lifecycleLog.Info("mcp.session.initialized", "session_id", req.Session.ID())
}

func (s *server) Run(ctx context.Context, transport Transport) error {
	switch transport {
	case TransportStdio:
		return s.runStdio(ctx)
	case TransportHTTP:
		return s.runHTTP(ctx)
	default:
		return fmt.Errorf("mcp: unknown transport %q", transport)
	}
}

func (s *server) runStdio(ctx context.Context) error {
	inst := s.cfg.Instance
	s.lifecycleLog.Info("starting secops MCP server", "transport", TransportStdio,
		"project_id", inst.ProjectID, "customer_id", inst.CustomerID, "region", inst.Region)
	err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
	if err == nil || errors.Is(err, context.Canceled) {
		s.lifecycleLog.Info("secops MCP server stopped", "transport", TransportStdio)
		return nil
	}
	return err
}

// Handler returns the streamable HTTP handler mounted at Config.MCPPath.
func (s *server) Handler() http.Handler {
	streamable := mcpsdk.NewStreamableHTTPHandler(func(_ *http.Request) *mcpsdk.Server {
		return s.mcp
	}, nil)
	mux := http.NewServeMux()
	mux.Handle(s.mcpHTTPPath, streamable)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (s *server) runHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.lifecycleLog.Info("starting secops MCP server", "transport", TransportHTTP, "listen", ln.Addr().String(), "mcp_path", s.mcpHTTPPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.transportLog.Warn("mcp.http.shutdown_error", "error", err)
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) registerTools(srv *mcpsdk.Server) {
	descriptions := buildToolDescriptions(s.cfg)
	desc := func(name string) string {
		description, ok := descriptions[name]
		if !ok {
			panic(fmt.Sprintf("missing MCP tool description for %q", name))
		}
		return description
	}
	readOnly := &mcpsdk.ToolAnnotations{ReadOnlyHint: true}

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolSearchEvents,
		Description: desc(toolSearchEvents),
		Annotations: readOnly,
	}, toolHandler(s, toolSearchEvents, s.toolkit.SearchSecurityEvents))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolGetAlerts,
		Description: desc(toolGetAlerts),
		Annotations: readOnly,
	}, toolHandler(s, toolGetAlerts, s.toolkit.GetSecurityAlerts))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolLookupEntity,
		Description: desc(toolLookupEntity),
		Annotations: readOnly,
	}, toolHandler(s, toolLookupEntity, s.toolkit.LookupEntity))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolListRules,
		Description: desc(toolListRules),
		Annotations: readOnly,
	}, toolHandler(s, toolListRules, s.toolkit.ListSecurityRules))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolIoCMatches,
		Description: desc(toolIoCMatches),
		Annotations: readOnly,
	}, toolHandler(s, toolIoCMatches, s.toolkit.GetIoCMatches))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolSearchRules,
		Description: desc(toolSearchRules),
		Annotations: readOnly,
	}, toolHandler(s, toolSearchRules, s.toolkit.SearchSecurityRules))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        toolHelp,
		Description: desc(toolHelp),
		Annotations: readOnly,
	}, toolHandler(s, toolHelp, s.help))
}

// toolHandler adapts a toolkit operation to the SDK handler signature with a
// correlation id, logging, metrics, and structured errors.
func toolHandler[In, Out any](s *server, name string, fn func(context.Context, In) (Out, error)) mcpsdk.ToolHandlerFor[In, Out] {
	return withStructuredToolErrors(func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		ctx = correlation.Ensure(ctx)
		begin := time.Now()
		out, err := fn(ctx, in)
		elapsed := time.Since(begin)
		s.metrics.recordCall(ctx, name, err)
		if err != nil {
			s.toolLog.Warn("mcp.tool.error", "tool", name, "cid", correlation.ID(ctx), "elapsed", elapsed, "error", err)
			return nil, out, err
		}
		s.toolLog.Debug("mcp.tool.done", "tool", name, "cid", correlation.ID(ctx), "elapsed", elapsed)
		return nil, out, nil
	})
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "secops-mcp"
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:8765"
	}
	if strings.TrimSpace(cfg.MCPPath) == "" {
		cfg.MCPPath = "/mcp"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func cleanHTTPPath(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
