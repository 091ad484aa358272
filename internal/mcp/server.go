package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tutorloop/tutorloop/internal/agent"
	"github.com/tutorloop/tutorloop/internal/engine"
	"github.com/tutorloop/tutorloop/internal/ratelimit"
	"github.com/tutorloop/tutorloop/internal/store"
)

// Server wraps the MCP SDK server around a running recommendation engine.
type Server struct {
	server   *sdk.Server
	engine   *engine.Engine
	agent    *agent.Agent
	store    *store.Store
	log      *slog.Logger
	limiters ratelimit.ToolLimiters
}

// Config holds server identification and dependencies.
type Config struct {
	Name    string
	Version string

	Engine *engine.Engine
	Agent  *agent.Agent
	Store  *store.Store // optional; model_stats degrades without it
	Logger *slog.Logger
}

// NewServer creates an MCP server exposing the tutoring tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Engine == nil || cfg.Agent == nil {
		return nil, fmt.Errorf("mcp: engine and agent are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:   mcpServer,
		engine:   cfg.Engine,
		agent:    cfg.Agent,
		store:    cfg.Store,
		log:      cfg.Logger,
		limiters: ratelimit.NewToolLimiters(),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ingest_event",
		Description: "Feed one raw LMS event into the recommendation engine; returns recommendations when the event completes a state transition",
	}, s.handleIngestEvent)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "recommend_next",
		Description: "Get ranked next-activity recommendations for a learner without ingesting an event",
	}, s.handleRecommendNext)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "learner_state",
		Description: "Inspect a learner's current discretized state and context accumulators",
	}, s.handleLearnerState)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "model_stats",
		Description: "Report value-table size, exploration rate, live contexts and drop counters",
	}, s.handleModelStats)
}

// Run serves over stdio until the client disconnects or the context is
// cancelled. Buffered evidence is flushed before returning.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		cancel()
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	flushed := s.engine.FlushAll(context.Background())
	if len(flushed) > 0 {
		s.log.Info("flushed buffered contexts on shutdown", "count", len(flushed))
	}
	return err
}
