package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutorloop/tutorloop/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Serve the recommendation engine over the Model Context Protocol on
stdio. Exposes the ingest_event, recommend_next, learner_state and
model_stats tools. The learned model is saved on shutdown.

Example (Claude Desktop / agent config):
  { "command": "tutorloop", "args": ["mcp-server", "--root", "/srv/course"] }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			rt, err := newRuntime(root)
			if err != nil {
				return err
			}
			defer rt.close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "tutorloop",
				Version: version,
				Engine:  rt.engine,
				Agent:   rt.agent,
				Store:   rt.store,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			runErr := server.Run(cmd.Context())

			if err := rt.persist(context.Background()); err != nil {
				return fmt.Errorf("failed to save model on shutdown: %w", err)
			}
			return runErr
		},
	}
}
