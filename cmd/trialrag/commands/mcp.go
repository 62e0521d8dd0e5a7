package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"trialrag/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs trialrag as an MCP (Model Context Protocol) server on stdio, exposing
the submit_turn, reset_session and get_metrics tools. Logs go to stderr.`,
		Example: `  # claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "trialrag": {"command": "trialrag", "args": ["mcp"]}
  #   }
  # }`,
		Args: cobra.NoArgs,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, _, logger, err := buildApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewMCPServer("trialrag", versionInfo.Version)
	mcp.RegisterTools(server, a.Engine)

	logger.Info("MCP server starting on stdio")
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
