package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/lectern/internal/app"
	"github.com/ternarybob/lectern/internal/common"
)

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("LECTERN_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("lectern.toml"); err == nil {
			configPath = "lectern.toml"
		}
	}

	config, err := common.LoadFromFiles(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol, so logs only go to file
	config.Logging.Output = []string{"file"}
	logger := common.InitLogger(config, "")

	application, err := app.New(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	if _, err := application.Start(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to ingest documents")
	}

	mcpServer := server.NewMCPServer(
		"lectern",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	for _, def := range application.ToolManager.Definitions() {
		tool, err := createCourseTool(def)
		if err != nil {
			logger.Error().Err(err).Str("tool", def.Name).Msg("Failed to build MCP tool schema")
			continue
		}
		mcpServer.AddTool(tool, handleCourseTool(application.ToolManager, def.Name, logger))
	}
	mcpServer.AddTool(createAskTool(), handleAsk(application.RAGService, logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error().Err(err).Msg("MCP server failed")
	}
}
