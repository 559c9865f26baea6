// Package main provides the entry point for the narrative analysis
// MCP server.
//
// The server is designed to be spawned as a child process by an MCP
// host and communicates via stdio. It exposes the manuscript knowledge
// graph: projects, entities with merge/undo, alerts with cross-run
// lineage, voice profiles, the story timeline, snapshots and
// collection-level cross-book analysis.
//
// Flags:
//
//	-config <path>  optional JSON configuration file
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/config"
	"github.com/pauubach/narrassist/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app, err := initialize(cfg, logger)
	if err != nil {
		logger.Fatal("initialization failed", zap.Error(err))
	}
	defer app.Close()

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)
	app.Server.RegisterTools(mcpServer)

	logger.Info("server starting",
		zap.String("name", cfg.Server.Name),
		zap.String("version", cfg.Server.Version),
		zap.String("storage", cfg.Storage.Type))

	if err := mcpServer.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
