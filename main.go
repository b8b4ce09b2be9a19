package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/har5h1l/wellnessgrid/internal/api"
	"github.com/har5h1l/wellnessgrid/internal/auth"
	"github.com/har5h1l/wellnessgrid/internal/config"
	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/insights"
	"github.com/har5h1l/wellnessgrid/internal/llm"
	"github.com/har5h1l/wellnessgrid/internal/mcp"
	"github.com/har5h1l/wellnessgrid/pkg/audit"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "version":
		fmt.Printf("wellnessgrid %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`wellnessgrid — health tracking and insight engine

Usage:
  wellnessgrid serve [--config config.toml] [--addr :8080]
  wellnessgrid mcp [--config config.toml]
  wellnessgrid version
  wellnessgrid help

Commands:
  serve     Start the HTTP server
  mcp       Serve the MCP tool surface over stdio
  version   Print version
  help      Show this help`)
}

// buildStack wires the full pipeline from config: storage, LLM chain,
// aggregation, coordination, and the insights service.
func buildStack(cfg *config.Config) (*db.DB, *db.MetricsDB, *llm.Client, *insights.Service, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}

	metricsDB, err := db.OpenMetrics(cfg.Database.MetricsPath)
	if err != nil {
		log.Printf("metrics database unavailable: %v", err)
	}

	client := llm.NewFromConfig(cfg.LLM)
	if metricsDB != nil {
		client.SetRecorder(metricsDB)
	}

	agg := insights.NewAggregator(cfg.Insights)
	analyzer := insights.NewAnalyzer(database, agg)
	coord := insights.NewCoordinator(cfg.Insights)
	orch := insights.NewOrchestrator(database, analyzer, client, coord, cfg.Insights, nil)
	scorer := insights.NewScoreCalculator(database, agg, client, nil)
	service := insights.NewService(database, agg, analyzer, orch, scorer, coord, client, nil)

	return database, metricsDB, client, service, nil
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	database, metricsDB, client, service, err := buildStack(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer database.Close()
	if metricsDB != nil {
		defer metricsDB.Close()
	}

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	apiHandler := api.New(database, a, service)
	apiHandler.SetLLMClient(client)
	if metricsDB != nil {
		apiHandler.SetMetricsDB(metricsDB)
	}

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)

	handler := api.SecurityHeaders(apiHandler.MetricsMiddleware(mux))

	log.Printf("wellnessgrid %s listening on %s", version, cfg.Server.Addr)
	log.Printf("database: %s", cfg.Database.Path)
	log.Printf("providers: %v", client.Providers())

	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	database, metricsDB, _, service, err := buildStack(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer database.Close()
	if metricsDB != nil {
		defer metricsDB.Close()
	}

	auditLog := audit.NewSQLiteLogger(database.DB)
	if err := auditLog.Init(); err != nil {
		log.Fatalf("initializing audit log: %v", err)
	}
	defer auditLog.Close()

	srv := mcp.NewServer(database, service, auditLog)
	if err := mcpserver.ServeStdio(srv); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
