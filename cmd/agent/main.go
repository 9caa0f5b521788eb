package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"spendguard-agent/internal/config"
	"spendguard-agent/internal/coordinator"
	"spendguard-agent/internal/decision"
	mcpserver "spendguard-agent/internal/mcp"
	"spendguard-agent/internal/metrics"
	"spendguard-agent/internal/reasoning"
	"spendguard-agent/internal/recorder"
	"spendguard-agent/internal/sites"
	"spendguard-agent/internal/stats"
	"spendguard-agent/internal/store"
	"spendguard-agent/internal/watch"
	"spendguard-agent/internal/wellness"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the SpendGuard agent config file")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	st, err := store.Open(cfg.Server.StateFile)
	if err != nil {
		log.Fatalf("failed to open state file: %v", err)
	}

	userID := st.GetString(store.KeyUserID)
	if userID == "" {
		userID = uuid.New().String()
		if err := st.Put(store.KeyUserID, userID); err != nil {
			log.Fatalf("failed to persist user id: %v", err)
		}
	}

	registry := sites.NewRegistry()
	mgr := watch.NewManager(cfg.Browser, cfg.Monitor, cfg.Intervention.FailOpenDeadline(), registry, st)
	if cfg.Browser.AutoStart {
		if err := mgr.Start(ctx); err != nil {
			log.Fatalf("failed to initialize Rod tab manager: %v", err)
		}
	} else {
		log.Printf("browser auto-start disabled; use MCP tools to launch/attach later")
	}

	agg, err := stats.New(st, cfg.Backend, userID)
	if err != nil {
		log.Fatalf("failed to initialize intervention stats: %v", err)
	}

	rec, err := recorder.New(cfg.Server.TraceDir)
	if err != nil {
		log.Fatalf("failed to initialize trace recorder: %v", err)
	}
	if err := rec.Start(time.Now().UTC().Format("20060102T150405")); err != nil {
		log.Fatalf("failed to start trace recorder: %v", err)
	}
	defer rec.Close()

	gen := reasoning.NewClient(cfg.Reasoning)
	wp := wellness.NewClient(cfg.Backend)
	engine := decision.NewEngine(gen, cfg.Decision, cfg.Intervention.DelayMinutes())

	coord := coordinator.New(&cfg, coordinator.ManagerOps{Mgr: mgr}, mgr.Events(), engine, wp, agg, st, rec)
	go coord.Run(ctx)
	go coord.RunAmbient(ctx, mgr)

	if cfg.Metrics.Enabled {
		go metrics.Serve(fmt.Sprintf(":%d", cfg.Metrics.Port))
	}

	server := mcpserver.NewServer(cfg, mgr, coord, agg)

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting SpendGuard MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting SpendGuard MCP stdio server")
		startErr = server.Start(ctx)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Printf("browser shutdown: %v", err)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}
