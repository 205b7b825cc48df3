// Swarmd is the coordination daemon for phase-gated multi-agent work.
//
// This binary starts the shared context HTTP service and the two
// coordination loops: the completion-detection scan and the
// phase-progress monitor.
//
// Configuration is loaded from ~/.config/swarmd/config.yaml and
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults
//	swarmd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 NATS_URL=nats://localhost:4222 swarmd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/agent"
	"github.com/fyrsmithlabs/swarmd/internal/config"
	"github.com/fyrsmithlabs/swarmd/internal/contextstore"
	"github.com/fyrsmithlabs/swarmd/internal/logging"
	"github.com/fyrsmithlabs/swarmd/internal/orchestrator"
	"github.com/fyrsmithlabs/swarmd/internal/phase"
	"github.com/fyrsmithlabs/swarmd/internal/project"
	"github.com/fyrsmithlabs/swarmd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/swarmd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  swarmd           Start the swarmd daemon\n")
			fmt.Fprintf(os.Stderr, "  swarmd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Daemon shutdown complete")
}

func printVersion() {
	fmt.Printf("swarmd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// ensureDefaultConfigDir creates ~/.config/swarmd only when the default
// config location is in use. An explicit -config path is the operator's
// responsibility and must not leave directories behind.
func ensureDefaultConfigDir(configPath string) error {
	if configPath != "" {
		return nil
	}
	return config.EnsureConfigDir()
}

// run starts the swarmd daemon and blocks until context is cancelled.
//
// This function:
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Connects to NATS when configured (optional)
//  4. Creates the shared context store and registers its routes
//  5. Wires the orchestrator and starts its loops
//  6. Starts the HTTP server
//  7. Performs graceful shutdown on context cancellation
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	if err := ensureDefaultConfigDir(configPath); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Mode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting swarmd",
		zap.Int("port", cfg.Server.Port),
		zap.String("agents_dir", cfg.Registry.AgentsDir),
		zap.String("state_dir", cfg.Orchestrator.StateDir),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	// NATS is optional: without it diff broadcast stays in-process.
	var storeOpts []contextstore.Option
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			logger.Warn("NATS unavailable, diff broadcast stays in-process",
				zap.String("url", cfg.NATS.URL),
				zap.Error(err))
		} else {
			defer nc.Close()
			storeOpts = append(storeOpts, contextstore.WithNATS(nc))
			logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
		}
	}

	store := contextstore.NewStore(logger, storeOpts...)

	orch, err := initOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg)
	contextstore.NewHandler(store, logger).RegisterRoutes(srv.Echo())
	srv.Echo().GET("/metrics/prometheus", echo.WrapHandler(promhttp.Handler()))
	srv.Echo().GET("/progress", func(c echo.Context) error {
		prog, err := orch.Progress()
		if err != nil {
			if errors.Is(err, orchestrator.ErrNoProject) {
				return echo.NewHTTPError(http.StatusNotFound, "no active project")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, prog)
	})
	srv.Echo().GET("/agents/:agentID/context", func(c echo.Context) error {
		view, err := orch.AgentView(c.Request().Context(), c.Param("agentID"))
		if err != nil {
			if errors.Is(err, orchestrator.ErrNoProject) {
				return echo.NewHTTPError(http.StatusNotFound, "no active project")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, view)
	})
	srv.Echo().POST("/projects", func(c echo.Context) error {
		var req struct {
			Name        string   `json:"name"`
			RootPath    string   `json:"rootPath"`
			Description string   `json:"description"`
			Tasks       []string `json:"tasks"`
			PhaseCount  int      `json:"phaseCount"`
		}
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		rec, err := orch.InitProject(c.Request().Context(), req.Name, req.RootPath, req.Description, req.Tasks, req.PhaseCount)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusCreated, rec)
	})

	go func() {
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Coordination loops stopped", zap.Error(err))
		}
	}()

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("prometheus_endpoint", "/metrics/prometheus"))

	// Blocks until context cancellation.
	return srv.Start(ctx)
}

// initOrchestrator wires the coordination components over the state
// directory and resumes the most recent project when one exists.
func initOrchestrator(cfg *config.Config, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	checklistDir := filepath.Join(cfg.Orchestrator.StateDir, "checklists")

	phaseStore := phase.NewStore(cfg.Orchestrator.StateDir)
	gate := phase.NewGate(phaseStore, checklistDir, logger)
	registry := agent.NewRegistry(cfg.Registry.AgentsDir, logger,
		agent.WithDebounce(cfg.Registry.Debounce))
	projects, err := project.NewManager(filepath.Join(cfg.Orchestrator.StateDir, "projects"))
	if err != nil {
		return nil, fmt.Errorf("initializing project registry: %w", err)
	}

	// The loops read completed work through the client so an external
	// store URL can be swapped in; empty URL keeps it in-process. The
	// in-process default shares the served store via localhost.
	storeURL := cfg.ContextStore.URL
	if storeURL == "" {
		storeURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
	client := contextstore.NewClient(storeURL, cfg.ContextStore.Timeout, logger)

	orch := orchestrator.New(orchestrator.Config{
		CompletionScanInterval: cfg.Orchestrator.CompletionScanInterval,
		PhaseMonitorInterval:   cfg.Orchestrator.PhaseMonitorInterval,
		MaxAutoCompletions:     cfg.Orchestrator.MaxAutoCompletions,
	}, orchestrator.Deps{
		Registry:     registry,
		Gate:         gate,
		Store:        phaseStore,
		Context:      client,
		Projects:     projects,
		ChecklistDir: checklistDir,
		Logger:       logger,
	})

	names, err := projects.List()
	if err != nil {
		logger.Warn("Project registry unreadable", zap.Error(err))
		return orch, nil
	}
	if len(names) > 0 {
		name := names[len(names)-1]
		if err := orch.Resume(name); err != nil {
			logger.Warn("Project resume failed",
				zap.String("project", name),
				zap.Error(err))
		} else {
			logger.Info("Resumed project", zap.String("project", name))
		}
	}

	return orch, nil
}
