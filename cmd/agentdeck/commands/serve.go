package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentdeck-ai/agentdeck/internal/agent"
	"github.com/agentdeck-ai/agentdeck/internal/config"
	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/gateway"
	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/internal/server"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/internal/storage"
	"github.com/agentdeck-ai/agentdeck/internal/workspace"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentdeck server",
	Long: `Start the agentdeck server: an HTTP API over the session orchestrator,
with server-sent events streaming each session's turn as it happens.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 7433, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Directory to load project config from")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Best effort; serve works without a .env file.
	_ = godotenv.Load()

	log := logging.For("serve")

	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	log.Info().Str("version", Version).Str("workspaceRoot", cfg.WorkspaceRoot).Msg("starting agentdeck")

	store := storage.New(paths.StoragePath())
	gw := gateway.New(store)
	bus := event.NewBus()

	workspaces, err := workspace.NewService(cfg.WorkspaceRoot, cfg.WorkspaceScanDepth)
	if err != nil {
		return err
	}
	matcher := workspace.NewRouter(workspaces, nil)

	initTimeout := agent.DefaultInitTimeout
	if cfg.Agent.InitTimeoutSeconds > 0 {
		initTimeout = time.Duration(cfg.Agent.InitTimeoutSeconds) * time.Second
	}
	registry := session.NewRegistry(gw, bus, matcher, session.Options{
		InitTimeout: initTimeout,
		Clients: func(workspaceDir string) agent.Client {
			return agent.NewProcessClient(cfg.Agent.Command, cfg.Agent.Args, workspaceDir)
		},
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	srv := server.New(serverConfig, registry, gw, workspaces, matcher, bus)

	go func() {
		log.Info().Int("port", servePort).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}

	// Active sessions hold agent subprocesses; stop them before exit.
	registry.StopAll()
	workspaces.Close()
	bus.Close()

	log.Info().Msg("stopped")
	return nil
}
