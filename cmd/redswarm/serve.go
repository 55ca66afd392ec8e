package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"redswarm/internal/agents"
	"redswarm/internal/config"
	"redswarm/internal/executor"
	"redswarm/internal/graph/langgraph"
	"redswarm/internal/logging"
	"redswarm/internal/observability"
	"redswarm/internal/server/app"
	serverhttp "redswarm/internal/server/http"
	"redswarm/internal/sessionlog"
)

func newServeCommand(c *cli) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, c.debug)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port")
	return cmd
}

// server bundles the components serve wires together.
type server struct {
	obs         *observability.Observability
	coordinator *app.ServerCoordinator
	handler     http.Handler
}

func buildServer(cfg config.Config, debug bool) (*server, error) {
	obs, err := observability.New(cfg.Observability, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	logging.SetBase(obs.Logger)
	logger := logging.NewComponentLogger("Serve")

	profiles := agents.DefaultTable()
	if cfg.Agents.ProfilesFile != "" {
		profiles, err = agents.LoadTable(cfg.Agents.ProfilesFile)
		if err != nil {
			_ = obs.Shutdown(context.Background())
			return nil, err
		}
	}

	client, err := langgraph.New(cfg.Graph.Config, langgraph.WithLogger(logging.NewComponentLogger("LangGraph")))
	if err != nil {
		_ = obs.Shutdown(context.Background())
		return nil, err
	}

	exec := executor.New(client,
		executor.WithMetrics(obs.Metrics),
		executor.WithTracer(obs.Tracer),
	)
	store := sessionlog.NewStore(cfg.SessionLog.Dir,
		sessionlog.WithListLimit(cfg.SessionLog.ListLimit),
		sessionlog.WithSummaryCache(cfg.SessionLog.CacheSize),
		sessionlog.WithStoreMetrics(obs.Metrics),
	)
	broadcaster := app.NewEventBroadcaster()
	coordinator := app.NewServerCoordinator(exec, store, broadcaster,
		app.WithCheckpointer(client),
		app.WithWorkflowConfig(cfg.Workflow),
		app.WithTerminalMaxLines(cfg.Terminal.MaxLines),
		app.WithRecursionLimit(cfg.Graph.RecursionLimit),
		app.WithModel(cfg.Model.Label()),
		app.WithObservability(obs),
	)

	health := app.NewHealthChecker(
		app.NewGraphProbe(client),
		app.NewSessionLogProbe(cfg.SessionLog.Dir),
		app.NewBroadcasterProbe(broadcaster),
	)
	router := serverhttp.NewRouter(serverhttp.RouterConfig{
		Coordinator:    coordinator,
		Broadcaster:    broadcaster,
		Health:         health,
		Profiles:       profiles,
		Observability:  obs,
		AllowedOrigins: cfg.Server.CORSOrigins,
		Version:        version,
		Debug:          debug,
	})
	logger.Info("Graph %s (assistant %s), session logs in %s", cfg.Graph.BaseURL, cfg.Graph.AssistantID, cfg.SessionLog.Dir)
	return &server{obs: obs, coordinator: coordinator, handler: router}, nil
}

func serve(ctx context.Context, cfg config.Config, debug bool) error {
	srv, err := buildServer(cfg, debug)
	if err != nil {
		return err
	}
	logger := logging.NewComponentLogger("Serve")

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("Listening on http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := srv.coordinator.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("coordinator shutdown: %w", err))
		}
		if err := srv.obs.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
		}
		return errors.Join(errs...)
	})
	return group.Wait()
}
