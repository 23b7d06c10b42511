// Package main provides the lobby server binary: the HTTP request layer and
// live channel in front of the session coordinator.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/api"
	"github.com/cory-johannsen/lobby/internal/config"
	"github.com/cory-johannsen/lobby/internal/live"
	"github.com/cory-johannsen/lobby/internal/lobby"
	"github.com/cory-johannsen/lobby/internal/observability"
	"github.com/cory-johannsen/lobby/internal/server"
	"github.com/cory-johannsen/lobby/internal/storage/memory"
	"github.com/cory-johannsen/lobby/internal/storage/postgres"
)

// stores bundles the two store contracts with their health probe.
type stores struct {
	sessions    lobby.Store
	invitations lobby.InvitationStore
	health      api.HealthFunc
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting lobby server",
		zap.String("mode", cfg.Server.Mode),
		zap.String("http_addr", cfg.HTTP.Addr()),
	)

	lifecycle := server.NewLifecycle(logger)

	var st stores
	if cfg.Server.Persistent() {
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		st = stores{
			sessions:    pool.Sessions(),
			invitations: pool.Invitations(),
			health: func(ctx context.Context) error {
				return pool.Health(ctx, 5*time.Second)
			},
		}
		lifecycle.Add("postgres", healthLoop(pool, logger))
	} else {
		mem := memory.NewStore()
		st = stores{sessions: mem, invitations: mem}
	}

	registry := live.NewRegistry(cfg.Lobby.SendTimeout, logger)
	coord := lobby.NewCoordinator(st.sessions, registry, logger, lobby.CoordinatorConfig{
		JoinCodeLength: cfg.Lobby.JoinCodeLength,
		LockTimeout:    cfg.Lobby.LockTimeout,
	})
	invites := lobby.NewInvitationService(st.invitations, logger)

	handler := api.NewHandler(coord, invites, registry, st.health, api.Config{
		PublicBaseURL:  cfg.HTTP.PublicBaseURL,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxCountdown:   cfg.Lobby.MaxCountdown,
	}, logger)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	// Shutdown does not track hijacked connections; close live channels explicitly.
	httpSrv.RegisterOnShutdown(func() { registry.CloseConnections("server shutting down") })
	lifecycle.Add("http", server.NewHTTPService(httpSrv, cfg.HTTP.ShutdownTimeout, logger))
	lifecycle.Add("live", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  registry.Close,
	})

	logger.Info("lobby server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// healthLoop periodically pings the database until stopped, then closes the pool.
func healthLoop(pool *postgres.Pool, logger *zap.Logger) server.Service {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					if err := pool.Health(context.Background(), 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func() {
			close(done)
			pool.Close()
		},
	}
}
