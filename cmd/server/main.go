package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/rpattn/ucprov/internal/config"
	"github.com/rpattn/ucprov/internal/credentials"
	"github.com/rpattn/ucprov/internal/db"
	"github.com/rpattn/ucprov/internal/dispatch"
	"github.com/rpattn/ucprov/internal/export"
	"github.com/rpattn/ucprov/internal/httpapi"
	"github.com/rpattn/ucprov/internal/jobqueue"
	"github.com/rpattn/ucprov/internal/ledger"
	"github.com/rpattn/ucprov/internal/logging"
	"github.com/rpattn/ucprov/internal/platforms/five9"
	"github.com/rpattn/ucprov/internal/platforms/msteams"
	"github.com/rpattn/ucprov/internal/platforms/wbxc"
	"github.com/rpattn/ucprov/internal/platforms/zoom"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowstore"
	"github.com/rpattn/ucprov/internal/upload"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFmt)
	log := logging.Component("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.NewConnection(ctx, cfg.Database.URL())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.RunMigrations("./migrations", cfg.Database.URL()); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	reg := registry.New()
	for _, register := range []func(*registry.Registry) error{
		wbxc.Register, msteams.Register, zoom.Register, five9.Register,
	} {
		if err := register(reg); err != nil {
			log.Error("failed to register platform", "error", err)
			os.Exit(1)
		}
	}

	store, err := buildRowStore(cfg, conn)
	if err != nil {
		log.Error("failed to build row store", "error", err)
		os.Exit(1)
	}

	jobs := jobqueue.NewPostgresRepository(conn)
	runner := jobqueue.NewRunner(jobs, cfg.Jobs.RunningTimeout, logging.Component("jobqueue"))

	events := ledger.NewPostgresRepository(conn)
	orgs := ledger.NewPostgresOrgRepository(conn)
	creds := credentials.NewPostgresRepository(conn)
	clients := credentials.NewClients(creds)

	uploads := upload.NewService(reg, store, runner, events)
	dispatchSvc := dispatch.NewService(reg, store, clients, events, runner)
	exports := export.NewService(reg, clients, runner, events, cfg.Export.Directory)

	go sweep(ctx, cfg, jobs, store)

	server := httpapi.NewServer(reg, orgs, events, jobs, runner,
		uploads, dispatchSvc, exports, creds)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      corsHandler.Handler(server.Router()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}

	// Let in-flight jobs reach a terminal state before the pool closes.
	runner.Wait()
	log.Info("server exited")
}

func buildRowStore(cfg config.Config, conn *db.Connection) (rowstore.Store, error) {
	storeCfg := rowstore.Config{TTL: cfg.Store.TTL}
	switch cfg.Store.Backend {
	case "postgres":
		return rowstore.NewPostgresStore(conn, storeCfg), nil
	case "memory":
		return rowstore.NewMemoryStore(storeCfg), nil
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return rowstore.NewRedisStore(client, storeCfg), nil
	}
}

// sweep periodically removes expired jobs and stored rows. The redis
// row store expires keys itself; only the postgres store needs help.
func sweep(ctx context.Context, cfg config.Config, jobs *jobqueue.PostgresRepository, store rowstore.Store) {
	log := logging.Component("sweeper")
	policy := jobqueue.RetentionPolicy{
		QueuedTTL:      cfg.Jobs.QueuedTTL,
		RunningTimeout: cfg.Jobs.RunningTimeout,
		ResultTTL:      cfg.Jobs.ResultTTL,
		FailureTTL:     cfg.Jobs.FailureTTL,
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if swept, err := jobs.Sweep(ctx, policy); err != nil {
			log.Warn("job sweep failed", "error", err)
		} else if swept > 0 {
			log.Info("swept jobs", "count", swept)
		}

		if pgStore, ok := store.(*rowstore.PostgresStore); ok {
			if swept, err := pgStore.Sweep(ctx); err != nil {
				log.Warn("row sweep failed", "error", err)
			} else if swept > 0 {
				log.Info("swept stored rows", "count", swept)
			}
		}
	}
}
