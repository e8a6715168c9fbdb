package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatspace/internal/config"
	"chatspace/internal/domain"
	"chatspace/internal/httpserver"
	"chatspace/internal/logging"
	"chatspace/internal/metrics"
	"chatspace/internal/security"
	"chatspace/internal/service"
	"chatspace/internal/store/postgres"
	"chatspace/internal/store/sqlite"
	"chatspace/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatspace: %v\n", err)
		os.Exit(1)
	}
}

type repos struct {
	users    domain.UserRepository
	channels domain.ChannelRepository
	messages domain.MessageRepository
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, repos, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, repos{}, err
		}
		if err := postgres.Migrate(ctx, db, cfg.DefaultChannel); err != nil {
			db.Close()
			return nil, repos{}, err
		}
		return db, repos{
			users:    postgres.NewUserRepo(db),
			channels: postgres.NewChannelRepo(db),
			messages: postgres.NewMessageRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, repos{}, err
		}
		if err := sqlite.Migrate(ctx, db, cfg.DefaultChannel); err != nil {
			db.Close()
			return nil, repos{}, err
		}
		return db, repos{
			users:    sqlite.NewUserRepo(db),
			channels: sqlite.NewChannelRepo(db),
			messages: sqlite.NewMessageRepo(db),
		}, nil
	}
}

func run() error {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	flags, err := config.ParseFlags(os.Args[0], os.Args[1:])
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	log.Info("store ready", zap.String("driver", cfg.DBDriver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens := security.NewTokenService(cfg.JWTSecret, security.CredentialTTL)
	hasher := security.NewPasswordHasher(0)

	hub := ws.NewHub(m, log)
	tracker := ws.NewTracker(hub, store.users, m, log)

	authSvc := service.NewAuthService(store.users, tokens, hasher, log)
	channelSvc := service.NewChannelService(store.channels, store.users, hub, log)
	messageSvc := service.NewMessageService(store.messages, channelSvc, cfg.HistoryLimit, log)
	userSvc := service.NewUserService(store.users, tracker)
	adminSvc := service.NewAdminService(store.users, store.channels, store.messages, tracker, hub, log)

	dispatcher := ws.NewDispatcher(hub, channelSvc, messageSvc, userSvc, m, log)
	socket := ws.MakeHandler(authSvc, tracker, dispatcher, cfg.CORSOrigins, m, log)

	router := httpserver.NewRouter(httpserver.Deps{
		Config:   cfg,
		Auth:     authSvc,
		Users:    userSvc,
		Channels: channelSvc,
		Admin:    adminSvc,
		Socket:   socket,
		Gatherer: reg,
		Metrics:  m,
		Log:      log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}
