package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/driverelay/internal/config"
	"github.com/zhouzirui/driverelay/internal/handler"
	"github.com/zhouzirui/driverelay/internal/logging"
	"github.com/zhouzirui/driverelay/internal/service/auth"
	"github.com/zhouzirui/driverelay/internal/service/credential"
	"github.com/zhouzirui/driverelay/internal/service/orchestrator"
	"github.com/zhouzirui/driverelay/internal/service/relay"
	"github.com/zhouzirui/driverelay/internal/service/source"
	"github.com/zhouzirui/driverelay/internal/service/task"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if envErr != nil {
		logger.Debug("no .env file loaded, continuing with system environment variables only", "error", envErr)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := credential.Open(ctx, credential.Config{
		Driver:        cfg.Sessions.Driver,
		RedisAddr:     cfg.Sessions.RedisAddr,
		RedisUsername: cfg.Sessions.RedisUsername,
		RedisPassword: cfg.Sessions.RedisPassword,
		RedisDB:       cfg.Sessions.RedisDB,
		DatabaseURL:   cfg.Sessions.DatabaseURL,
		Secret:        cfg.Sessions.Secret,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}()
	logger.Info("session store ready", "driver", cfg.Sessions.Driver, "sealed", cfg.Sessions.Secret != "")

	registry := task.NewRegistry(task.WithRetention(cfg.Tasks.Retention))
	if cfg.Tasks.Retention > 0 {
		go registry.RunJanitor(ctx, cfg.Tasks.Retention/2)
	}
	publisher := task.NewPublisher(registry, cfg.Tasks.PollInterval)

	launcher := source.NewExecLauncher(source.Config{
		Binary: cfg.Downloader.Binary,
		Args:   cfg.Downloader.Args,
		Logger: logging.WithComponent(logger, "source"),
	})
	relayer := relay.New(launcher, registry, relay.Config{
		DestinationURL: cfg.Destination.URL,
		ObjectPrefix:   cfg.Destination.ObjectPrefix,
		MediaExtension: cfg.Destination.MediaExtension,
		ContentType:    cfg.Destination.ContentType,
		FolderID:       cfg.Destination.FolderID,
		Timeout:        cfg.Destination.Timeout,
		Logger:         logging.WithComponent(logger, "relay"),
	})
	orch := orchestrator.New(store, registry, relayer, logging.WithComponent(logger, "orchestrator"))

	services := handler.Services{
		Starter:  orch,
		Active:   orch,
		Sessions: store,
		Tasks:    registry,
		Watcher:  publisher,
		Logger:   logger,
	}
	if cfg.OAuth.Enabled() {
		services.Auth = auth.NewManager(auth.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
			Scopes:       cfg.OAuth.Scopes,
		}, store)
	} else {
		logger.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, login endpoints disabled")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(services),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// 进度流随进程信号结束，避免阻塞优雅退出
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	logger.Info("driverelay listening", "addr", cfg.Server.Addr)
	serveErr := runServer(ctx, srv)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("relays still running at shutdown", "active", orch.Active(), "error", err)
	}
	return serveErr
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
