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

	"github.com/fatali-fataliyev/ecbank_web/api"
	"github.com/fatali-fataliyev/ecbank_web/config"
	"github.com/fatali-fataliyev/ecbank_web/internal/auth"
	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/gateway"
	"github.com/fatali-fataliyev/ecbank_web/internal/session"
	"github.com/fatali-fataliyev/ecbank_web/internal/storage"
	"github.com/fatali-fataliyev/ecbank_web/logging"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

const janitorInterval = 10 * time.Minute

func main() {
	cfg := config.Load()

	if err := logging.Init(cfg.LogLevel, cfg.AppEnv, cfg.LogDir); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		return
	}

	logging.Logger.Info("application starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionStorage, err := newSessionStorage(ctx, cfg)
	if err != nil {
		logging.Logger.Errorf("failed to initialize session storage: %v", err)
		return
	}
	defer sessionStorage.Close()
	logging.Logger.Infof("session storage: %s", sessionStorage.GetStorageType())

	go session.RunJanitor(ctx, sessionStorage, cfg.Session.IdleTTL, janitorInterval)

	remote := bank.NewClient(cfg.ApiBaseURL, &http.Client{})
	gw := gateway.NewGateway(remote, auth.NewAdminPolicy(cfg.AdminClientCode), cfg.CacheAllUsers)
	sessions, err := session.NewManager(cfg.Session.Secret, cfg.Session.Secure, sessionStorage)
	if err != nil {
		logging.Logger.Errorf("failed to create session manager: %v", err)
		return
	}

	app, err := api.NewApi(gw, sessions)
	if err != nil {
		logging.Logger.Errorf("failed to create api: %v", err)
		return
	}

	corsConf := cors.New(cors.Options{
		AllowedOrigins:   cfg.Cors.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	var handler http.Handler = app.Routes()
	handler = corsConf.Handler(handler)
	handler = middleware.Recoverer(handler)
	handler = middleware.RealIP(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Logger.Errorf("failed to shut down server: %v", err)
		}
	}()

	logging.Logger.Infof("Starting server on port: %s (remote API: %s)", cfg.AppPort, remote.BaseURL())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Logger.Errorf("failed to start server: %v", err)
		return
	}
	logging.Logger.Info("server stopped")
}

func newSessionStorage(ctx context.Context, cfg *config.Config) (session.Storage, error) {
	switch cfg.Session.Storage {
	case "", "inmemory":
		return storage.NewInMemoryStorage(), nil
	case storage.DIALECT_MYSQL, storage.DIALECT_POSTGRES:
		db, err := storage.Init(ctx, cfg.Session.Storage, cfg.Session.DSN)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLStorage(db, cfg.Session.Storage), nil
	default:
		return nil, fmt.Errorf("unknown SESSION_STORAGE %q", cfg.Session.Storage)
	}
}
