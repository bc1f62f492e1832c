package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "tokenlease/docs"
	"tokenlease/pkg/accounts"
	"tokenlease/pkg/auth"
	"tokenlease/pkg/config"
	"tokenlease/pkg/db"
	"tokenlease/pkg/events"
	"tokenlease/pkg/logging"
	"tokenlease/pkg/sendemail"
	"tokenlease/pkg/server"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

// @title           Tokenlease API
// @version         1.0
// @description     Token registry with sale, time-boxed rental and guarded custody

// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

func main() {
	dotenv := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !dotenv {
		logger.Info("no .env file found, using environment variables")
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := tokens.SystemClock{}

	var (
		st       store.Store
		accRepo  accounts.AccountRepository
		poolDone func()
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		poolDone = pool.Close
		st = store.NewPostgresStore(pool)
		accRepo = accounts.NewPostgresAccountRepository(pool)
	default:
		logger.Warn("using in-memory store; state is lost on restart")
		st = store.NewMemoryStore()
		accRepo = accounts.NewMemoryAccountRepository(clock)
	}
	if poolDone != nil {
		defer poolDone()
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}
	issuer := auth.NewIssuer(secret, cfg.Auth.TokenTTL)

	hub := events.NewHub(logger, cfg.CORS.AllowedOrigins)
	defer hub.Close()

	publishers := events.Fanout{events.NewLogPublisher(logger), hub}
	if cfg.SendGrid.APIKey != "" {
		notifier := events.NewEmailNotifier(sendemail.NewEmailService(cfg.SendGrid), accounts.NewDirectory(accRepo), logger, 256)
		go notifier.Run(ctx)
		publishers = append(publishers, notifier)
	} else {
		logger.Info("SENDGRID_API_KEY not set; email notices disabled")
	}

	opts := server.Options{
		Config:    cfg,
		Store:     st,
		Accounts:  accRepo,
		Issuer:    issuer,
		Publisher: publishers,
		Hub:       hub,
		Clock:     clock,
		Logger:    logger,
	}
	router := server.NewRouter(opts, server.NewServices(opts))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("backend", cfg.Backend), zap.Bool("tls", cfg.TLS.EnableTLS))

		if !cfg.TLS.EnableTLS {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("listen (HTTP)", zap.Error(err))
			}
			return
		}

		tlsConfig, err := cfg.TLS.Build()
		if err != nil {
			logger.Fatal("TLS setup", zap.Error(err))
		}
		srv.TLSConfig = tlsConfig
		if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen (TLS)", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("generate secret: %v", err)
	}
	return hex.EncodeToString(b)
}
