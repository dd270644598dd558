package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/authserver/api"
	echoapi "go.pilab.hu/authserver/api/echo"
	"go.pilab.hu/authserver/config"
	"go.pilab.hu/authserver/internal/auth"
	"go.pilab.hu/authserver/internal/crypto"
	"go.pilab.hu/authserver/internal/metrics"
	"go.pilab.hu/authserver/internal/server"
	"go.pilab.hu/authserver/log"
	"go.pilab.hu/authserver/mongodb"
	"go.pilab.hu/authserver/services"
	"go.pilab.hu/authserver/tracing"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}

			return runServe(cmd.Context(), cfg)
		},
	}
}

//nolint:funlen
func runServe(ctx context.Context, cfg *config.ServerConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := log.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	appLogger := log.NewZerologAdapter(level, cfg.LogPretty)
	appLogger.Info(ctx, "Starting authserver", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"store_driver":  cfg.StoreDriver,
		"issuer":        cfg.Issuer,
		"log_level":     level.String(),
	})

	tp, err := tracing.InitTracerProvider(tracing.Options{
		ServiceName: cfg.OtelServiceName,
		Stdout:      cfg.OtelStdout,
	})
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(registry)

	keys, err := crypto.LoadKeyPair(crypto.KeyConfig{
		PrivateKeyPEM: cfg.PrivateKeyPEM,
		PublicKeyPEM:  cfg.PublicKeyPEM,
		KeysDir:       cfg.KeysDir,
		KeyID:         cfg.KeyID,
	})
	if err != nil {
		return err
	}
	appLogger.Info(ctx, "Signing key loaded", map[string]interface{}{"kid": keys.KeyID})

	mongoClient, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return err
	}

	passwordHasher := auth.NewBcryptPasswordHasher(bcrypt.DefaultCost)
	users := mongodb.NewUserRepository(ctx, db, passwordHasher)
	clients := mongodb.NewClientRepository(ctx, db)

	st, err := newStores(ctx, cfg, db)
	if err != nil {
		mongodb.Disconnect(context.Background(), mongoClient)
		return err
	}

	signer := services.NewTokenSigner(keys, services.SignerConfig{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Lifetime: cfg.AccessTokenTTL,
	})

	oauthAPI := echoapi.NewOAuth2API(
		services.NewLoginService(users, st.sessions, services.LoginConfig{
			SessionTTL:    cfg.SessionTTL,
			RememberMeTTL: cfg.RememberMeSessionTTL,
		}, appLogger),
		services.NewAuthCodeService(st.codes, clients, services.AuthCodeConfig{
			CodeTTL: cfg.AuthCodeTTL,
		}, appLogger),
		services.NewTokenExchangeService(st.codes, users, services.NewPKCEService(), signer, services.ExchangeConfig{
			RejectInactiveUsers: cfg.RejectInactiveUsers,
		}, appLogger),
		services.NewJWKSService(keys.PublicKey, keys.KeyID),
		api.NewAuthorizationServerMetadata(cfg.Issuer),
		echoapi.CookieConfig{Name: cfg.SessionCookieName, Secure: cfg.SessionCookieSecure},
	)

	httpServer := server.NewHTTPServer(cfg, appLogger, oauthAPI, server.Options{
		Gatherer: registry,
		Readiness: func(ctx context.Context) error {
			if err := mongodb.Ping(ctx, mongoClient); err != nil {
				return err
			}

			return st.ping(ctx)
		},
	})

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
	case err, ok := <-serveErr:
		if ok {
			appLogger.Error(context.Background(), "HTTP server failed", err)
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}

	st.close(shutdownCtx, appLogger)
	mongodb.Disconnect(shutdownCtx, mongoClient)

	if err := tp.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")

	return runErr
}
