package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/Jitendersingh2001/Wealthyfy/internal/auth"
	"github.com/Jitendersingh2001/Wealthyfy/internal/backend"
	"github.com/Jitendersingh2001/Wealthyfy/internal/config"
	"github.com/Jitendersingh2001/Wealthyfy/internal/draft"
	"github.com/Jitendersingh2001/Wealthyfy/internal/health"
	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/pubsub"
	"github.com/Jitendersingh2001/Wealthyfy/internal/realtime"
	"github.com/Jitendersingh2001/Wealthyfy/internal/server"
	"github.com/Jitendersingh2001/Wealthyfy/internal/shutdown"
	"github.com/Jitendersingh2001/Wealthyfy/internal/transport"
	"github.com/Jitendersingh2001/Wealthyfy/internal/wizard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the onboarding server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	opts := []logging.LoggerOption{logging.WithLevel(logging.ParseLevel(cfg.LogLevel))}
	if cfg.LogJSON {
		opts = append(opts, logging.WithJSON())
	}
	logger := logging.NewSlogLogger(opts...)

	ns, err := pubsub.StartEmbedded(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("starting message bus: %w", err)
	}
	defer ns.Shutdown()

	nc, err := pubsub.ConnectInProcess(ns)
	if err != nil {
		return fmt.Errorf("connecting to message bus: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("initializing jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	drafts, err := draft.NewKVStore(ctx, js)
	cancel()
	if err != nil {
		return fmt.Errorf("opening draft store: %w", err)
	}

	bus := pubsub.NewNATSPubSub(nc)

	keycloak := auth.NewKeycloak(auth.KeycloakConfig{
		BaseURL:  cfg.KeycloakBaseURL,
		Realm:    cfg.KeycloakRealm,
		ClientID: cfg.KeycloakClientID,
	}, logger)

	api := backend.NewClient(cfg.APIBaseURL, keycloak, logger)
	authorizer := realtime.NewAuthorizer(cfg.ChannelAppKey, cfg.ChannelSecret)

	checker := health.NewChecker(version)
	checker.AddCriticalCheck("bus", func(ctx context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("bus disconnected")
		}
		return nil
	}, time.Second)

	wsConfig := transport.DefaultConfig()
	wsConfig.AllowedOrigins = cfg.Origins()

	srv := server.New(server.Options{
		Backend:    api,
		Bus:        bus,
		Authorizer: authorizer,
		Resolver:   bearerResolver(),
		Identity:   keycloak,
		BuildWizard: func(userID string, manager *realtime.Manager, notify wizard.Notifier) *wizard.Wizard {
			return wizard.New(wizard.Config{
				UserID:   userID,
				Backend:  api,
				Drafts:   drafts,
				Channels: manager,
				Notify:   notify,
				Logger:   logger,
			})
		},
		Health:    checker,
		Transport: wsConfig,
		Logger:    logger,
	})

	keycloak.OnForcedLogout(srv.DropSession)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sd := shutdown.NewHandler(nil)
	sd.RegisterFunc("http", shutdown.PriorityHTTP, httpServer.Shutdown)
	sd.Register(shutdown.CloseableHook("sessions", shutdown.PriorityWebSocket, srv))
	sd.Register(shutdown.CloseableHook("bus", shutdown.PriorityBus, bus))

	go func() {
		logger.Info("listening", logging.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", logging.Err(err))
			sd.Shutdown()
		}
	}()

	return sd.Wait()
}

// bearerResolver authenticates requests by their bearer token claims.
func bearerResolver() server.SessionResolver {
	return func(r *http.Request) *auth.Session {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			if c, err := r.Cookie("access_token"); err == nil {
				token = c.Value
			} else {
				return nil
			}
		}

		sess, err := auth.SessionFromToken(token)
		if err != nil {
			return nil
		}
		return sess
	}
}
