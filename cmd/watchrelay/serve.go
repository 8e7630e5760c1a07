package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeoftrust/watchrelay/internal/audit"
	"github.com/edgeoftrust/watchrelay/internal/config"
	"github.com/edgeoftrust/watchrelay/internal/events"
	"github.com/edgeoftrust/watchrelay/internal/kv"
	kvpostgres "github.com/edgeoftrust/watchrelay/internal/kv/postgres"
	"github.com/edgeoftrust/watchrelay/internal/pairing"
	"github.com/edgeoftrust/watchrelay/internal/push"
	"github.com/edgeoftrust/watchrelay/internal/question"
	"github.com/edgeoftrust/watchrelay/internal/queue"
	"github.com/edgeoftrust/watchrelay/internal/server"
	"github.com/edgeoftrust/watchrelay/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	// Override PersistentPreRunE so the server does not build a client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Pick the key-value store. Postgres when configured; otherwise a
		// single-node in-memory store.
		var store kv.Store
		if cfg.DatabaseURL != "" {
			pg, err := kvpostgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			store = pg
			logger.Info("using postgres store")
		} else {
			store = kv.NewMemoryStore()
			logger.Info("using in-memory store (RELAY_DATABASE_URL not set)")
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (RELAY_NATS_URL not set)")
		}

		var dispatcher push.Dispatcher
		if cfg.PushConfigured() {
			keyPEM, err := os.ReadFile(cfg.APNSKeyFile)
			if err != nil {
				publisher.Close()
				store.Close()
				return err
			}
			gateway := push.DefaultGateway
			if cfg.APNSSandbox {
				gateway = push.SandboxGateway
			}
			apns, err := push.NewAPNSClient(push.APNSConfig{
				KeyID:      cfg.APNSKeyID,
				TeamID:     cfg.APNSTeamID,
				PrivateKey: keyPEM,
				Topic:      cfg.APNSTopic,
				Gateway:    gateway,
			})
			if err != nil {
				publisher.Close()
				store.Close()
				return err
			}
			dispatcher = apns
			logger.Info("push enabled", "topic", cfg.APNSTopic, "sandbox", cfg.APNSSandbox)
		} else {
			logger.Info("push disabled (APNs settings incomplete)")
		}

		auditLog := audit.NewLog()

		pairings := pairing.NewManager(store)
		q := queue.New(store, pairings)
		questions := question.NewStore(store, pairings)
		sessions := session.NewTracker(store)
		relay := server.NewRelayServer(pairings, q, questions, sessions, dispatcher, publisher, auditLog)

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: relay.NewHTTPHandler(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the audit exporter when a destination is configured.
		var exporter *audit.Exporter
		if cfg.AuditInterval > 0 && cfg.AuditS3Bucket != "" {
			s3Dest, err := audit.NewS3Destination(
				context.Background(),
				cfg.AuditS3Bucket,
				cfg.AuditS3Key,
				cfg.AuditS3Region,
				cfg.AuditS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create audit S3 destination", "err", err)
			} else {
				exporter = audit.NewExporter(auditLog, []audit.Destination{s3Dest}, cfg.AuditInterval, logger)
				exporter.Start()
				logger.Info("audit exporter started",
					"bucket", cfg.AuditS3Bucket,
					"key", cfg.AuditS3Key,
					"interval", cfg.AuditInterval)
			}
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if exporter != nil {
			exporter.Stop()
			logger.Info("audit exporter stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
