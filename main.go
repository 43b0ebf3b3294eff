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

	"wabot/broker"
	"wabot/config"
	"wabot/controllers"
	dbpkg "wabot/db"
	"wabot/logger"
	"wabot/router"
	"wabot/services"
	"wabot/store"
	"wabot/tools"
	"wabot/workers"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "wabot",
		Short:         "WhatsApp instance lifecycle and webhook ingestion service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to the JSON configuration file")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receiver and QR sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, database, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close()
			zap.L().Info("schema migrated")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Clear expired QR codes once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, database, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close()
			_, err = workers.SweepExpiredQRCodes(store.New(database), time.Now().UTC())
			return err
		},
	})
	return cmd
}

// bootstrap loads configuration, installs the logger and opens a migrated database.
func bootstrap(configPath string) (config.Configuration, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if _, err := logger.Init(cfg); err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}

	database, err := dbpkg.Connect(cfg)
	if err != nil {
		return cfg, nil, err
	}
	if err := dbpkg.Migrate(database); err != nil {
		database.Close()
		return cfg, nil, err
	}
	return cfg, database, nil
}

func serve(parent context.Context, configPath string) error {
	cfg, database, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer database.Close()
	defer zap.L().Sync()

	if err := cfg.RequireGateway(); err != nil {
		return err
	}

	st := store.New(database)
	client := tools.NewEvolutionClient(cfg.Gateway.BaseURL, cfg.Gateway.ApiKey, cfg.Gateway.Integration, cfg.Gateway.Timeout())

	var publisher broker.Publisher = broker.Noop{}
	if cfg.Broker.Enabled {
		publisher, err = broker.NewRabbitPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	if cfg.Sweeper.Enabled {
		sweeper, err := workers.StartQRSweeper(st, cfg.Sweeper.Spec)
		if err != nil {
			return fmt.Errorf("start qr sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	svc := &controllers.Services{
		Lifecycle:    services.NewInstanceLifecycle(cfg.Lifecycle, client, st, cfg.Webhook.WebhookURL()),
		Webhook:      services.NewWebhookRouter(cfg.Lifecycle, st, publisher),
		Gateway:      client,
		WebhookToken: cfg.Webhook.Token,
	}

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	router.Initialize(r, cfg, database, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.ApiPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// the connect sequence can hold a request for ~45s
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	zap.L().Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
