package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nyotafm/smsgate/internal/cache"
	"github.com/nyotafm/smsgate/internal/config"
	"github.com/nyotafm/smsgate/internal/events"
	"github.com/nyotafm/smsgate/internal/gateway"
	"github.com/nyotafm/smsgate/internal/logging"
	natsq "github.com/nyotafm/smsgate/internal/queue/nats"
	"github.com/nyotafm/smsgate/internal/security"
	"github.com/nyotafm/smsgate/internal/server"
	"github.com/nyotafm/smsgate/internal/sms"
	"github.com/nyotafm/smsgate/internal/store/postgres"
	"github.com/nyotafm/smsgate/internal/worker"
)

const (
	gatewayTimeout = 30 * time.Second
	consumerName   = "sms-worker"
	shutdownGrace  = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	godotenv.Load()
	logging.Init()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("database ready")

	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	dedupe := cache.NewReportDedupe(redisClient, cfg.ReportRetention)

	publisher, err := natsq.New(ctx, cfg.NATSURL)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ackWait := cfg.Worker.JobTimeout + gatewayTimeout
	consumer, err := publisher.Consumer(ctx, consumerName, cfg.Worker.MaxDeliver, ackWait)
	if err != nil {
		return err
	}

	var transport gateway.Transport
	if cfg.Gateway.Fake {
		slog.Warn("using fake gateway transport, nothing will be delivered")
		transport = &gateway.Fake{}
	} else {
		transport = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Username, cfg.Gateway.Password, gatewayTimeout)
	}

	hub := events.NewHub()
	service := sms.NewService(
		postgres.NewSMSStore(db),
		postgres.NewMessageStore(db),
		transport,
		publisher,
		hub,
		sms.Config{
			CallbackBaseURL:    cfg.Callback.BaseURL,
			CallbackPath:       cfg.Callback.Path,
			CallbackToken:      cfg.Callback.Token,
			IntermediateReport: cfg.IntermediateReport,
		},
	)

	w := worker.New(service, consumer, hub, cfg.Worker.Concurrency, cfg.Worker.JobTimeout)
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- w.Start(ctx)
	}()

	handler := server.NewHandler(service, dedupe, hashedCallbackToken(cfg))
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.NewRouter(handler),
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", slog.Any("error", err))
	}
	if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker stopped", slog.Any("error", err))
	}
	return nil
}

func hashedCallbackToken(cfg *config.Config) string {
	if cfg.Callback.Token == "" {
		return ""
	}
	return security.HashToken(cfg.Callback.Token)
}
