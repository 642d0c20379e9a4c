package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrave1/meetsignal/internal/application/config"
	"github.com/qrave1/meetsignal/internal/application/constant"
	"github.com/qrave1/meetsignal/internal/application/metric"
	"github.com/qrave1/meetsignal/internal/infra/adapters/memory"
	"github.com/qrave1/meetsignal/internal/infra/ports/http/handlers"
	"github.com/qrave1/meetsignal/internal/infra/ports/http/server"
	"github.com/qrave1/meetsignal/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		setupLogger(false)
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	setupLogger(cfg.Debug)

	slog.Info("Running app", slog.Bool("debug", cfg.Debug))

	connRepo := memory.NewConnectionRepository()
	roomRepo := memory.NewRoomRepository()
	handshakeRepo := memory.NewHandshakeRepository()

	signalingUsecase := usecase.NewSignalingUsecase(cfg, connRepo, roomRepo, handshakeRepo)

	hub := usecase.NewHub(signalingUsecase)
	go hub.Run(ctx)

	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, hub)

	echoSrv := server.New(iceHandler, wsHandler)
	metricSrv := metric.NewServer()

	srvCh := make(chan error, 2)
	go func() {
		srvCh <- echoSrv.Start(":" + cfg.Port)
	}()
	go func() {
		srvCh <- metricSrv.Start(":" + cfg.MetricPort)
	}()

	slog.Info(
		"HTTP server starting",
		slog.String("port", cfg.Port),
		slog.String("metric_port", cfg.MetricPort),
	)

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server due to context cancel")
	case err := <-srvCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error(
				"HTTP server failed",
				slog.Any(constant.Error, err),
			)

			os.Exit(1)
		}
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown server", slog.Any(constant.Error, err))
	}

	if err := metricSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to shutdown metric server", slog.Any(constant.Error, err))
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)
}
