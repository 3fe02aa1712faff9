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

	otellog "go.opentelemetry.io/otel/log"

	"ledpong/internal/auth"
	"ledpong/internal/config"
	"ledpong/internal/logging"
	"ledpong/internal/telemetry"
	"ledpong/server"
	"ledpong/server/application"
	"ledpong/server/domain"
)

func main() {
	configFile := flag.String("config", "", "path to config file (json, yaml or toml)")
	flag.Parse()

	if err := config.LoadEnvFile(); err != nil {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		slog.Error("failed to set up telemetry", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "err", err)
		}
	}()

	var logProvider otellog.LoggerProvider
	if tel.Enabled() {
		logProvider = tel.LoggerProvider()
	}
	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, logProvider)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer closeLog()

	var verifier *auth.Verifier
	if cfg.AuthSecret != "" {
		verifier, err = auth.NewVerifier(cfg.AuthSecret, cfg.TokenTTL)
		if err != nil {
			slog.Error("failed to set up auth", "err", err)
			os.Exit(1)
		}
	}

	// PubSub初期化
	pubsub := domain.NewSimplePubSub()

	// デフォルトルーム設定
	defaultRoomID := domain.RoomID(cfg.DefaultRoom)
	roomManager := domain.NewSimpleRoomManager(defaultRoomID)

	app := application.NewPongApplication(application.PongConfig{
		MaxDeltaTime: cfg.MaxDeltaTime,
		Seed:         cfg.Seed,
	})
	room := domain.NewRoom(defaultRoomID, pubsub, app, cfg.TickRate)
	roomDone := make(chan struct{})
	go func() {
		defer close(roomDone)
		if err := room.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "room error", "err", err)
		}
	}()

	endpointConfig := domain.EndpointConfig{
		PingInterval: cfg.PingInterval,
		IdleTimeout:  cfg.IdleTimeout,
	}
	handler := server.Route(pubsub, roomManager, endpointConfig, verifier)
	s := server.NewServer(cfg.ListenAddr(), handler)

	serveErr := make(chan error, 1)
	go func() {
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	slog.InfoContext(ctx, "server listening", "addr", s.Addr(), "room", defaultRoomID, "tickRate", cfg.TickRate, "auth", verifier != nil, "otlp", tel.Enabled())

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutdown initiated")
	case err := <-serveErr:
		slog.ErrorContext(ctx, "http server error", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "graceful shutdown failed", "err", err)
		if err := s.Close(); err != nil {
			slog.ErrorContext(ctx, "forced close failed", "err", err)
		}
	}
	<-roomDone
	slog.InfoContext(ctx, "server shutdown complete")
}
