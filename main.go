package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"agentspace/internal/config"
	"agentspace/internal/db"
	"agentspace/internal/handlers"
	"agentspace/internal/logging"
	"agentspace/internal/observability"
	"agentspace/internal/rabbitmq"
	"agentspace/internal/ratelimit"
	"agentspace/internal/repositories"
	"agentspace/internal/services"
	"agentspace/internal/telemetry"
	"agentspace/internal/ws"
)

const auditRoutingKey = "audit.security_code"

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentspace",
		Short: "Shared message board relay for agents",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("static-dir", defaults.GetString("static.dir"), "Directory served for unmatched GET requests")
	cmd.PersistentFlags().String("amqp-url", defaults.GetString("amqp.url"), "RabbitMQ URL; empty disables event publishing")
	cmd.PersistentFlags().String("amqp-exchange", defaults.GetString("amqp.exchange"), "RabbitMQ topic exchange")
	cmd.PersistentFlags().String("otel-endpoint", defaults.GetString("otel.endpoint"), "OTLP/gRPC collector endpoint; empty disables tracing")
	cmd.PersistentFlags().String("environment", defaults.GetString("environment"), "Deployment environment reported in traces and audit events")
	cmd.PersistentFlags().Int("ratelimit-max", defaults.GetInt("ratelimit.max"), "Messages allowed per client IP per window")
	cmd.PersistentFlags().Duration("ratelimit-window", defaults.GetDuration("ratelimit.window"), "Rate limit window")
	cmd.PersistentFlags().Duration("heartbeat-interval", defaults.GetDuration("hub.heartbeat_interval"), "WebSocket liveness probe interval")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "static.dir", "static-dir")
	bindFlag(cmd, "amqp.url", "amqp-url")
	bindFlag(cmd, "amqp.exchange", "amqp-exchange")
	bindFlag(cmd, "otel.endpoint", "otel-endpoint")
	bindFlag(cmd, "environment", "environment")
	bindFlag(cmd, "ratelimit.max", "ratelimit-max")
	bindFlag(cmd, "ratelimit.window", "ratelimit-window")
	bindFlag(cmd, "hub.heartbeat_interval", "heartbeat-interval")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	return viper.ReadInConfig()
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if appConfig.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(signalCtx, appConfig.OTELEndpoint, appConfig.ServiceName, appConfig.Environment)
	if err != nil {
		return err
	}

	database, err := db.Connect(signalCtx, appConfig.DatabaseDSN, logger)
	if err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return err
	}

	messageRepo := repositories.NewMessageRepo(database)
	codeRepo := repositories.NewSecurityCodeRepo(database)

	if code, err := codeRepo.CurrentCode(signalCtx); err != nil {
		logger.Warn("security code unavailable", zap.Error(err))
	} else {
		logger.Info("security code", zap.String("code", code))
	}

	publisher := rabbitmq.NewPublisher(appConfig.AMQPURL, appConfig.AMQPExchange, logger)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)

	limiter := ratelimit.New(appConfig.RateLimitMax, appConfig.RateLimitWindow)
	go limiter.Run(signalCtx, appConfig.RateLimitSweep)

	hub := ws.NewHub(logger, ws.WithHeartbeat(appConfig.HeartbeatInterval), ws.WithPublisher(publisher))
	hubDone := make(chan struct{})
	go func() {
		hub.Run(signalCtx)
		close(hubDone)
	}()

	gate := services.NewAccessGate(codeRepo)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, appConfig.ServiceName, appConfig.Environment, logger)

	messageService := services.NewMessageService(services.MessageServiceConfig{
		Messages:    messageRepo,
		Anonymizer:  services.NewAnonymizer(codeRepo),
		Limiter:     limiter,
		Broadcaster: hub,
		Publisher:   publisher,
		Logger:      logger,
	})
	codeService := services.NewSecurityCodeService(codeRepo, hub, audit, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		ServiceName: appConfig.ServiceName,
		StaticDir:   appConfig.StaticDir,
		Gate:        gate,
		Messages:    handlers.NewMessageHandler(messageService, logger),
		Codes:       handlers.NewSecurityCodeHandler(codeService, logger),
		WebSocket:   ws.NewBoardWebSocketHandler(hub, gate, logger),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-signalCtx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them once signalCtx is done.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown stalled", zap.Error(err))
		os.Exit(1)
	}
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
	}

	if err := publisher.Close(); err != nil {
		logger.Warn("close event publisher", zap.Error(err))
	}
	if err := database.Close(); err != nil {
		logger.Warn("close database", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("shutdown tracing", zap.Error(err))
	}
	return serveErr
}
