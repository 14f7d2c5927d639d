package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ipchain/observability/logging"
	"ipchain/observability/otel"
)

func main() {
	configPath := flag.String("config", "royalty-gateway.yaml", "path to the gateway configuration file")
	flag.Parse()
	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "royalty-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	env := getEnv("ROYALTY_GATEWAY_ENV", "local")
	logger := logging.Setup("royalty-gateway", env)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	secret := os.Getenv(cfg.Auth.SecretEnv)
	if secret == "" {
		return fmt.Errorf("environment variable %s must hold the JWT secret", cfg.Auth.SecretEnv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "royalty-gateway",
			Environment: env,
			Endpoint:    endpoint,
			Insecure:    os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
			Headers:     otel.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", "error", err)
			}
		}()
	}

	store, err := NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	node := NewRPCClient(RPCClientConfig{
		URL:       cfg.Node.URL,
		AuthToken: os.Getenv(cfg.Node.AuthTokenEnv),
		Timeout:   cfg.Node.Timeout.Duration,
	})

	authn, err := NewAuthenticator(AuthenticatorConfig{
		Secret:   []byte(secret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   time.Duration(cfg.Auth.MaxSkewSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	reconciler := NewReconciler(ReconcilerConfig{
		Store:     store,
		Node:      node,
		OutputDir: cfg.Recon.OutputDir,
		DryRun:    cfg.Recon.DryRun,
		Logger:    logger,
	})
	scheduler := NewScheduler(SchedulerConfig{
		Reconciler: reconciler,
		Window:     cfg.Recon.Window.Duration,
		RunHour:    cfg.Recon.RunHour,
		RunMinute:  cfg.Recon.RunMinute,
		Logger:     logger,
	})
	go scheduler.Start(ctx)

	srv := NewServer(ServerConfig{
		Store:    store,
		Node:     node,
		Recon:    reconciler,
		Auth:     authn,
		Limiter:  NewRateLimiter(cfg.Rate.RequestsPerMinute, cfg.Rate.Burst),
		Logger:   logger,
		Operator: strings.TrimSpace(cfg.Operator),
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(srv.Handler(), "royalty-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}()

	logger.Info("royalty gateway listening", "addr", cfg.ListenAddress, "node", cfg.Node.URL)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
