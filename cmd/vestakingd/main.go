package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"vestake/cmd/internal/passphrase"
	nodeconfig "vestake/config"
	"vestake/core"
	"vestake/core/events"
	"vestake/gateway/config"
	"vestake/gateway/middleware"
	"vestake/gateway/routes"
	"vestake/integrations/webhooks"
	"vestake/observability"
	"vestake/observability/logging"
	telemetry "vestake/observability/otel"
	"vestake/services/indexer"
	stakingserver "vestake/services/staking/server"
)

func main() {
	var cfgPath string
	var allowInsecureFlag bool
	flag.StringVar(&cfgPath, "config", "", "path to vestakingd YAML configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on non-loopback interfaces")
	flag.Parse()

	if err := run(cfgPath, allowInsecureFlag); err != nil {
		fmt.Fprintf(os.Stderr, "vestakingd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string, allowInsecure bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configDir := ""
	if strings.TrimSpace(cfgPath) != "" {
		configDir = filepath.Dir(cfgPath)
	}

	env := strings.TrimSpace(os.Getenv("VESTAKE_ENV"))
	logger, logCloser := logging.SetupWithOptions(cfg.Observability.ServiceName, env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       resolvePath(configDir, cfg.Logging.File),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	nodeCfg, err := nodeconfig.Load(resolvePath(configDir, cfg.NodeConfig))
	if err != nil {
		return fmt.Errorf("load node config: %w", err)
	}

	shutdownTelemetry, err := initTelemetry(cfg, env, nodeCfg.NetworkName)
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()
	db, err := nodeCfg.OpenDatabase()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	gen, err := nodeCfg.ResolveGenesis(lazyPassphrase(nodeCfg))
	if err != nil {
		return fmt.Errorf("resolve genesis: %w", err)
	}

	sinks := []events.Sink{observability.Events()}
	var history routes.History
	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		idx, err := indexer.New(gdb, logger)
		if err != nil {
			return fmt.Errorf("start indexer: %w", err)
		}
		defer idx.Close()
		history = idx
		sinks = append(sinks, idx)
		logger.Info("event indexer enabled",
			slog.String("driver", cfg.Indexer.Driver),
			slog.String("dsn", logging.MaskDSN(cfg.Indexer.DSN)))
	}
	if cfg.Webhook.Endpoint != "" {
		opts := []webhooks.Option{webhooks.WithLogger(logger)}
		if cfg.Webhook.QueueSize > 0 {
			opts = append(opts, webhooks.WithQueueSize(cfg.Webhook.QueueSize))
		}
		if cfg.Webhook.MaxAttempts > 0 {
			opts = append(opts, webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 500*time.Millisecond, 30*time.Second))
		}
		if cfg.Webhook.Timeout > 0 {
			opts = append(opts, webhooks.WithHTTPClient(&http.Client{Timeout: cfg.Webhook.Timeout}))
		}
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret), opts...)
		if err != nil {
			return fmt.Errorf("configure webhook: %w", err)
		}
		defer dispatcher.Close()
		sinks = append(sinks, dispatcher)
		logger.Info("webhook delivery enabled",
			slog.String("endpoint", cfg.Webhook.Endpoint),
			logging.MaskField("secret", cfg.Webhook.Secret))
	}
	hub := routes.NewHub(logger, cfg.CORS.AllowedOrigins...)
	sinks = append(sinks, hub)

	opts := []core.Option{core.WithLogger(logger)}
	for _, sink := range sinks {
		opts = append(opts, core.WithSink(sink))
	}
	node, err := core.NewNode(db, gen, opts...)
	if err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}
	authenticator := auth(cfg, logger)
	var grpcServer *grpc.Server
	if cfg.GRPC.Listen != "" {
		service := stakingserver.New(node, logger)
		node.AddSink(service)
		grpcServer, err = newGRPCServer(cfg, configDir, authenticator, service)
		if err != nil {
			return fmt.Errorf("configure grpc: %w", err)
		}
	}
	logger.Info("ledger ready",
		slog.String("network", nodeCfg.NetworkName),
		slog.String("admin", gen.Admin.Hex()),
		slog.String("module", node.Module().Hex()))

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: cfg.Observability.ServiceName,
		LogRequests: cfg.Observability.LogRequests,
		Enabled:     cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, logger)

	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled; callers are taken from X-Vestake-Caller")
	}

	router := routes.New(routes.Config{
		Ledger:        node,
		History:       history,
		Hub:           hub,
		Authenticator: authenticator,
		RateLimiter:   middleware.NewRateLimiter(rateLimits(cfg), logger),
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
		Logger:         logger,
		RequestTimeout: cfg.WriteTimeout,
	})

	handler := http.Handler(router)
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, cfg.Observability.ServiceName)
	}

	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	if tlsConfig == nil && !allowInsecure && !strings.EqualFold(env, "dev") {
		for _, addr := range []string{cfg.ListenAddress, cfg.GRPC.Listen} {
			if addr != "" && !isLoopbackAddress(addr) {
				return fmt.Errorf("plaintext listener %s is restricted to loopback addresses; configure TLS or pass --allow-insecure", addr)
			}
		}
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    tlsConfig,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
		listener = tls.NewListener(listener, tlsConfig)
	}
	serveErr := make(chan error, 2)
	go func() {
		logger.Info("listening", slog.String("listen", scheme+"://"+listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	if grpcServer != nil {
		grpcListener, err := net.Listen("tcp", cfg.GRPC.Listen)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			logger.Info("grpc listening", slog.String("listen", grpcListener.Addr().String()))
			if err := grpcServer.Serve(grpcListener); err != nil {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcServer != nil {
		stopGRPC(shutdownCtx, grpcServer)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

func auth(cfg config.Config, logger *slog.Logger) *middleware.Authenticator {
	return middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        cfg.Auth.Enabled,
		HMACSecret:     cfg.Auth.HMACSecret,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		OptionalPaths:  cfg.Auth.OptionalPaths,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
		ClockSkew:      cfg.Auth.ClockSkew,
	}, logger)
}

func newGRPCServer(cfg config.Config, configDir string, verifier stakingserver.TokenVerifier, service *stakingserver.Service) (*grpc.Server, error) {
	options := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			otelgrpc.UnaryServerInterceptor(),
			stakingserver.NewAuthInterceptor(verifier),
		),
		grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()),
	}
	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		options = append(options, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	grpcServer := grpc.NewServer(options...)
	service.Register(grpcServer)
	return grpcServer, nil
}

// stopGRPC drains in-flight calls until ctx expires, then forces the stop.
func stopGRPC(ctx context.Context, grpcServer *grpc.Server) {
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		grpcServer.Stop()
	}
}

// lazyPassphrase only prompts when autogenesis actually needs the operator
// key, so restarts against an existing genesis never block on a terminal.
func lazyPassphrase(cfg *nodeconfig.Config) string {
	genesisPath := strings.TrimSpace(cfg.GenesisFile)
	if genesisPath == "" {
		genesisPath = filepath.Join(cfg.DataDir, "genesis.json")
	}
	if _, err := os.Stat(genesisPath); err == nil || !cfg.AllowAutogenesis {
		return ""
	}
	value, err := passphrase.NewSource(passphrase.DefaultEnvVar).Get()
	if err != nil {
		// Default keystores are written without a passphrase.
		return ""
	}
	return value
}

func initTelemetry(cfg config.Config, env, network string) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	insecure := cfg.Observability.OTLPInsecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	// Exporters stay off unless a collector is configured.
	enabled := endpoint != ""
	return telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Observability.ServiceName,
		Environment: env,
		Network:     network,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     enabled && cfg.Observability.Metrics,
		Traces:      enabled && cfg.Observability.Tracing,
	})
}

func rateLimits(cfg config.Config) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for _, entry := range cfg.RateLimits {
		limits[entry.ID] = middleware.RateLimit{
			RequestsPerMinute: entry.RequestsPerMinute,
			RatePerSecond:     entry.RatePerSecond,
			Burst:             entry.Burst,
			DefaultTokens:     entry.DefaultTokens,
			Tokens:            entry.Tokens,
		}
	}
	if len(limits) == 0 {
		limits[routes.RateLimitStake] = middleware.RateLimit{RatePerSecond: 5, Burst: 20}
		limits[routes.RateLimitAdmin] = middleware.RateLimit{RatePerSecond: 1, Burst: 5}
		limits[routes.RateLimitToken] = middleware.RateLimit{RatePerSecond: 10, Burst: 40}
		limits[routes.RateLimitAsset] = middleware.RateLimit{RatePerSecond: 5, Burst: 20}
		limits[routes.RateLimitEvents] = middleware.RateLimit{RatePerSecond: 2, Burst: 10}
	}
	return limits
}

func buildTLSConfig(baseDir string, sec config.SecurityConfig) (*tls.Config, error) {
	certPath := resolvePath(baseDir, sec.TLSCertFile)
	keyPath := resolvePath(baseDir, sec.TLSKeyFile)
	if certPath == "" && keyPath == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
