package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/internal/config"
	"github.com/MrEthical07/authgate/internal/httpapi"
	"github.com/MrEthical07/authgate/internal/obs"
	"github.com/MrEthical07/authgate/mail"
	promexport "github.com/MrEthical07/authgate/metrics/export/prometheus"
	"github.com/MrEthical07/authgate/userstore"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = newRedisClient(cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable at startup, requests will be allowed until it recovers")
		}
		cancel()
	}

	var users authgate.UserStore
	switch cfg.UserStore {
	case config.UserStoreRedis:
		users = userstore.NewRedis(rdb, "")
	default:
		users = userstore.NewMemory()
		logger.Warn().Msg("using in-memory user store, accounts are lost on restart")
	}

	engineCfg := cfg.EngineConfig()

	builder := authgate.New().
		WithConfig(engineCfg).
		WithUserStore(users).
		WithLogger(logger)
	if rdb != nil {
		builder = builder.WithRedis(rdb)
	}
	if sc, ok := cfg.SMTPConfig(); ok {
		transport, err := mail.NewSMTPTransport(sc)
		if err != nil {
			logger.Fatal().Err(err).Msg("smtp transport")
		}
		builder = builder.WithMailer(mail.NewSender(transport, engineCfg.Mail.Brand, engineCfg.OTP.TTL))
	}
	if cfg.Observability.AuditLog {
		builder = builder.WithAuditSink(authgate.NewLogSink(logger.With().Str("component", "audit").Logger()))
	}

	engine, err := builder.Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("build engine")
	}
	defer engine.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	handler := httpapi.NewRouter(httpapi.Options{
		Service:           engine,
		Logger:            logger,
		Metrics:           obs.NewMetrics(reg),
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		MetricsPath:       cfg.Observability.PrometheusPath,
		RequestTimeout:    cfg.Server.RequestTimeout(),
		MaxBodyBytes:      cfg.Server.MaxBody(),
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout(),
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Bool("rate_limit", engine.RateLimitEnabled()).
			Strs("routes", engine.Routes()).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}

func newRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	// A dead Redis must fail fast so the limiter can fail open.
	opts.MaxRetries = -1
	return redis.NewClient(opts), nil
}
