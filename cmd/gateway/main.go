package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"storefront-gateway/config"
	"storefront-gateway/gateway"
	"storefront-gateway/logging"
	"storefront-gateway/metrics"
	"storefront-gateway/middleware/apierror"
	csrfapp "storefront-gateway/middleware/csrf/application"
	"storefront-gateway/middleware/exempt"
	"storefront-gateway/middleware/ratelimit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Storefront edge gateway",
		Long: `Resolve o host para a loja, aplica o redirect canônico, valida CSRF e
rate limit por plano e repassa a requisição para UPSTREAM_URL.

Configuração vem de variáveis de ambiente (LISTEN_ADDR, UPSTREAM_URL,
BASE_DOMAIN, CSRF_SECRET, REDIS_ADDR, LOOKUP_DRIVER, ...) e, opcionalmente,
de um arquivo YAML passado em --config.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.Flags().String("listen", "", "listen address (overrides LISTEN_ADDR)")
	_ = v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	rules := exempt.Default()

	lookup, closeLookup, err := buildLookup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLookup()

	limiter, stats, closeLimiter, err := buildLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	guard, err := csrfapp.NewGuard([]byte(cfg.CSRFSecret),
		csrfapp.WithTTL(cfg.CSRFTTL),
		csrfapp.WithExempt(rules),
	)
	if err != nil {
		return err
	}

	gw, err := gateway.New(gateway.Options{
		BaseDomain:         cfg.BaseDomain,
		Production:         cfg.Production(),
		Lookup:             lookup,
		LookupTimeout:      cfg.LookupTimeout,
		TrustForwardedHost: cfg.TrustForwardedHost,
		CSRF:               guard,
		RateLimit:          limiter,
		Stats:              stats,
		TrustXForwardedFor: cfg.TrustXFF,
		Exempt:             rules,
		Logger:             logger,
		Metrics:            m,
	})
	if err != nil {
		return err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if r.Context().Err() != nil {
			return
		}
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		apierror.Write(w, http.StatusBadGateway, apierror.CodeBadGateway, "Upstream did not respond")
	}

	h := gw.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		AcquireTimeout: cfg.ConcurrencyTimeout,
		Logger:         logger,
	})(h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("upstream", target.String()),
		zap.String("base_domain", cfg.BaseDomain),
		zap.String("environment", cfg.Environment),
	)
	logger.Info("lookup",
		zap.String("driver", cfg.LookupDriver),
		zap.Duration("timeout", cfg.LookupTimeout),
		zap.Duration("cache_ttl", cfg.LookupCacheTTL),
	)
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.RateEnabled),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.Bool("stats", cfg.RateStatsEnabled),
		zap.Bool("trust_xff", cfg.TrustXFF),
	)
	logger.Info("concurrency", zap.Int("max", cfg.ConcurrencyMax), zap.Duration("acquire_timeout", cfg.ConcurrencyTimeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
