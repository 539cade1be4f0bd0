package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"MarketPulse/internal/chart"
	"MarketPulse/internal/config"
	"MarketPulse/internal/logger"
	"MarketPulse/internal/metrics"
	"MarketPulse/internal/notifier"
	"MarketPulse/internal/pipeline"
	"MarketPulse/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	if err := config.LoadEnvFile(envOr("ENV_FILE", ".env")); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	// Load config
	cfg, err := config.Load(envOr("CONFIG_PATH", "configs/config.yaml"))
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[FATAL] init logger: %v", err)
	}
	defer lg.Sync()
	lg.Info("MarketPulse starting", zap.String("publisher", cfg.Publisher), zap.Int("jobs", len(cfg.Jobs)))

	loc, err := cfg.Location()
	if err != nil {
		lg.Fatal("resolve timezone", zap.Error(err))
	}

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, m, lg)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Telegram is used for chat commands whenever it is configured, and as
	// the publisher when selected.
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, cfg.Sources.Timeout, lg)
	}

	publisher, err := newPublisher(cfg, tn, lg)
	if err != nil {
		lg.Fatal("init publisher", zap.Error(err))
	}

	jobs, err := pipeline.Build(cfg, pipeline.Deps{
		Renderer:  chart.NewQuickChart(cfg.ChartURL, cfg.Proxy, cfg.Sources.Timeout),
		Publisher: publisher,
		Observer:  m,
		Log:       lg,
	})
	if err != nil {
		lg.Fatal("build jobs", zap.Error(err))
	}

	sched := scheduler.NewScheduler(ctx, loc, lg)
	for _, job := range jobs {
		jc, _ := cfg.Job(job.Name())
		if err := sched.Register(job, jc.Cron); err != nil {
			lg.Fatal("register job", zap.Error(err))
		}
	}

	// One-shot mode: run a single job and exit. Failures are reported in the
	// status line; the exit code stays zero.
	if name := os.Getenv("RUN_JOB"); name != "" {
		if _, err := sched.RunNow(name); err != nil {
			lg.Error("run job", zap.String("job", name), zap.Error(err))
		}
		return
	}

	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		lg.Info("telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		lg.Info("RUN_ON_START enabled, running every job now")
		go sched.RunAll()
	}

	lg.Info("MarketPulse is running, press Ctrl+C to stop")
	<-ctx.Done()
	lg.Info("shutdown signal received, stopping")
}

func newPublisher(cfg *config.Config, tn *notifier.TelegramNotifier, lg *zap.Logger) (notifier.Publisher, error) {
	switch cfg.Publisher {
	case config.PublisherTelegram:
		if tn == nil {
			return nil, errors.New("telegram publisher selected but telegram is not configured")
		}
		return tn, nil
	case config.PublisherDryRun:
		return notifier.NewDryRunPublisher(lg), nil
	default:
		creds, err := notifier.LoadCredentials()
		if err != nil {
			return nil, err
		}
		if missing := creds.Missing(); len(missing) > 0 {
			// Runs still proceed; each publish fails with the missing names.
			lg.Warn("X credentials incomplete", zap.Strings("missing", missing))
		}
		return notifier.NewTwitterPublisher(creds, cfg.Proxy, cfg.Sources.Timeout), nil
	}
}

func serveMetrics(addr string, m *metrics.Metrics, lg *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		lg.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
