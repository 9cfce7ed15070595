// Command monitor keeps a live, deduplicated view of upstream space-weather
// data and serves it as JSON, WebSocket snapshots and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/spacewatch/monitor/internal/alertfeed"
	"github.com/obsidianstack/spacewatch/monitor/internal/api"
	"github.com/obsidianstack/spacewatch/monitor/internal/auth"
	"github.com/obsidianstack/spacewatch/monitor/internal/config"
	"github.com/obsidianstack/spacewatch/monitor/internal/history"
	"github.com/obsidianstack/spacewatch/monitor/internal/live"
	"github.com/obsidianstack/spacewatch/monitor/internal/notify"
	"github.com/obsidianstack/spacewatch/monitor/internal/session"
	"github.com/obsidianstack/spacewatch/monitor/internal/stream"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
	"github.com/obsidianstack/spacewatch/monitor/internal/upstream"
	"github.com/obsidianstack/spacewatch/monitor/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses defaults plus SPACEWATCH_* env")
	watch := flag.Bool("watch", true, "reload thresholds and log level when the config file changes")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("spacewatch-monitor starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	slog.Info("config loaded",
		"base_url", cfg.Upstream.BaseURL,
		"transport", cfg.Upstream.Transport,
		"http_port", cfg.Server.HTTPPort,
		"reconnect", cfg.Reconnect.Enabled,
		"webhooks", len(cfg.Notify.Webhooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reload := ""
	if *watch {
		reload = *configPath
	}
	if err := run(ctx, cfg, reload, level); err != nil {
		slog.Error("spacewatch-monitor stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("spacewatch-monitor stopped")
}

// run wires every component and blocks until ctx is cancelled or one of
// them fails. A non-empty reloadPath enables config hot reload.
func run(ctx context.Context, cfg *config.Config, reloadPath string, level *slog.LevelVar) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(reg)

	u := cfg.Upstream
	historyHTTP, err := upstream.NewHTTPClient(u, u.Timeout)
	if err != nil {
		return err
	}
	historyClient := resty.NewWithClient(historyHTTP).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	if u.RuntimeConfigURL != "" {
		u.BaseURL = history.ResolveBaseURL(ctx, historyClient, u.RuntimeConfigURL)
		slog.Info("upstream base resolved from runtime config", "base_url", u.BaseURL)
	}

	hist, err := history.New(historyClient, u, metrics)
	if err != nil {
		return err
	}
	dialer, err := newDialer(u)
	if err != nil {
		return err
	}
	samplesURL, err := u.Resolve(u.SamplesStream)
	if err != nil {
		return fmt.Errorf("samples stream url: %w", err)
	}
	alertsURL, err := u.Resolve(u.AlertsStream)
	if err != nil {
		return fmt.Errorf("alerts stream url: %w", err)
	}

	reconnect := newBackOff(cfg.Reconnect)
	feedOpts := []alertfeed.Option{alertfeed.WithMetrics(metrics)}
	if reconnect != nil {
		feedOpts = append(feedOpts, alertfeed.WithReconnect(reconnect))
	}
	feed := alertfeed.New(dialer, alertsURL, feedOpts...)
	defer feed.Close()

	if len(cfg.Notify.Webhooks) > 0 {
		notifier := notify.New(cfg.Notify, nil, metrics)
		unsubscribe := feed.Subscribe(notifier.Notify)
		defer notifier.Wait()
		defer unsubscribe()
	}

	sess := session.New(session.Config{
		WindowCap:         cfg.Window.Capacity,
		SeedLimit:         cfg.Window.SeedLimit,
		AlertCap:          cfg.Alerts.Capacity,
		AlertHistoryLimit: cfg.Alerts.HistoryLimit,
		AlertMaxAge:       cfg.Alerts.MaxAge,
		PruneInterval:     cfg.Alerts.PruneInterval,
		FreshFor:          cfg.Alerts.FreshFor,
		FreshnessInterval: cfg.Freshness.RecomputeInterval,
		Thresholds:        cfg.Thresholds,
		Reconnect:         reconnect,
	}, hist, live.New(dialer, samplesURL, metrics), feed, session.WithMetrics(metrics))

	hub := ws.New(sess, cfg.Server.BroadcastInterval, metrics)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(sess))
	mux.Handle("/ws/stream", hub)
	mux.Handle("/metrics", telemetry.Handler(reg))

	guard := auth.APIKey(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.Header,
		cfg.Server.Auth.Key(),
		"/api/v1/health", "/metrics",
	)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           guard(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("spacewatch-monitor shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if reloadPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, reloadPath, func(next *config.Config) {
				level.Set(next.Log.SlogLevel())
				sess.SetThresholds(next.Thresholds)
			})
		})
	}

	return g.Wait()
}

// newDialer picks the push-stream transport. Stream clients carry no
// request timeout.
func newDialer(u config.Upstream) (stream.Dialer, error) {
	switch u.Transport {
	case "websocket":
		tlsCfg, err := upstream.TLSConfig(u)
		if err != nil {
			return nil, fmt.Errorf("upstream: %w", err)
		}
		return stream.NewWSDialer(tlsCfg, upstream.Header(u.Auth)), nil
	default:
		hc, err := upstream.NewHTTPClient(u, 0)
		if err != nil {
			return nil, err
		}
		return stream.NewSSEDialer(resty.NewWithClient(hc)), nil
	}
}

// newBackOff returns the reconnect policy, or nil when reconnect is off.
func newBackOff(rc config.ReconnectConfig) func() backoff.BackOff {
	if !rc.Enabled {
		return nil
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = rc.InitialInterval
		if rc.MaxInterval > 0 {
			b.MaxInterval = rc.MaxInterval
		}
		b.MaxElapsedTime = rc.MaxElapsed
		b.Reset()
		return b
	}
}
