// Package app wires the reading progress components into a runnable session:
// a browser page, the tracker, the update hub with its sinks, and the
// optional HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/api"
	"github.com/JakeFAU/readingprogress/internal/browser"
	"github.com/JakeFAU/readingprogress/internal/config"
	"github.com/JakeFAU/readingprogress/internal/metrics"
	"github.com/JakeFAU/readingprogress/internal/policy/ratelimit"
	"github.com/JakeFAU/readingprogress/internal/progress"
	"github.com/JakeFAU/readingprogress/internal/progress/sinks"
	"github.com/JakeFAU/readingprogress/internal/progressbar"
	"github.com/JakeFAU/readingprogress/internal/telemetry"
	"github.com/JakeFAU/readingprogress/internal/viewport"
	"github.com/JakeFAU/readingprogress/internal/widget"
)

const shutdownTimeout = 10 * time.Second

// Scroller advances the page on its own. browser.Page implements it.
type Scroller interface {
	AutoScroll(ctx context.Context, step float64, interval time.Duration) error
}

// Components are the page-side pieces an App runs over.
type Components struct {
	Page     viewport.Page
	Painters []progressbar.Painter
	// Scroller is optional; autoscroll is skipped without one.
	Scroller Scroller
	// Viewport is optional; it enables the API's viewport routes.
	Viewport api.Viewport
	// Close releases the page after everything else has shut down.
	Close func() error
}

// App holds the long-lived services of one session.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	components  Components
	registry    *prometheus.Registry
	tracing     *sdktrace.TracerProvider
	hub         *progress.Hub
	widget      *widget.Widget
	broadcaster *api.Broadcaster
	apiServer   *api.Server
}

// New opens the configured page in Chrome and assembles the session over it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	page, err := browser.Open(ctx, cfg.Page.URL, browser.Config{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		EvalTimeout:       cfg.Browser.EvalTimeout,
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
		Logger:            logger.Named("browser"),
	})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	var painters []progressbar.Painter
	if cfg.Renderer.DOM {
		painters = append(painters, browser.NewDOMPainter(page, cfg.Page.BarSelector))
	}
	if cfg.Renderer.Text {
		painters = append(painters, progressbar.NewTextPainter(os.Stderr, cfg.Renderer.TextWidth))
	}

	a, err := Assemble(ctx, cfg, logger, Components{
		Page:     page,
		Painters: painters,
		Scroller: page,
		Viewport: page,
		Close:    page.Close,
	})
	if err != nil {
		_ = page.Close()
		return nil, err
	}
	return a, nil
}

// Assemble builds the session over already opened components.
func Assemble(ctx context.Context, cfg config.Config, logger *zap.Logger, c Components) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Page == nil {
		return nil, viewport.ErrNilPage
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		components: c,
		registry:   prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := progressbar.Options{
		ContentContainerClassName: cfg.Page.ContainerClass,
		CSSClass:                  cfg.Page.CSSClass,
		ThrottleTime:              cfg.Tracker.ThrottleTime,
	}
	var hubSinks []progress.Sink
	for _, painter := range c.Painters {
		bar, err := progressbar.New(ctx, painter, opts, logger.Named("bar"))
		if err != nil {
			closeSinks(ctx, hubSinks)
			return nil, fmt.Errorf("create progress bar: %w", err)
		}
		hubSinks = append(hubSinks, sinks.NewBarSink(bar))
	}
	if cfg.Progress.LogUpdates {
		hubSinks = append(hubSinks, sinks.NewLogSink(logger.Named("progress")))
	}
	if cfg.Progress.Metrics {
		siteRegistry := prometheus.WrapRegistererWith(
			prometheus.Labels{"site": metrics.SanitizeSite(cfg.Page.URL)}, a.registry)
		metricsSink, err := sinks.NewPrometheusSink(siteRegistry)
		if err != nil {
			closeSinks(ctx, hubSinks)
			return nil, fmt.Errorf("create metrics sink: %w", err)
		}
		hubSinks = append(hubSinks, metricsSink)
	}
	if cfg.Server.Enabled {
		a.broadcaster = api.NewBroadcaster(logger.Named("stream"), cfg.Server.AllowedOrigins...)
		hubSinks = append(hubSinks, a.broadcaster)
	}

	hubCfg := progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		SinkTimeout:    cfg.Progress.SinkTimeout,
		Logger:         logger.Named("hub"),
	}
	if cfg.Telemetry.Tracing {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, telemetry.NewLogExporter(logger.Named("trace")))
		if err != nil {
			closeSinks(ctx, hubSinks)
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.tracing = tp
		hubCfg.Tracer = tp.Tracer("github.com/JakeFAU/readingprogress/internal/progress")
	}
	a.hub = progress.NewHub(hubCfg, hubSinks...)

	w, err := widget.New(c.Page, a.hub, widget.Config{Options: opts, Logger: logger.Named("tracker")})
	if err != nil {
		_ = a.release(ctx)
		return nil, fmt.Errorf("start widget: %w", err)
	}
	a.widget = w

	if cfg.Server.Enabled {
		httpMetrics, err := metrics.NewHTTP(a.registry)
		if err != nil {
			_ = a.release(ctx)
			return nil, err
		}
		serverOpts := []api.Option{
			api.WithHTTPMetrics(httpMetrics),
			api.WithRescanLimiter(ratelimit.New(ratelimit.Config{
				RPS:   cfg.Server.RescanRPS,
				Burst: cfg.Server.RescanBurst,
			})),
		}
		if c.Viewport != nil {
			serverOpts = append(serverOpts, api.WithViewport(c.Viewport))
		}
		a.apiServer = api.NewServer(w, a.broadcaster, a.registry, logger.Named("api"), serverOpts...)
	}

	logger.Info("application assembled",
		zap.String("url", cfg.Page.URL),
		zap.Int("renderers", len(c.Painters)),
		zap.Bool("server", cfg.Server.Enabled),
		zap.String("session", w.Session().String()),
	)
	return a, nil
}

// Widget returns the tracking session.
func (a *App) Widget() *widget.Widget {
	return a.widget
}

// Handler returns the API handler, or nil when the server is disabled.
func (a *App) Handler() http.Handler {
	if a.apiServer == nil {
		return nil
	}
	return a.apiServer.Handler()
}

// Run blocks until ctx is canceled or the process is signaled, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if a.apiServer != nil {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	if a.cfg.AutoScroll.Enabled && a.components.Scroller != nil {
		go func() {
			err := a.components.Scroller.AutoScroll(ctx, a.cfg.AutoScroll.Step, a.cfg.AutoScroll.Interval)
			if err != nil {
				a.logger.Warn("autoscroll stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
	return a.Close(shutdownCtx)
}

// Close stops tracking, flushes the hub and its sinks, then releases the page.
func (a *App) Close(ctx context.Context) error {
	errs := []error{a.release(ctx)}
	if a.components.Close != nil {
		if err := a.components.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// release shuts down everything Assemble started, leaving the page open.
func (a *App) release(ctx context.Context) error {
	var errs []error
	if a.widget != nil {
		if err := a.widget.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

func closeSinks(ctx context.Context, s []progress.Sink) {
	for _, sink := range s {
		_ = sink.Close(ctx)
	}
}
