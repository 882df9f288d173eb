// Package app composes the config, registry, metrics, engine, and HTTP
// layers into a single runnable unit with an ordered Start/Stop
// lifecycle, grounded directly on the teacher's internal/app.App (New/
// initializeComponents/Start/Stop/Run), trimmed to the components this
// domain actually has: no sinks, no position manager, no enterprise
// feature set — config, metrics store, HTTP surface, and either a
// single-file driver run or a watch-mode daemon.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tagflow/tagflow/internal/breaker"
	"github.com/tagflow/tagflow/internal/config"
	"github.com/tagflow/tagflow/internal/dedup"
	"github.com/tagflow/tagflow/internal/driver"
	"github.com/tagflow/tagflow/internal/engine"
	"github.com/tagflow/tagflow/internal/httpapi"
	"github.com/tagflow/tagflow/internal/metrics"
	"github.com/tagflow/tagflow/internal/queue"
	"github.com/tagflow/tagflow/internal/registry"
	_ "github.com/tagflow/tagflow/internal/stages"
	"github.com/tagflow/tagflow/internal/tracing"
	"github.com/sirupsen/logrus"
)

// Mode selects whether the app drives a single file/stream once, or
// runs the file-queue daemon until stopped.
type Mode int

const (
	// ModeSingle processes one input to completion and exits.
	ModeSingle Mode = iota
	// ModeWatch runs the file-queue daemon (spec.md §4.6).
	ModeWatch
)

// Config collects everything App.New needs beyond the pipeline config
// document itself.
type Config struct {
	ConfigFile string
	Mode       Mode

	// ModeSingle fields.
	InputPath  string
	OutputPath string

	// ModeWatch fields.
	QueueDirs queue.Dirs

	HTTPAddr     string // empty disables the HTTP surface
	TraceEnabled bool
	LogLevel     string
}

// App is the top-level runnable unit: one validated Graph, one shared
// metrics Store, an optional HTTP surface, and a driver or daemon loop.
type App struct {
	cfg    Config
	logger *logrus.Logger

	graph  *config.Graph
	store  *metrics.Store
	tracer *tracing.Manager

	httpServer *http.Server
	dedupCache *dedup.Cache
	breaker    *breaker.PerName

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads and validates the pipeline config, and wires up the
// metrics store, tracer, and (if configured) HTTP server. It does not
// start anything yet — call Start or Run for that.
func New(cfg Config) (*App, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	doc, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	graph, warnings, err := config.Build(doc, registry.Default)
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	store := metrics.New(metrics.WithTraceEnabled(cfg.TraceEnabled))

	var tracer *tracing.Manager
	if cfg.TraceEnabled {
		tracer, err = tracing.Discard()
		if err != nil {
			return nil, fmt.Errorf("initializing tracer: %w", err)
		}
		tracer.Global()
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		logger:     logger,
		graph:      graph,
		store:      store,
		tracer:     tracer,
		dedupCache: dedup.New(1000),
		breaker:    breaker.New(breaker.Config{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.HTTPAddr != "" {
		server := httpapi.New(store, graph, logger)
		a.httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: server.Handler()}
	}

	return a, nil
}

// newEngine builds a fresh Engine bound to the app's graph and shared
// metrics/tracer, suitable for one file's worth of work.
func (a *App) newEngine() *engine.Engine {
	maxHops := config.MaxHops()
	return engine.New(a.graph, maxHops, a.store, a.tracer, a.logger)
}

// Start launches the HTTP server (if configured) in the background.
// The driver/daemon work itself happens in Run, matching the teacher's
// separation between background services (Start) and the blocking main
// loop (Run).
func (a *App) Start() error {
	if a.httpServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.httpServer.Addr).Info("starting HTTP server")
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("HTTP server error")
			}
		}()
	}
	return nil
}

// Stop shuts down the HTTP server and tracer, waiting for the HTTP
// goroutine to exit.
func (a *App) Stop() error {
	a.cancel()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("HTTP server shutdown error")
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("tracer shutdown error")
		}
	}
	a.wg.Wait()
	return nil
}

// RunOnce drives a single input through a fresh Engine in ModeSingle,
// returning any fatal engine error.
func (a *App) RunOnce() error {
	in, err := driver.OpenInput(a.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer in.Close()
	out, err := driver.OpenOutput(a.cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("opening output: %w", err)
	}
	defer out.Close()

	return driver.Run(a.ctx, a.newEngine(), in, out, a.logger)
}

// RunWatch runs the file-queue daemon until the app's context is
// cancelled by Stop.
func (a *App) RunWatch() error {
	d := queue.New(a.cfg.QueueDirs, a.newEngine, a.store, a.logger,
		queue.WithDedup(a.dedupCache),
		queue.WithBreaker(a.breaker),
	)
	if err := d.Recover(); err != nil {
		return fmt.Errorf("recovering stranded files: %w", err)
	}
	return d.Run(a.ctx)
}

// Run starts the app, blocks running the configured Mode until either
// the work completes (ModeSingle) or a shutdown signal arrives
// (ModeWatch), then stops cleanly.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	defer a.Stop()

	switch a.cfg.Mode {
	case ModeWatch:
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		errChan := make(chan error, 1)
		go func() { errChan <- a.RunWatch() }()
		select {
		case <-sigChan:
			a.logger.Info("shutdown signal received")
			return nil
		case err := <-errChan:
			return err
		}
	default:
		return a.RunOnce()
	}
}
