package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	applogger "MempoolOracle/pkg/logger"
)

// Pipeline is the long-running core started after the HTTP surface.
type Pipeline interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// HTTPServer is the outer surface; Start must fail fast on bind errors.
type HTTPServer interface {
	Start() error
	Errors() <-chan error
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	pipeline        Pipeline
	http            HTTPServer
	closers         []namedCloser
	shutdownTimeout time.Duration
}

type namedCloser struct {
	name string
	c    io.Closer
}

type AppOption func(*App)

// WithCloser adds an infrastructure client closed last, in registration
// order.
func WithCloser(name string, c io.Closer) AppOption {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

func WithShutdownTimeout(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// New creates a new App instance with all dependencies.
func New(log *applogger.Logger, pipeline Pipeline, httpServer HTTPServer, opts ...AppOption) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{
		log:             log,
		pipeline:        pipeline,
		http:            httpServer,
		shutdownTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve runs until ctx is done or the HTTP server fails, then shuts down.
// A failure to bind is returned before the pipeline starts.
func (a *App) Serve(ctx context.Context) error {
	if err := a.http.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.closeAll()
		return err
	}

	// the pipeline outlives ctx; shutdown drives its teardown
	if err := a.pipeline.Start(context.WithoutCancel(ctx)); err != nil {
		a.log.Error("pipeline start error", applogger.Error(err))
		stopCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		_ = a.http.Stop(stopCtx)
		a.closeAll()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.http.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}

	if err := a.shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// shutdown stops the pipeline first so in-flight estimates are flushed,
// then the HTTP server, then infrastructure clients.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.pipeline.Shutdown(ctx); err != nil {
		a.log.Warn("pipeline shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.closeAll()
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAll() {
	// flush aggregated logs while the producer is still open
	a.log.RemoveCollector()
	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("client", nc.name), applogger.Error(err))
		}
	}
}
