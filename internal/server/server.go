// Package server binds the Application handle to a TCP listener and owns
// the process lifecycle around it: startup hooks before accepting
// connections, graceful drain and shutdown hooks on cancellation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shashiranjanraj/filebot/pkg/logger"
)

// Handle is what the server serves.
type Handle interface {
	http.Handler
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Options tunes the http.Server.
type Options struct {
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 15 * time.Second
	}
	if o.ReadHeaderTimeout <= 0 {
		o.ReadHeaderTimeout = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 120 * time.Second
	}
	return o
}

// Run starts h, listens on addr and serves until ctx is cancelled.
// A startup failure is returned before the port is bound.
func Run(ctx context.Context, h Handle, addr string, opts Options) error {
	if err := h.Startup(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		shutdownHandle(h, opts.withDefaults().ShutdownTimeout)
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return serve(ctx, h, ln, opts)
}

// Serve is Run on an existing listener. Startup is still performed first.
func Serve(ctx context.Context, h Handle, ln net.Listener, opts Options) error {
	if err := h.Startup(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	return serve(ctx, h, ln, opts)
}

func serve(ctx context.Context, h Handle, ln net.Listener, opts Options) error {
	opts = opts.withDefaults()

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested", "reason", context.Cause(ctx))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: serve: %w", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Warn("drain incomplete, closing connections", "error", err)
		_ = srv.Close()
	}

	shutdownHandle(h, opts.ShutdownTimeout)
	if serveErr == nil {
		logger.Info("server stopped")
	}
	return serveErr
}

// shutdownHandle runs the shutdown hooks; their failures are logged only.
func shutdownHandle(h Handle, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		logger.Error("shutdown hooks reported errors", "error", err)
	}
}
