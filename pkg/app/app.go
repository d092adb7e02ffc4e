// Package app provides the Application handle: the single long-lived
// http.Handler a process serves, together with the startup and shutdown
// hooks that own its resources.
//
//	webApp := app.New("filebot").
//	    Component("mongo", db.Connect, db.Disconnect).
//	    OnStartup("indexes", repos.EnsureIndexes).
//	    Routes(func(r *router.Router) { ... })
//
//	if err := webApp.Startup(ctx); err != nil { ... } // before listening
//	http.Serve(ln, webApp)
//	webApp.Shutdown(ctx)                              // after draining
//
// Startup and Shutdown each run at most once. Components are started in
// registration order and stopped in reverse; a component that failed to
// start is not stopped, but everything started before it is.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/response"
	"github.com/shashiranjanraj/filebot/pkg/router"
)

// HookFunc is a startup or shutdown hook.
type HookFunc func(ctx context.Context) error

// ErrStopped is returned by Startup once Shutdown has run.
var ErrStopped = errors.New("app: application already shut down")

const (
	stateNew int32 = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
)

type component struct {
	name  string
	start HookFunc
	stop  HookFunc
}

// Application is the process-wide request handler. Build one with New,
// register components and routes, then Startup before serving.
type Application struct {
	name        string
	components  []component
	routesFns   []func(*router.Router)
	middlewares []router.Middleware

	state   atomic.Int32
	handler atomic.Value // http.Handler

	mu      sync.Mutex
	started []component

	startOnce sync.Once
	startErr  error
	stopOnce  sync.Once
	stopErr   error
}

// New creates an Application named name (used in logs).
func New(name string) *Application {
	return &Application{name: name}
}

func (a *Application) Name() string { return a.name }

// Component registers a resource with a start and a stop hook. Either may
// be nil.
func (a *Application) Component(name string, start, stop HookFunc) *Application {
	a.components = append(a.components, component{name: name, start: start, stop: stop})
	return a
}

// OnStartup registers a hook run once before the first request.
func (a *Application) OnStartup(name string, fn HookFunc) *Application {
	return a.Component(name, fn, nil)
}

// OnShutdown registers a hook run once after the last request.
func (a *Application) OnShutdown(name string, fn HookFunc) *Application {
	return a.Component(name, nil, fn)
}

// Use appends middleware applied to every route, inside the default stack.
func (a *Application) Use(mw ...router.Middleware) *Application {
	a.middlewares = append(a.middlewares, mw...)
	return a
}

// Routes registers a route-registration callback. Callbacks run during
// Startup, after every component has started, in registration order.
func (a *Application) Routes(fn func(*router.Router)) *Application {
	a.routesFns = append(a.routesFns, fn)
	return a
}

// RouteList builds the router without starting anything and returns its
// named routes.
func (a *Application) RouteList() []router.RouteInfo {
	r := router.New()
	for _, fn := range a.routesFns {
		fn(r)
	}
	return r.Routes()
}

// Ready reports whether Startup completed and Shutdown has not begun.
func (a *Application) Ready() bool {
	return a.state.Load() == stateRunning
}

// ServeHTTP dispatches to the routed handler. Requests arriving before
// Startup completes or after Shutdown begins get 503.
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, _ := a.handler.Load().(http.Handler)
	if h == nil || a.state.Load() != stateRunning {
		w.Header().Set("Retry-After", "5")
		response.Unavailable(w, "Service Unavailable")
		return
	}
	h.ServeHTTP(w, r)
}

// Startup runs every start hook once. On failure, components already
// started are stopped and the error is returned; later calls return the
// same result.
func (a *Application) Startup(ctx context.Context) error {
	a.startOnce.Do(func() {
		a.startErr = a.start(ctx)
	})
	return a.startErr
}

func (a *Application) start(ctx context.Context) error {
	if !a.state.CompareAndSwap(stateNew, stateStarting) {
		return ErrStopped
	}
	log := logger.Base().With("app", a.name)

	for _, c := range a.components {
		if c.start != nil {
			if err := safeHook(ctx, c.start); err != nil {
				log.Error("startup hook failed", "hook", c.name, "error", err)
				a.stopOnce.Do(func() {
					a.stopErr = a.stopStarted(context.WithoutCancel(ctx), log)
					a.state.Store(stateStopped)
				})
				return fmt.Errorf("app: start %s: %w", c.name, err)
			}
			log.Debug("started", "hook", c.name)
		}
		a.mu.Lock()
		a.started = append(a.started, c)
		a.mu.Unlock()
	}

	a.handler.Store(a.buildHandler())
	a.state.Store(stateRunning)
	log.Info("application ready", "components", len(a.components))
	return nil
}

// Shutdown runs the stop hook of every started component once, in reverse
// order. Hook errors are logged and joined; every hook still runs.
func (a *Application) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.state.Store(stateStopping)
		a.stopErr = a.stopStarted(ctx, logger.Base().With("app", a.name))
		a.state.Store(stateStopped)
	})
	return a.stopErr
}

func (a *Application) stopStarted(ctx context.Context, log *slog.Logger) error {
	a.mu.Lock()
	started := a.started
	a.started = nil
	a.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		if c.stop == nil {
			continue
		}
		if err := safeHook(ctx, c.stop); err != nil {
			log.Error("shutdown hook failed", "hook", c.name, "error", err)
			errs = append(errs, fmt.Errorf("app: stop %s: %w", c.name, err))
			continue
		}
		log.Debug("stopped", "hook", c.name)
	}
	return errors.Join(errs...)
}

// safeHook runs fn, converting a panic into an error.
func safeHook(ctx context.Context, fn HookFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}
