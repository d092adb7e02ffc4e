package app

import (
	"net/http"

	"github.com/shashiranjanraj/filebot/pkg/metrics"
	"github.com/shashiranjanraj/filebot/pkg/middleware"
	"github.com/shashiranjanraj/filebot/pkg/reqid"
	"github.com/shashiranjanraj/filebot/pkg/response"
	"github.com/shashiranjanraj/filebot/pkg/router"
)

// buildHandler assembles the router. Global middleware, outermost first:
//
//  1. Prometheus metrics (total latency, including recovery)
//  2. Recovery (panics become 500s)
//  3. Request ID
//  4. Logger (request_id tagged access log)
//  5. Application middleware (Use)
func (a *Application) buildHandler() http.Handler {
	r := router.New()

	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(a.middlewares...)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { response.NotFound(w) })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/metrics", "metrics", metrics.Handler())

	for _, fn := range a.routesFns {
		fn(r)
	}

	return r.Handler()
}
