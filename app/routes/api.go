// Package routes mounts the HTTP surface of the bot.
package routes

import (
	"net/http"

	"github.com/shashiranjanraj/filebot/app/controllers"
	"github.com/shashiranjanraj/filebot/pkg/middleware"
	"github.com/shashiranjanraj/filebot/pkg/router"
)

// Handlers are the controllers behind the routes. Events may be nil.
type Handlers struct {
	Webhook *controllers.WebhookController
	Files   *controllers.FileController
	Admin   *controllers.AdminController
	Health  *controllers.HealthController
	Events  http.Handler
}

type Options struct {
	WebhookSecret string
	IsAdmin       func(int64) bool
	// Limiter throttles every route except the webhook. nil disables it.
	Limiter *middleware.RateLimiter
}

// RegisterAPI mounts every route. The webhook sits outside the rate
// limited group since all Telegram traffic comes from a handful of IPs.
func RegisterAPI(r *router.Router, h Handlers, opts Options) {
	r.Post("/telegram/webhook", "telegram.webhook", h.Webhook.Handle, middleware.WebhookSecret(opts.WebhookSecret))

	var limited *router.Group
	if opts.Limiter != nil {
		limited = r.Group("", opts.Limiter.Handler)
	} else {
		limited = r.Group("")
	}

	limited.Get("/healthz", "health.live", h.Health.Live)
	limited.Get("/readyz", "health.ready", h.Health.Ready)
	limited.Get("/file/{id}", "files.download", h.Files.Download)

	admin := middleware.AdminAuth(opts.IsAdmin)
	api := limited.Group("/api", admin)
	api.Get("/stats", "admin.stats", h.Admin.Stats)
	api.Get("/files", "admin.files", h.Admin.Files)
	api.Post("/broadcast", "admin.broadcast", h.Admin.Broadcast)
	api.Get("/broadcasts/{id}", "admin.broadcasts.show", h.Admin.ShowBroadcast)

	if h.Events != nil {
		limited.Get("/ws/events", "ws.events", h.Events.ServeHTTP, admin)
	}
}
