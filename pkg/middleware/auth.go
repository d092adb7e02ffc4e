package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/shashiranjanraj/filebot/pkg/auth"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/response"
)

// TelegramSecretHeader carries the secret_token registered with setWebhook.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type adminKey struct{}

// AdminIDFromCtx returns the Telegram id of the authenticated admin.
func AdminIDFromCtx(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(adminKey{}).(int64)
	return id, ok
}

// AdminAuth accepts a bearer token (or ?token= for websocket clients that
// cannot set headers) with role admin whose subject isAdmin approves.
func AdminAuth(isAdmin func(int64) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				response.Unauthorized(w)
				return
			}

			claims, err := auth.ValidateToken(token)
			if err != nil {
				logger.WithCtx(r.Context()).Debug("admin token rejected", "error", err)
				response.Unauthorized(w)
				return
			}

			id, _ := claims.TelegramID()
			if claims.Role != auth.RoleAdmin || !isAdmin(id) {
				response.Forbidden(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, id)))
		})
	}
}

// WebhookSecret rejects webhook calls whose secret header does not match.
// An empty secret disables the check.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			logger.Warn("WEBHOOK_SECRET not set: webhook requests are not authenticated")
			return next
		}
		want := []byte(secret)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(TelegramSecretHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				response.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
