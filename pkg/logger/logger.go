// Package logger provides the process-wide structured logger built on
// log/slog.
//
// WithCtx returns a logger that already carries the request ID, so every
// line written while serving a request or processing a Telegram update is
// correlated:
//
//	log := logger.WithCtx(ctx)
//	log.Info("file stored", "file_unique_id", f.FileUniqueID)
//	// → time=... level=INFO msg="file stored" request_id=a1b2c3d4 file_unique_id=AgAD...
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/shashiranjanraj/filebot/config"
)

var (
	mu sync.RWMutex
	L  *slog.Logger
)

func init() {
	L = New(os.Stdout, config.AppEnv())
	slog.SetDefault(L)
}

// New builds a logger for env: JSON for production, text otherwise.
func New(w io.Writer, env string) *slog.Logger {
	return slog.New(newHandler(w, env))
}

func newHandler(w io.Writer, env string) slog.Handler {
	switch env {
	case "production", "prod":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
}

// SetHandler swaps the handler behind L (for example to fan out into
// MongoDB). The previous logger is returned so callers can restore it.
func SetHandler(h slog.Handler) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	prev := L
	L = slog.New(h)
	slog.SetDefault(L)
	return prev
}

// Restore puts back a logger returned by SetHandler.
func Restore(prev *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	L = prev
	slog.SetDefault(prev)
}

// Base returns the current process logger.
func Base() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return L
}

// ─────────────────────────────────────────────
// Context-aware logger
// ─────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the logger stored in ctx by InjectLogger, or the base
// logger when there is none.
func WithCtx(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
			return log
		}
	}
	return Base()
}

// InjectLogger stores a pre-tagged *slog.Logger into ctx.
// Called by the Logger middleware and the update dispatcher.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// ─────────────────────────────────────────────
// Short-hand helpers (use base logger)
// ─────────────────────────────────────────────

func Debug(msg string, args ...any) { Base().Debug(msg, args...) }
func Info(msg string, args ...any)  { Base().Info(msg, args...) }
func Warn(msg string, args ...any)  { Base().Warn(msg, args...) }
func Error(msg string, args ...any) { Base().Error(msg, args...) }
