package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/filebot/app/controllers"
	"github.com/shashiranjanraj/filebot/config"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
	"github.com/shashiranjanraj/filebot/pkg/telegram/telegramtest"
	"github.com/shashiranjanraj/filebot/pkg/workerpool"
)

func TestWebAppIsSingleton(t *testing.T) {
	a := WebApp()
	require.NotNil(t, a)
	assert.Same(t, a, WebApp())
	assert.Same(t, a, Instance().App())
}

func TestWebAppRoutes(t *testing.T) {
	var names []string
	for _, ri := range New().App().RouteList() {
		names = append(names, ri.Name)
	}
	assert.ElementsMatch(t, []string{
		"telegram.webhook",
		"health.live",
		"health.ready",
		"files.download",
		"admin.stats",
		"admin.files",
		"admin.broadcast",
		"admin.broadcasts.show",
		"ws.events",
	}, names)
}

func TestUnavailableBeforeStartup(t *testing.T) {
	w := httptest.NewRecorder()
	New().App().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStartupRequiresToken(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	config.Set("TELEGRAM_TOKEN", "")

	a := New().App()
	err := a.Startup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN")
	assert.False(t, a.Ready())
	assert.NoError(t, a.Shutdown(context.Background()))
}

type countingHandler struct {
	mu  sync.Mutex
	ids []int
}

func (h *countingHandler) HandleUpdate(_ context.Context, u tgbotapi.Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, u.UpdateID)
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ids)
}

func TestPollerDeliversUpdates(t *testing.T) {
	fake := telegramtest.New()
	tg := telegram.NewWithClient(fake, "files_bot", nil)
	h := &countingHandler{}

	p := &poller{
		tg:      func() *telegram.Bot { return tg },
		handler: func() controllers.UpdateHandler { return h },
		timeout: 1,
		workers: 2,
	}
	require.NoError(t, p.start(context.Background()))

	for i := 1; i <= 3; i++ {
		fake.Push(tgbotapi.Update{UpdateID: i})
	}
	assert.Eventually(t, func() bool { return h.count() == 3 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.stop(ctx))

	calls := fake.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "deleteWebhook", calls[0].Method)
}

// blockingHandler holds every update until its context is cancelled.
type blockingHandler struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (h *blockingHandler) HandleUpdate(ctx context.Context, _ tgbotapi.Update) error {
	close(h.started)
	<-ctx.Done()
	close(h.cancelled)
	return ctx.Err()
}

func TestPollerStopTimeoutCancelsHandlers(t *testing.T) {
	fake := telegramtest.New()
	tg := telegram.NewWithClient(fake, "files_bot", nil)
	h := &blockingHandler{started: make(chan struct{}), cancelled: make(chan struct{})}

	p := &poller{
		tg:      func() *telegram.Bot { return tg },
		handler: func() controllers.UpdateHandler { return h },
		timeout: 1,
		workers: 1,
	}
	require.NoError(t, p.start(context.Background()))

	fake.Push(tgbotapi.Update{UpdateID: 1})
	<-h.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.stop(ctx), context.DeadlineExceeded)

	select {
	case <-h.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight handler was not cancelled")
	}
	assert.Eventually(t, func() bool {
		return errors.Is(p.pool.Submit(func() {}), workerpool.ErrPoolClosed)
	}, 2*time.Second, 10*time.Millisecond)
}
