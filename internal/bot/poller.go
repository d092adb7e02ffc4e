package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shashiranjanraj/filebot/app/controllers"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
	"github.com/shashiranjanraj/filebot/pkg/workerpool"
)

// poller pulls updates with getUpdates instead of receiving webhooks.
type poller struct {
	// tg and handler are resolved at start; both are built by earlier
	// startup hooks.
	tg      func() *telegram.Bot
	handler func() controllers.UpdateHandler
	timeout int
	workers int

	pool     *workerpool.Pool
	cancel   context.CancelFunc // aborts in-flight handlers
	stopLoop context.CancelFunc // stops taking new updates
	done     chan struct{}
	once     sync.Once
}

func (p *poller) start(context.Context) error {
	tg := p.tg()
	// getUpdates is refused while a webhook is registered.
	if err := tg.DeleteWebhook(false); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	loopCtx, stopLoop := context.WithCancel(ctx)
	p.cancel, p.stopLoop = cancel, stopLoop
	p.pool = workerpool.New(p.workers, workerpool.WithPanicHandler(func(v any) {
		logger.Error("poller: update handler panicked", "panic", v)
	}))
	p.done = make(chan struct{})

	go p.loop(loopCtx, ctx, p.handler(), tg.Updates(p.timeout))
	logger.Info("poller: receiving updates", "bot", tg.Username())
	return nil
}

// loop feeds updates to the pool until loopCtx ends or the channel
// closes. Handlers run with ctx, which outlives loopCtx so in-flight
// updates can finish during shutdown.
func (p *poller) loop(loopCtx, ctx context.Context, handler controllers.UpdateHandler, updates tgbotapi.UpdatesChannel) {
	defer close(p.done)
	for {
		var u tgbotapi.Update
		select {
		case <-loopCtx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			u = next
		}

		err := p.pool.SubmitWait(loopCtx, func() {
			if err := handler.HandleUpdate(ctx, u); err != nil {
				logger.WithCtx(ctx).Error("poller: update failed", "update_id", u.UpdateID, "error", err)
			}
		})
		if err != nil {
			return
		}
	}
}

// stop stops polling, then waits for in-flight updates until ctx is done.
// On timeout the handlers' context is cancelled and the pool finishes
// draining in the background.
func (p *poller) stop(ctx context.Context) error {
	p.once.Do(func() {
		p.tg().StopUpdates()
		p.stopLoop()
	})

	drained := make(chan struct{})
	go func() {
		<-p.done
		p.pool.Shutdown()
		close(drained)
	}()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
