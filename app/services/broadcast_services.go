package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/pkg/event"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
	"github.com/shashiranjanraj/filebot/pkg/workerpool"
)

// BroadcastService fans an admin message out to every active user.
type BroadcastService struct {
	users      UserStore
	broadcasts BroadcastStore
	bot        *telegram.Bot
	jobs       Dispatcher
	events     *event.Bus
	rate       int
	workers    int
}

// NewBroadcastService paces sends at perSecond messages using workers
// goroutines. Telegram allows roughly 30 messages per second per bot.
func NewBroadcastService(users UserStore, broadcasts BroadcastStore, bot *telegram.Bot, jobs Dispatcher, events *event.Bus, perSecond, workers int) *BroadcastService {
	if perSecond < 1 {
		perSecond = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &BroadcastService{
		users:      users,
		broadcasts: broadcasts,
		bot:        bot,
		jobs:       jobs,
		events:     events,
		rate:       perSecond,
		workers:    workers,
	}
}

// Create records a broadcast and queues it for delivery.
func (s *BroadcastService) Create(ctx context.Context, adminID int64, text string) (*models.Broadcast, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyBroadcast
	}

	b := &models.Broadcast{
		ID:          uuid.NewString(),
		Text:        text,
		RequestedBy: adminID,
		State:       models.BroadcastQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.broadcasts.Create(ctx, b); err != nil {
		return nil, err
	}
	if err := s.jobs.Dispatch(ctx, &BroadcastJob{BroadcastID: b.ID}); err != nil {
		return nil, fmt.Errorf("broadcast: enqueue %s: %w", b.ID, err)
	}

	s.events.Fire(event.BroadcastQueued, b)
	logger.WithCtx(ctx).Info("broadcast: queued", "broadcast_id", b.ID, "admin_id", adminID)
	return b, nil
}

func (s *BroadcastService) Get(ctx context.Context, id string) (*models.Broadcast, error) {
	return s.broadcasts.Find(ctx, id)
}

// Run delivers a queued broadcast. It is called by BroadcastJob.
//
// Delivery is at most once: only the run that moves the record out of
// queued sends anything. Queue retries and redelivered jobs find it
// claimed and return nil.
func (s *BroadcastService) Run(ctx context.Context, id string) error {
	b, err := s.broadcasts.Find(ctx, id)
	if err != nil {
		return err
	}
	if b.State != models.BroadcastQueued {
		return nil
	}

	log := logger.WithCtx(ctx).With("broadcast_id", id)
	claimed, err := s.broadcasts.MarkRunning(ctx, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("broadcast: already claimed")
		return nil
	}
	log.Info("broadcast: started")

	res, runErr := s.fanOut(ctx, b.Text)

	state, errMsg := models.BroadcastDone, ""
	if runErr != nil {
		state, errMsg = models.BroadcastFailed, runErr.Error()
	}

	// The worker context may be cancelled by shutdown; the final state
	// is still written.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.broadcasts.Finish(finishCtx, id, state, res, errMsg, time.Now().UTC()); err != nil {
		// Messages are already out; a retry would send them again.
		log.Error("broadcast: final state not saved", "state", state, "error", err)
	}

	log.Info("broadcast: finished", "state", state, "total", res.Total, "sent", res.Sent,
		"failed", res.Failed, "blocked", res.Blocked)

	summary := fmt.Sprintf("Broadcast %s: %d sent, %d failed, %d blocked (of %d).",
		state, res.Sent, res.Failed, res.Blocked, res.Total)
	if err := s.bot.SendText(b.RequestedBy, summary, nil); err != nil {
		log.Warn("broadcast: summary not delivered", "error", err)
	}

	b.State, b.Total, b.Sent, b.Failed, b.Blocked, b.Error = state, res.Total, res.Sent, res.Failed, res.Blocked, errMsg
	s.events.Fire(event.BroadcastFinished, b)
	return nil
}

// fanOut streams active users into a worker pool. Sends share one rate
// limiter so the pool size only bounds concurrency, not throughput.
func (s *BroadcastService) fanOut(ctx context.Context, text string) (models.BroadcastResult, error) {
	var (
		mu  sync.Mutex
		res models.BroadcastResult
	)
	limiter := rate.NewLimiter(rate.Limit(s.rate), 1)
	pool := workerpool.New(s.workers, workerpool.WithPanicHandler(func(v any) {
		logger.WithCtx(ctx).Error("broadcast: send panicked", "panic", v)
		mu.Lock()
		res.Failed++
		mu.Unlock()
	}))

	err := s.users.EachActive(ctx, func(userID int64) error {
		mu.Lock()
		res.Total++
		mu.Unlock()

		return pool.SubmitWait(ctx, func() {
			outcome := s.deliver(ctx, limiter, userID, text)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case "ok":
				res.Sent++
			case "blocked":
				res.Blocked++
			default:
				res.Failed++
			}
		})
	})
	pool.Shutdown()

	// Users streamed but never submitted count as failed.
	mu.Lock()
	defer mu.Unlock()
	if missing := res.Total - res.Sent - res.Failed - res.Blocked; missing > 0 {
		res.Failed += missing
	}
	return res, err
}

// deliver sends one message and reports "ok", "blocked" or "failed".
// A 429 is retried once after the requested delay.
func (s *BroadcastService) deliver(ctx context.Context, limiter *rate.Limiter, userID int64, text string) string {
	for attempt := 0; attempt < 2; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return s.count("failed")
		}

		err := s.bot.SendText(userID, text, nil)
		switch {
		case err == nil:
			return s.count("ok")
		case telegram.IsBlocked(err):
			if err := s.users.MarkBlocked(ctx, userID); err != nil {
				logger.WithCtx(ctx).Warn("broadcast: mark blocked", "user_id", userID, "error", err)
			}
			return s.count("blocked")
		}

		wait, limited := telegram.RetryAfter(err)
		if !limited || attempt > 0 {
			logger.WithCtx(ctx).Debug("broadcast: send failed", "user_id", userID, "error", err)
			return s.count("failed")
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return s.count("failed")
		}
	}
	return s.count("failed")
}

func (s *BroadcastService) count(result string) string {
	metrics.MessagesSent.WithLabelValues(result).Inc()
	return result
}
