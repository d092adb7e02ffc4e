// Package schedule runs periodic maintenance tasks on robfig/cron.
//
//	s := schedule.New()
//	s.Add("gauges", schedule.Every(time.Minute), refreshGauges)
//	s.Add("nightly", "0 3 * * *", cleanup)
//	s.Start(ctx)
//	defer s.Stop(ctx)
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shashiranjanraj/filebot/pkg/logger"
)

// Task receives a context that is cancelled when the scheduler stops.
type Task func(ctx context.Context)

// Every returns a spec that fires at a fixed interval.
func Every(d time.Duration) string { return "@every " + d.String() }

// Scheduler wraps a cron.Cron whose jobs recover from panics and never
// overlap with themselves.
type Scheduler struct {
	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	names map[string]cron.EntryID
}

func New() *Scheduler {
	l := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		ctx:    ctx,
		cancel: cancel,
		names:  map[string]cron.EntryID{},
	}
}

// Add registers task under a unique name. spec is a five-field cron
// expression or a descriptor such as "@hourly" or Every(d).
func (s *Scheduler) Add(name, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.names[name]; dup {
		return fmt.Errorf("schedule: task %q already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		task(s.ctx)
		logger.Debug("schedule: task finished", "task", name, "duration_ms", time.Since(start).Milliseconds())
	})
	if err != nil {
		return fmt.Errorf("schedule: task %q: %w", name, err)
	}
	s.names[name] = id
	return nil
}

// Tasks lists registered task names with their next run time.
func (s *Scheduler) Tasks() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.names))
	for name, id := range s.names {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// Names returns the registered task names in order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.names))
	for name := range s.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start begins dispatching in the background.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	logger.Info("schedule: scheduler started", "tasks", len(s.Names()))
	return nil
}

// Stop prevents new runs, cancels running tasks and waits for them
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		logger.Info("schedule: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("schedule: stop: %w", ctx.Err())
	}
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("schedule: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("schedule: "+msg, append(keysAndValues, "error", err)...)
}
