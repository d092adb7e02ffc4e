// Package queue runs background jobs outside the request that created them.
//
// Jobs are JSON encoded, tagged with a registered name and pushed onto a
// Driver. Workers pop, decode and run them with retries:
//
//	type MirrorJob struct{ FileUniqueID string }
//	func (MirrorJob) JobName() string { return "files.mirror" }
//	func (j *MirrorJob) Handle(ctx context.Context) error { ... }
//
//	q := queue.New(queue.NewMemoryDriver(100))
//	q.Register("files.mirror", func() queue.Job { return &MirrorJob{} })
//	q.Start(2)
//	q.Dispatch(ctx, &MirrorJob{FileUniqueID: id})
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
)

// Job is the interface every queued job must satisfy.
type Job interface {
	// Handle executes the job. Return a non-nil error to signal failure.
	Handle(ctx context.Context) error
}

// Named lets a job choose its registry name. Jobs without it are named
// after their Go type.
type Named interface {
	JobName() string
}

// Driver is the queue storage backend.
type Driver interface {
	Push(ctx context.Context, payload []byte) error
	// Pop waits for the next payload. A nil payload with a nil error
	// means nothing arrived before the driver's poll timeout.
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// FailedJob holds information about a job that exhausted its retries.
type FailedJob struct {
	Type     string          `json:"type" bson:"type"`
	Payload  json.RawMessage `json:"payload" bson:"payload"`
	Error    string          `json:"error" bson:"error"`
	Attempts int             `json:"attempts" bson:"attempts"`
	FailedAt time.Time       `json:"failed_at" bson:"failed_at"`
}

// FailedStore persists failed jobs for later inspection.
type FailedStore interface {
	SaveFailed(ctx context.Context, job FailedJob) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRetry sets how many attempts a job gets. Values below one mean one.
func WithMaxRetry(n int) Option {
	return func(m *Manager) {
		if n < 1 {
			n = 1
		}
		m.maxRetry = n
	}
}

// WithBackoff sets the pause after failed attempt n (1-based).
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(m *Manager) { m.backoff = fn }
}

// WithFailedStore persists exhausted jobs in addition to keeping them in memory.
func WithFailedStore(s FailedStore) Option {
	return func(m *Manager) { m.store = s }
}

// Manager dispatches jobs and runs the workers that process them.
type Manager struct {
	driver   Driver
	store    FailedStore
	maxRetry int
	backoff  func(int) time.Duration

	mu       sync.RWMutex
	registry map[string]func() Job
	failed   []FailedJob

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(d Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:   d,
		maxRetry: 3,
		backoff:  func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
		registry: map[string]func() Job{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register makes a job type available for decoding by name.
func (m *Manager) Register(name string, factory func() Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = factory
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatch pushes job onto the queue.
func (m *Manager) Dispatch(ctx context.Context, job Job) error {
	typeName := nameOf(job)

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", typeName, err)
	}

	env, err := json.Marshal(envelope{Type: typeName, Payload: payload})
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}

	if err := m.driver.Push(ctx, env); err != nil {
		return fmt.Errorf("queue: push %s: %w", typeName, err)
	}
	return nil
}

func nameOf(job Job) string {
	if n, ok := job.(Named); ok {
		return n.JobName()
	}
	return fmt.Sprintf("%T", job)
}

// Start launches n workers. They run until Stop is called.
func (m *Manager) Start(n int) {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(n)
	for i := 0; i < n; i++ {
		go m.work(ctx)
	}
	logger.Info("queue: workers started", "count", n)
}

// Stop cancels the workers and waits for in-flight jobs until ctx is done.
// A job interrupted by Stop sees its context cancelled.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("queue: stop: %w", ctx.Err())
	}
	return m.driver.Close()
}

func (m *Manager) work(ctx context.Context) {
	defer m.wg.Done()
	for ctx.Err() == nil {
		raw, err := m.driver.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue: pop failed", "error", err)
			sleep(ctx, 500*time.Millisecond)
			continue
		}
		if raw == nil {
			continue
		}

		m.process(ctx, raw)
	}
}

func (m *Manager) process(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Error("queue: bad envelope", "error", err)
		return
	}

	m.mu.RLock()
	factory, ok := m.registry[env.Type]
	m.mu.RUnlock()

	if !ok {
		logger.Warn("queue: unregistered job type", "type", env.Type)
		return
	}

	job := factory()
	if err := json.Unmarshal(env.Payload, job); err != nil {
		logger.Error("queue: unmarshal payload", "type", env.Type, "error", err)
		return
	}

	m.runWithRetry(ctx, job, env)
}

func (m *Manager) runWithRetry(ctx context.Context, job Job, env envelope) {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= m.maxRetry; attempt++ {
		lastErr = m.safeHandle(ctx, job)
		if lastErr == nil {
			metrics.RecordQueueJob(env.Type, "ok", start)
			logger.Info("queue: job processed", "type", env.Type, "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			break
		}
		logger.Warn("queue: job failed", "type", env.Type, "attempt", attempt, "error", lastErr)
		if attempt < m.maxRetry && !sleep(ctx, m.backoff(attempt)) {
			break
		}
	}

	metrics.RecordQueueJob(env.Type, "failed", start)
	m.persistFailed(FailedJob{
		Type:     env.Type,
		Payload:  env.Payload,
		Error:    lastErr.Error(),
		Attempts: m.maxRetry,
		FailedAt: time.Now().UTC(),
	})
	logger.Error("queue: job exhausted retries", "type", env.Type, "error", lastErr)
}

func (m *Manager) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: job panicked: %v", r)
		}
	}()
	return job.Handle(ctx)
}

// FailedJobs returns a snapshot of the jobs that exhausted their retries.
func (m *Manager) FailedJobs() []FailedJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FailedJob, len(m.failed))
	copy(out, m.failed)
	return out
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
