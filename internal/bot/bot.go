// Package bot assembles the filebot Application handle from its
// components. WebApp is the name the serving layer looks the handle up by.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shashiranjanraj/filebot/app/controllers"
	"github.com/shashiranjanraj/filebot/app/repositories"
	"github.com/shashiranjanraj/filebot/app/routes"
	"github.com/shashiranjanraj/filebot/app/services"
	"github.com/shashiranjanraj/filebot/config"
	"github.com/shashiranjanraj/filebot/pkg/app"
	"github.com/shashiranjanraj/filebot/pkg/bind"
	"github.com/shashiranjanraj/filebot/pkg/cache"
	"github.com/shashiranjanraj/filebot/pkg/database"
	"github.com/shashiranjanraj/filebot/pkg/event"
	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/middleware"
	"github.com/shashiranjanraj/filebot/pkg/queue"
	"github.com/shashiranjanraj/filebot/pkg/router"
	"github.com/shashiranjanraj/filebot/pkg/schedule"
	"github.com/shashiranjanraj/filebot/pkg/storage"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
	"github.com/shashiranjanraj/filebot/pkg/ws"
)

const (
	failedJobsCollection = "failed_jobs"
	cachePrefix          = "filebot:"
	apiRate              = 20
	apiBurst             = 40
)

var (
	instanceOnce sync.Once
	instance     *Bot
)

// Instance returns the process-wide Bot, building it on first use.
func Instance() *Bot {
	instanceOnce.Do(func() { instance = New() })
	return instance
}

// WebApp returns the process-wide Application handle.
func WebApp() *app.Application {
	return Instance().App()
}

// Bot owns every long-lived resource of the process. Fields other than
// app, events and hub are filled in by startup hooks.
type Bot struct {
	app    *app.Application
	events *event.Bus
	hub    *ws.Hub

	mongo   *database.Mongo
	rdb     *redis.Client
	cache   *cache.Cache
	tg      *telegram.Bot
	disk    storage.Disk
	queue   *queue.Manager
	sched   *schedule.Scheduler
	limiter *middleware.RateLimiter

	restoreLogger func()
	stopHub       context.CancelFunc
	hubDone       chan struct{}

	users      *repositories.UserRepository
	files      *repositories.FileRepository
	broadcasts *repositories.BroadcastRepository

	admins       services.Admins
	stats        *services.StatsService
	fileSvc      *services.FileService
	broadcastSvc *services.BroadcastService
	updates      *services.BotService
}

// New builds an unstarted Bot. Nothing is dialled until Startup.
func New() *Bot {
	b := &Bot{
		app:    app.New("filebot"),
		events: event.New(),
		hub:    ws.NewHub(nil),
	}

	b.app.
		OnStartup("config", b.loadConfig).
		Component("mongo", b.connectMongo, b.closeMongo).
		Component("mongo-logs", b.enableMongoLogs, b.disableMongoLogs).
		OnStartup("indexes", b.ensureIndexes).
		Component("cache", b.connectCache, b.closeCache).
		OnStartup("telegram", b.connectTelegram).
		OnStartup("storage", b.openStorage).
		OnStartup("services", b.buildServices).
		Component("queue", b.startQueue, b.stopQueue).
		Component("events", b.startEvents, b.stopEvents).
		Component("scheduler", b.startScheduler, b.stopScheduler).
		Component("rate-limiter", b.startLimiter, b.stopLimiter).
		Routes(b.routes)

	return b
}

func (b *Bot) App() *app.Application { return b.app }

// Telegram is available once Startup has run.
func (b *Bot) Telegram() *telegram.Bot { return b.tg }

// Updates processes incoming Telegram updates. Available after Startup.
func (b *Bot) Updates() *services.BotService { return b.updates }

// EnablePolling adds a component that pulls updates with getUpdates.
// It must be called before Startup.
func (b *Bot) EnablePolling(timeout, workers int) {
	p := &poller{
		tg:      b.Telegram,
		handler: func() controllers.UpdateHandler { return b.updates },
		timeout: timeout,
		workers: workers,
	}
	b.app.Component("poller", p.start, p.stop)
}

func (b *Bot) loadConfig(context.Context) error {
	if err := config.Load(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if config.TelegramToken() == "" {
		return errors.New("config: TELEGRAM_TOKEN is required")
	}
	bind.MaxBodyBytes = int64(config.Int("MAX_BODY_BYTES", 1<<20))
	b.admins = services.NewAdmins(config.AdminIDs())
	if len(b.admins) == 0 {
		logger.Warn("config: ADMIN_IDS is empty, nobody can upload or broadcast")
	}
	return nil
}

func (b *Bot) connectMongo(ctx context.Context) error {
	m, err := database.Connect(ctx, config.MongoURI(), config.MongoDatabase())
	if err != nil {
		return err
	}
	b.mongo = m
	b.users = repositories.NewUserRepository(m.DB)
	b.files = repositories.NewFileRepository(m.DB)
	b.broadcasts = repositories.NewBroadcastRepository(m.DB)
	return nil
}

func (b *Bot) closeMongo(ctx context.Context) error {
	return b.mongo.Close(ctx)
}

func (b *Bot) enableMongoLogs(context.Context) error {
	if config.LogToMongo() {
		b.restoreLogger = logger.EnableMongo(b.mongo.Collection(repositories.LogsCollection))
	}
	return nil
}

func (b *Bot) disableMongoLogs(context.Context) error {
	if b.restoreLogger != nil {
		b.restoreLogger()
	}
	return nil
}

func (b *Bot) ensureIndexes(ctx context.Context) error {
	if err := b.users.EnsureIndexes(ctx); err != nil {
		return err
	}
	return b.files.EnsureIndexes(ctx)
}

func (b *Bot) connectCache(ctx context.Context) error {
	if addr := config.RedisAddr(); addr != "" {
		rdb, err := cache.Connect(ctx, addr, config.RedisPassword())
		if err != nil {
			return err
		}
		b.rdb = rdb
	} else {
		logger.Info("cache: REDIS_ADDR not set, using process memory")
	}
	b.cache = cache.New(b.rdb, cachePrefix)
	return nil
}

func (b *Bot) closeCache(context.Context) error {
	return b.cache.Close()
}

func (b *Bot) connectTelegram(context.Context) error {
	tg, err := telegram.New(config.TelegramToken(), config.TelegramAPIEndpoint())
	if err != nil {
		return err
	}
	b.tg = tg
	logger.Info("telegram: authorized", "bot", tg.Username())
	return nil
}

func (b *Bot) openStorage(ctx context.Context) error {
	m := storage.NewManager(config.StorageDefault())
	m.Register("local", storage.NewLocalDisk(config.StorageLocalRoot(), config.StorageURL()))

	if bucket := config.StorageS3Bucket(); bucket != "" {
		s3, err := storage.NewS3Disk(ctx, storage.S3Config{
			Bucket:   bucket,
			Region:   config.StorageS3Region(),
			Key:      config.StorageS3Key(),
			Secret:   config.StorageS3Secret(),
			Endpoint: config.StorageS3Endpoint(),
			URL:      config.StorageS3URL(),
		})
		if err != nil {
			return err
		}
		m.Register("s3", s3)
	}

	disk, err := m.Disk("")
	if err != nil {
		return err
	}
	b.disk = disk
	return nil
}

func (b *Bot) buildServices(context.Context) error {
	var driver queue.Driver = queue.NewMemoryDriver(1000)
	if b.rdb != nil {
		driver = queue.NewRedisDriver(b.rdb, queue.DefaultRedisKey)
	}
	b.queue = queue.New(driver,
		queue.WithMaxRetry(3),
		queue.WithBackoff(func(attempt int) time.Duration { return time.Duration(attempt) * 5 * time.Second }),
		queue.WithFailedStore(queue.NewMongoFailedStore(b.mongo.Collection(failedJobsCollection))),
	)

	b.stats = services.NewStatsService(b.users, b.files)
	b.fileSvc = services.NewFileService(b.files, b.tg, b.disk, b.queue, b.events, services.FileOptions{
		DumpChannel: config.DumpChannel(),
		PublicURL:   config.PublicURL(),
		Mirror:      config.StorageMirror(),
	})
	b.broadcastSvc = services.NewBroadcastService(b.users, b.broadcasts, b.tg, b.queue, b.events,
		config.BroadcastRate(), config.BroadcastWorkers())
	subs := services.NewSubscriptionService(b.tg, b.cache, config.ForceChannels(), config.SubscriptionCacheTTL())
	b.updates = services.NewBotService(b.tg, b.users, b.fileSvc, b.broadcastSvc, b.stats, subs, b.admins, b.cache, b.events)

	services.RegisterJobs(b.queue, b.broadcastSvc, b.fileSvc)
	return nil
}

func (b *Bot) startQueue(context.Context) error {
	b.queue.Start(config.QueueWorkers())
	return nil
}

func (b *Bot) stopQueue(ctx context.Context) error {
	return b.queue.Stop(ctx)
}

// startEvents forwards every domain event to websocket subscribers.
func (b *Bot) startEvents(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	b.stopHub = cancel
	b.hubDone = make(chan struct{})
	go func() {
		defer close(b.hubDone)
		b.hub.Run(ctx)
	}()

	b.events.Listen("*", func(name string, payload any) {
		msg, err := json.Marshal(map[string]any{"event": name, "data": payload, "at": time.Now().UTC()})
		if err != nil {
			logger.Warn("events: encode", "event", name, "error", err)
			return
		}
		b.hub.Publish(msg)
	})
	return nil
}

func (b *Bot) stopEvents(ctx context.Context) error {
	b.stopHub()
	select {
	case <-b.hubDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bot) startScheduler(ctx context.Context) error {
	b.sched = schedule.New()
	if err := b.sched.Add("refresh-gauges", schedule.Every(time.Minute), b.stats.RefreshGauges); err != nil {
		return err
	}
	b.stats.RefreshGauges(ctx)
	return b.sched.Start(ctx)
}

func (b *Bot) stopScheduler(ctx context.Context) error {
	return b.sched.Stop(ctx)
}

func (b *Bot) startLimiter(context.Context) error {
	rl := middleware.NewRateLimiter(apiRate, apiBurst)
	if err := rl.TrustProxies(config.TrustedProxies()...); err != nil {
		rl.Stop()
		return err
	}
	b.limiter = rl
	return nil
}

func (b *Bot) stopLimiter(context.Context) error {
	b.limiter.Stop()
	return nil
}

// routes runs after every component started; during route:list nothing
// has, and the controllers are built around nil services that are never
// called.
func (b *Bot) routes(r *router.Router) {
	checks := map[string]controllers.Check{}
	if b.mongo != nil {
		checks["mongo"] = b.mongo.Ping
	}
	if b.cache != nil {
		checks["cache"] = b.cache.Ping
	}

	routes.RegisterAPI(r, routes.Handlers{
		Webhook: controllers.NewWebhookController(b.updates),
		Files:   controllers.NewFileController(b.fileSvc),
		Admin:   controllers.NewAdminController(b.stats, b.fileSvc, b.broadcastSvc),
		Health:  controllers.NewHealthController(checks),
		Events:  b.hub,
	}, routes.Options{
		WebhookSecret: config.WebhookSecret(),
		IsAdmin:       b.admins.Contains,
		Limiter:       b.limiter,
	})
}
