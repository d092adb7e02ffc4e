package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shashiranjanraj/filebot/app/models"
	"github.com/shashiranjanraj/filebot/app/repositories"
	"github.com/shashiranjanraj/filebot/pkg/cache"
	"github.com/shashiranjanraj/filebot/pkg/event"
	"github.com/shashiranjanraj/filebot/pkg/queue"
	"github.com/shashiranjanraj/filebot/pkg/storage"
	"github.com/shashiranjanraj/filebot/pkg/telegram"
	"github.com/shashiranjanraj/filebot/pkg/telegram/telegramtest"
)

type memUsers struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func (m *memUsers) Upsert(_ context.Context, u models.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.UserID]; ok {
		existing.Username, existing.FirstName, existing.LastSeen, existing.Blocked = u.Username, u.FirstName, u.LastSeen, false
		return false, nil
	}
	u.FirstSeen = u.LastSeen
	m.users[u.UserID] = &u
	return true, nil
}

func (m *memUsers) MarkBlocked(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Blocked = true
	}
	return nil
}

func (m *memUsers) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *memUsers) CountBlocked(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.Blocked {
			n++
		}
	}
	return n, nil
}

func (m *memUsers) EachActive(ctx context.Context, fn func(int64) error) error {
	m.mu.Lock()
	var ids []int64
	for id, u := range m.users {
		if !u.Blocked {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (m *memUsers) blocked(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return ok && u.Blocked
}

type memFiles struct {
	mu    sync.Mutex
	files []*models.File
}

func (m *memFiles) Create(_ context.Context, f *models.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.files {
		if x.FileUniqueID == f.FileUniqueID {
			return repositories.ErrDuplicate
		}
	}
	cp := *f
	m.files = append(m.files, &cp)
	return nil
}

func (m *memFiles) find(id string) *models.File {
	for _, f := range m.files {
		if f.FileUniqueID == id {
			return f
		}
	}
	for _, f := range m.files {
		if f.FileID == id {
			return f
		}
	}
	return nil
}

func (m *memFiles) Find(_ context.Context, id string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f := m.find(id); f != nil {
		cp := *f
		return &cp, nil
	}
	return nil, repositories.ErrNotFound
}

func (m *memFiles) IncrementDownloads(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f := m.find(id); f != nil {
		f.Downloads++
		return nil
	}
	return repositories.ErrNotFound
}

func (m *memFiles) SetMirrorPath(_ context.Context, id, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f := m.find(id); f != nil {
		f.MirrorPath = p
		return nil
	}
	return repositories.ErrNotFound
}

func (m *memFiles) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.files)), nil
}

func (m *memFiles) List(_ context.Context, page, limit int) ([]models.File, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.File
	for i := len(m.files) - 1; i >= 0; i-- {
		out = append(out, *m.files[i])
	}
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], int64(len(m.files)), nil
}

type memBroadcasts struct {
	mu   sync.Mutex
	recs map[string]*models.Broadcast
}

func (m *memBroadcasts) Create(_ context.Context, b *models.Broadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.recs[b.ID] = &cp
	return nil
}

func (m *memBroadcasts) Find(_ context.Context, id string) (*models.Broadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.recs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBroadcasts) MarkRunning(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.recs[id]
	if !ok || b.State != models.BroadcastQueued {
		return false, nil
	}
	b.State, b.StartedAt = models.BroadcastRunning, &at
	return true, nil
}

func (m *memBroadcasts) Finish(_ context.Context, id string, state models.BroadcastState, res models.BroadcastResult, errMsg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.recs[id]
	if !ok {
		return repositories.ErrNotFound
	}
	b.State, b.Total, b.Sent, b.Failed, b.Blocked, b.Error, b.FinishedAt = state, res.Total, res.Sent, res.Failed, res.Blocked, errMsg, &at
	return nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job queue.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) dispatched() []queue.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]queue.Job(nil), d.jobs...)
}

const (
	adminID = int64(1)
	userID  = int64(100)
)

type env struct {
	fake       *telegramtest.Fake
	users      *memUsers
	files      *memFiles
	broadcasts *memBroadcasts
	jobs       *recordingDispatcher
	events     *event.Bus
	fired      *firedEvents

	fileSvc      *FileService
	broadcastSvc *BroadcastService
	subs         *SubscriptionService
	bot          *BotService
}

type firedEvents struct {
	mu    sync.Mutex
	names []string
}

func (f *firedEvents) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

type envOptions struct {
	channels []string
	disk     storage.Disk
	mirror   bool
	dump     string
}

func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()
	e := &env{
		fake:       telegramtest.New(),
		users:      &memUsers{users: map[int64]*models.User{}},
		files:      &memFiles{},
		broadcasts: &memBroadcasts{recs: map[string]*models.Broadcast{}},
		jobs:       &recordingDispatcher{},
		events:     event.New(),
		fired:      &firedEvents{},
	}
	e.events.Listen("*", func(name string, _ any) {
		e.fired.mu.Lock()
		e.fired.names = append(e.fired.names, name)
		e.fired.mu.Unlock()
	})

	tg := telegram.NewWithClient(e.fake, "files_bot", nil)
	c := cache.New(nil, "")

	e.fileSvc = NewFileService(e.files, tg, opts.disk, e.jobs, e.events, FileOptions{
		DumpChannel: opts.dump,
		PublicURL:   "https://files.example/",
		Mirror:      opts.mirror,
	})
	e.broadcastSvc = NewBroadcastService(e.users, e.broadcasts, tg, e.jobs, e.events, 1000, 4)
	e.subs = NewSubscriptionService(tg, c, opts.channels, time.Minute)
	stats := NewStatsService(e.users, e.files)
	e.bot = NewBotService(tg, e.users, e.fileSvc, e.broadcastSvc, stats, e.subs, NewAdmins([]int64{adminID}), c, e.events)
	return e
}

var nextUpdateID = 0

// command builds an update carrying a bot command from user.
func command(from int64, text string) tgbotapi.Update {
	nextUpdateID++
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{
		UpdateID: nextUpdateID,
		Message: &tgbotapi.Message{
			MessageID: nextUpdateID,
			From:      &tgbotapi.User{ID: from, FirstName: "Ann", UserName: "ann"},
			Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
		},
	}
}

func document(from int64, doc tgbotapi.Document) tgbotapi.Update {
	nextUpdateID++
	return tgbotapi.Update{
		UpdateID: nextUpdateID,
		Message: &tgbotapi.Message{
			MessageID: nextUpdateID,
			From:      &tgbotapi.User{ID: from, FirstName: "Admin"},
			Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
			Document:  &doc,
		},
	}
}
