package logger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoQueueSize = 4096
	mongoBatchSize = 50
	mongoDrainTick = 2 * time.Second
)

// LogDocument is the shape written to the logs collection.
type LogDocument struct {
	Time      time.Time `bson:"time"`
	Level     string    `bson:"level"`
	Msg       string    `bson:"msg"`
	RequestID string    `bson:"request_id,omitempty"`
	UpdateID  int64     `bson:"update_id,omitempty"`
	Attrs     bson.M    `bson:"attrs,omitempty"`
}

// inserter is the part of *mongo.Collection the handler needs.
type inserter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// MongoHandler is an slog.Handler that stores records in MongoDB
// asynchronously. Records are queued on a buffered channel and written in
// batches by one goroutine; when the queue is full records are dropped so
// logging never blocks a request.
type MongoHandler struct {
	col    inserter
	level  slog.Leveler
	queue  chan LogDocument
	shared *mongoShared
	attrs  []slog.Attr
	group  string
}

type mongoShared struct {
	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

// NewMongoHandler starts a handler writing to col. The collection's client
// is owned by the caller; Close only flushes.
func NewMongoHandler(col *mongo.Collection, level slog.Leveler) *MongoHandler {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "time", Value: -1}},
	})
	return newMongoHandler(col, level)
}

func newMongoHandler(col inserter, level slog.Leveler) *MongoHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	h := &MongoHandler{
		col:   col,
		level: level,
		queue: make(chan LogDocument, mongoQueueSize),
		shared: &mongoShared{
			done:    make(chan struct{}),
			stopped: make(chan struct{}),
		},
	}
	go h.drainLoop()
	return h
}

func (h *MongoHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *MongoHandler) Handle(_ context.Context, r slog.Record) error {
	doc := LogDocument{
		Time:  r.Time,
		Level: r.Level.String(),
		Msg:   r.Message,
		Attrs: bson.M{},
	}

	add := func(a slog.Attr) {
		switch a.Key {
		case "request_id":
			doc.RequestID = a.Value.String()
		case "update_id":
			doc.UpdateID = a.Value.Int64()
		default:
			key := a.Key
			if h.group != "" {
				key = h.group + "." + key
			}
			doc.Attrs[key] = a.Value.Resolve().Any()
		}
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})
	if len(doc.Attrs) == 0 {
		doc.Attrs = nil
	}

	select {
	case h.queue <- doc:
	default:
	}
	return nil
}

func (h *MongoHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *MongoHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group += "." + name
	}
	return &clone
}

func (h *MongoHandler) drainLoop() {
	defer close(h.shared.stopped)

	ticker := time.NewTicker(mongoDrainTick)
	defer ticker.Stop()

	batch := make([]interface{}, 0, mongoBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = h.col.InsertMany(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case doc := <-h.queue:
			batch = append(batch, doc)
			if len(batch) >= mongoBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-h.shared.done:
			for len(h.queue) > 0 {
				batch = append(batch, <-h.queue)
				if len(batch) >= mongoBatchSize {
					flush()
				}
			}
			flush()
			return
		}
	}
}

// Close flushes queued records and stops the writer. Safe to call more
// than once.
func (h *MongoHandler) Close() {
	h.shared.once.Do(func() { close(h.shared.done) })
	<-h.shared.stopped
}

// ─── Multi-handler fan-out ─────────────────────────────────────────────────────

// MultiHandler fans out to multiple slog.Handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}

// EnableMongo fans the process logger out to col as well as its current
// handler. The returned func flushes the Mongo writer and restores the
// previous logger.
func EnableMongo(col *mongo.Collection) func() {
	base := Base()
	mh := NewMongoHandler(col, slog.LevelInfo)
	prev := SetHandler(NewMultiHandler(base.Handler(), mh))
	return func() {
		Restore(prev)
		mh.Close()
	}
}
