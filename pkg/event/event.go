// Package event is an in-process publish/subscribe bus for domain events
// such as a finished broadcast or a new upload.
package event

import (
	"sync"

	"github.com/shashiranjanraj/filebot/pkg/logger"
)

// Event names fired by the bot.
const (
	UserRegistered    = "user.registered"
	FileUploaded      = "file.uploaded"
	FileDownloaded    = "file.downloaded"
	BroadcastQueued   = "broadcast.queued"
	BroadcastFinished = "broadcast.finished"
)

// Handler receives an event payload.
type Handler func(name string, payload any)

// Bus is safe for concurrent use. The zero value is not usable; call New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wildcard []Handler
	wg       sync.WaitGroup
}

func New() *Bus {
	return &Bus{handlers: map[string][]Handler{}}
}

// Listen registers a handler for name. The name "*" receives every event.
func (b *Bus) Listen(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "*" {
		b.wildcard = append(b.wildcard, h)
		return
	}
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *Bus) listeners(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := make([]Handler, 0, len(b.handlers[name])+len(b.wildcard))
	hs = append(hs, b.handlers[name]...)
	return append(hs, b.wildcard...)
}

// Fire dispatches synchronously. A panicking handler is logged and does
// not stop the others.
func (b *Bus) Fire(name string, payload any) {
	for _, h := range b.listeners(name) {
		call(h, name, payload)
	}
}

// FireAsync dispatches each handler on its own goroutine and returns
// immediately. Wait blocks until they finish.
func (b *Bus) FireAsync(name string, payload any) {
	for _, h := range b.listeners(name) {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			call(h, name, payload)
		}(h)
	}
}

// Wait blocks until every FireAsync handler has returned.
func (b *Bus) Wait() { b.wg.Wait() }

func call(h Handler, name string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event: listener panicked", "event", name, "panic", r)
		}
	}()
	h(name, payload)
}
