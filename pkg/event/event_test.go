package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFireReachesNamedAndWildcardListeners(t *testing.T) {
	b := New()
	var got []string

	b.Listen(FileUploaded, func(name string, payload any) { got = append(got, "named:"+payload.(string)) })
	b.Listen("*", func(name string, payload any) { got = append(got, "all:"+name) })
	b.Listen(UserRegistered, func(string, any) { t.Error("wrong event delivered") })

	b.Fire(FileUploaded, "a.pdf")

	assert.Equal(t, []string{"named:a.pdf", "all:file.uploaded"}, got)
}

func TestPanickingListenerDoesNotStopOthers(t *testing.T) {
	b := New()
	called := false

	b.Listen(UserRegistered, func(string, any) { panic("boom") })
	b.Listen(UserRegistered, func(string, any) { called = true })

	assert.NotPanics(t, func() { b.Fire(UserRegistered, nil) })
	assert.True(t, called)
}

func TestFireAsync(t *testing.T) {
	b := New()
	var mu sync.Mutex
	n := 0
	for i := 0; i < 5; i++ {
		b.Listen(BroadcastFinished, func(string, any) {
			mu.Lock()
			n++
			mu.Unlock()
		})
	}

	b.FireAsync(BroadcastFinished, nil)
	b.Wait()

	assert.Equal(t, 5, n)
}
