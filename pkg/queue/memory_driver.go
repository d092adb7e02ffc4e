package queue

import "context"

// MemoryDriver is an in-process, channel-backed queue driver.
// Jobs are lost on restart.
type MemoryDriver struct {
	ch chan []byte
}

// NewMemoryDriver creates an in-memory queue holding up to size jobs.
func NewMemoryDriver(size int) *MemoryDriver {
	if size < 1 {
		size = 1000
	}
	return &MemoryDriver{ch: make(chan []byte, size)}
}

// Push blocks while the buffer is full.
func (d *MemoryDriver) Push(ctx context.Context, payload []byte) error {
	select {
	case d.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *MemoryDriver) Pop(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-d.ch:
		return payload, nil
	}
}

func (d *MemoryDriver) Close() error { return nil }
