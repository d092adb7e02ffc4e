// Package storage mirrors uploaded documents onto a disk so downloads do
// not depend on the Telegram file API.
//
// Two drivers are available:
//   - "local": local filesystem (default)
//   - "s3": S3-compatible object storage (AWS S3, MinIO, R2, Spaces)
//
//	m := storage.NewManager("local")
//	m.Register("local", storage.NewLocalDisk("storage", baseURL))
//	disk, _ := m.Disk("")
//	disk.Put(ctx, "files/AgAD/report.pdf", r, "application/pdf")
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ErrNotFound is returned when a path does not exist on a disk.
var ErrNotFound = errors.New("storage: not found")

// Disk is the filesystem driver interface.
type Disk interface {
	// Put writes r to path, replacing any existing object.
	Put(ctx context.Context, path string, r io.Reader, contentType string) error

	// Open returns the object at path. The caller must close it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes path. Missing paths are not an error.
	Delete(ctx context.Context, path string) error

	// URL returns the public URL for path.
	URL(path string) string
}

// Manager holds the configured disks.
type Manager struct {
	mu          sync.RWMutex
	disks       map[string]Disk
	defaultDisk string
}

func NewManager(defaultDisk string) *Manager {
	if defaultDisk == "" {
		defaultDisk = "local"
	}
	return &Manager{disks: map[string]Disk{}, defaultDisk: defaultDisk}
}

// Register adds or replaces a named disk.
func (m *Manager) Register(name string, d Disk) {
	m.mu.Lock()
	m.disks[name] = d
	m.mu.Unlock()
}

// Disk returns the named disk, or the default disk when name is empty.
func (m *Manager) Disk(name string) (Disk, error) {
	if name == "" {
		name = m.defaultDisk
	}
	m.mu.RLock()
	d, ok := m.disks[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: disk %q is not configured", name)
	}
	return d, nil
}

// Names lists the registered disks.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.disks))
	for name := range m.disks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
