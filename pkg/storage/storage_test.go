package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDiskRoundTrip(t *testing.T) {
	root := t.TempDir()
	d := NewLocalDisk(root, "http://files.test/storage/")
	ctx := context.Background()

	ok, err := d.Exists(ctx, "files/a/report.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Put(ctx, "files/a/report.pdf", strings.NewReader("pdf-bytes"), "application/pdf"))

	ok, err = d.Exists(ctx, "files/a/report.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := d.Open(ctx, "files/a/report.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "pdf-bytes", string(data))

	assert.Equal(t, "http://files.test/storage/files/a/report.pdf", d.URL("/files/a/report.pdf"))

	require.NoError(t, d.Delete(ctx, "files/a/report.pdf"))
	require.NoError(t, d.Delete(ctx, "files/a/report.pdf"))

	_, err = d.Open(ctx, "files/a/report.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalDiskStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	d := NewLocalDisk(filepath.Join(root, "disk"), "")

	require.NoError(t, d.Put(context.Background(), "../../escape.txt", strings.NewReader("x"), ""))

	_, err := os.Stat(filepath.Join(root, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "disk", "escape.txt"))
	assert.NoError(t, err)
}

func TestLocalDiskPutHonoursContext(t *testing.T) {
	d := NewLocalDisk(t.TempDir(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Put(ctx, "x", strings.NewReader("data"), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager(t *testing.T) {
	m := NewManager("")
	local := NewLocalDisk(t.TempDir(), "")
	m.Register("local", local)

	d, err := m.Disk("")
	require.NoError(t, err)
	assert.Same(t, local, d)

	_, err = m.Disk("s3")
	assert.Error(t, err)
	assert.Equal(t, []string{"local"}, m.Names())
}

// fakeS3 is a path-style object store that understands just enough of
// the S3 REST API for the driver.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		f.types[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3DiskAgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	d, err := NewS3Disk(ctx, S3Config{
		Bucket:   "bucket",
		Region:   "us-east-1",
		Key:      "key",
		Secret:   "secret",
		Endpoint: srv.URL,
		URL:      "https://cdn.test/",
	})
	require.NoError(t, err)

	require.NoError(t, d.Put(ctx, "files/a/doc.txt", strings.NewReader("hello"), "text/plain"))
	assert.Equal(t, []byte("hello"), fake.objects["/bucket/files/a/doc.txt"])
	assert.Equal(t, "text/plain", fake.types["/bucket/files/a/doc.txt"])

	ok, err := d.Exists(ctx, "files/a/doc.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := d.Open(ctx, "files/a/doc.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	ok, err = d.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.Delete(ctx, "files/a/doc.txt"))
	assert.Empty(t, fake.objects)

	assert.Equal(t, "https://cdn.test/files/a/doc.txt", d.URL("files/a/doc.txt"))
}

func TestS3DiskRequiresBucket(t *testing.T) {
	_, err := NewS3Disk(context.Background(), S3Config{})
	assert.Error(t, err)
}
