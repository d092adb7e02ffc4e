package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// fresh restores defaults and marks Load as done so accessors do not
// re-read the working directory over what the test loaded.
func fresh(t *testing.T) {
	t.Helper()
	Reset()
	loadOnce.Do(func() {})
	t.Cleanup(Reset)
}

func TestDefaults(t *testing.T) {
	fresh(t)
	require.NoError(t, loadFromFiles("missing.json", "missing.env"))

	assert.Equal(t, "0.0.0.0:8000", Addr())
	assert.Equal(t, "telegram_bot_db", MongoDatabase())
	assert.Equal(t, 25, BroadcastRate())
	assert.Equal(t, 5*time.Minute, SubscriptionCacheTTL())
	assert.False(t, StorageMirror())
}

func TestSourcesLayer(t *testing.T) {
	fresh(t)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config", "app.json")
	envPath := filepath.Join(dir, ".env")

	writeFile(t, jsonPath, `{"app_port": 9000, "public_url": "https://json.example/", "storage_mirror": true}`)
	writeFile(t, envPath, "PUBLIC_URL=https://dotenv.example\nADMIN_IDS=1, 2,x,3\n")
	t.Setenv("FORCE_CHANNELS", "@news, -1001 ,")

	require.NoError(t, loadFromFiles(jsonPath, envPath))

	assert.Equal(t, "0.0.0.0:9000", Addr())
	assert.Equal(t, "https://dotenv.example", PublicURL())
	assert.True(t, StorageMirror())
	assert.Equal(t, []int64{1, 2, 3}, AdminIDs())
	assert.Equal(t, []string{"@news", "-1001"}, ForceChannels())
}

func TestSetIsNotOverriddenByLoad(t *testing.T) {
	fresh(t)
	Set("mongo_database", "pinned")
	t.Setenv("MONGO_DATABASE", "from-env")

	require.NoError(t, loadFromFiles("missing.json", "missing.env"))
	assert.Equal(t, "pinned", MongoDatabase())
}

func TestMalformedJSON(t *testing.T) {
	fresh(t)
	path := filepath.Join(t.TempDir(), "app.json")
	writeFile(t, path, "{")

	assert.Error(t, loadFromFiles(path, "missing.env"))
}

func TestTypedHelpers(t *testing.T) {
	fresh(t)
	Set("QUEUE_WORKERS", "-4")
	Set("SHUTDOWN_TIMEOUT", "30")
	Set("SUBSCRIPTION_CACHE_TTL", "90s")
	Set("STORAGE_MIRROR", "maybe")

	assert.Equal(t, 2, QueueWorkers(), "non-positive falls back")
	assert.Equal(t, 30*time.Second, ShutdownTimeout())
	assert.Equal(t, 90*time.Second, SubscriptionCacheTTL())
	assert.False(t, StorageMirror())
}
