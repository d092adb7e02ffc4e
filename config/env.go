package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName       = "filebot"
	defaultAppEnv        = "local"
	defaultAppHost       = "0.0.0.0"
	defaultAppPort       = "8000"
	defaultPublicURL     = "http://localhost:8000"
	defaultMongoURI      = "mongodb://localhost:27017"
	defaultMongoDatabase = "telegram_bot_db"
	defaultJWTSecret     = "change-me-in-production"
)

// keys lists every setting the process understands. Only these are
// picked up from the process environment.
var keys = []string{
	"APP_NAME", "APP_ENV", "APP_HOST", "APP_PORT", "PUBLIC_URL", "SHUTDOWN_TIMEOUT",
	"MONGO_URI", "MONGO_DATABASE", "LOG_MONGO",
	"REDIS_ADDR", "REDIS_PASSWORD",
	"TELEGRAM_TOKEN", "TELEGRAM_API_ENDPOINT", "WEBHOOK_SECRET",
	"ADMIN_IDS", "DUMP_CHANNEL", "FORCE_CHANNELS",
	"JWT_SECRET", "MAX_BODY_BYTES", "TRUSTED_PROXIES",
	"BROADCAST_RATE", "BROADCAST_WORKERS", "QUEUE_WORKERS", "SUBSCRIPTION_CACHE_TTL",
	"STORAGE_DISK", "STORAGE_MIRROR", "STORAGE_LOCAL_ROOT", "STORAGE_URL",
	"S3_BUCKET", "S3_REGION", "S3_KEY", "S3_SECRET", "S3_ENDPOINT", "S3_URL",
}

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
	pinned = map[string]bool{}
)

// Load reads config/app.json, then .env, then the process environment.
// Later sources win. Missing files are not an error.
func Load() error {
	loadOnce.Do(func() {
		loadErr = loadFromFiles("config/app.json", ".env")
	})
	return loadErr
}

// Set overrides a single key. Intended for tests and CLI flags.
func Set(key, value string) {
	mu.Lock()
	defer mu.Unlock()
	k := strings.ToUpper(key)
	values[k] = value
	pinned[k] = true
}

// Reset restores the built-in defaults and forgets any loaded files.
func Reset() {
	mu.Lock()
	values = defaultValues()
	pinned = map[string]bool{}
	mu.Unlock()
	loadOnce = sync.Once{}
	loadErr = nil
}

func defaultValues() map[string]string {
	return map[string]string{
		"APP_NAME":       defaultAppName,
		"APP_ENV":        defaultAppEnv,
		"APP_HOST":       defaultAppHost,
		"APP_PORT":       defaultAppPort,
		"PUBLIC_URL":     defaultPublicURL,
		"MONGO_URI":      defaultMongoURI,
		"MONGO_DATABASE": defaultMongoDatabase,
		"JWT_SECRET":     defaultJWTSecret,
	}
}

func AppName() string { _ = Load(); return get("APP_NAME", defaultAppName) }
func AppEnv() string  { _ = Load(); return get("APP_ENV", defaultAppEnv) }

// Addr is the host:port the HTTP server binds.
func Addr() string {
	_ = Load()
	return get("APP_HOST", defaultAppHost) + ":" + get("APP_PORT", defaultAppPort)
}

func PublicURL() string {
	_ = Load()
	return strings.TrimRight(get("PUBLIC_URL", defaultPublicURL), "/")
}

func ShutdownTimeout() time.Duration { return Duration("SHUTDOWN_TIMEOUT", 15*time.Second) }

// ── MongoDB ──────────────────────────────────────────────────────────────────

func MongoURI() string      { _ = Load(); return get("MONGO_URI", defaultMongoURI) }
func MongoDatabase() string { _ = Load(); return get("MONGO_DATABASE", defaultMongoDatabase) }
func LogToMongo() bool      { return Bool("LOG_MONGO", false) }

// ── Redis ────────────────────────────────────────────────────────────────────

// RedisAddr is empty when Redis is not configured.
func RedisAddr() string     { _ = Load(); return get("REDIS_ADDR", "") }
func RedisPassword() string { _ = Load(); return get("REDIS_PASSWORD", "") }

// ── Telegram ─────────────────────────────────────────────────────────────────

func TelegramToken() string       { _ = Load(); return get("TELEGRAM_TOKEN", "") }
func TelegramAPIEndpoint() string { _ = Load(); return get("TELEGRAM_API_ENDPOINT", "") }
func WebhookSecret() string       { _ = Load(); return get("WEBHOOK_SECRET", "") }
func DumpChannel() string         { _ = Load(); return get("DUMP_CHANNEL", "") }

// AdminIDs parses ADMIN_IDS. Entries that are not integers are skipped.
func AdminIDs() []int64 {
	var ids []int64
	for _, s := range List("ADMIN_IDS") {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func ForceChannels() []string { return List("FORCE_CHANNELS") }

func JWTSecret() string { _ = Load(); return get("JWT_SECRET", defaultJWTSecret) }

// TrustedProxies are the reverse proxies allowed to set X-Forwarded-For.
func TrustedProxies() []string { return List("TRUSTED_PROXIES") }

// ── Workers ──────────────────────────────────────────────────────────────────

func BroadcastRate() int                   { return Int("BROADCAST_RATE", 25) }
func BroadcastWorkers() int                { return Int("BROADCAST_WORKERS", 8) }
func QueueWorkers() int                    { return Int("QUEUE_WORKERS", 2) }
func SubscriptionCacheTTL() time.Duration { return Duration("SUBSCRIPTION_CACHE_TTL", 5*time.Minute) }

// ── Storage ──────────────────────────────────────────────────────────────────

func StorageDefault() string   { _ = Load(); return get("STORAGE_DISK", "local") }
func StorageMirror() bool      { return Bool("STORAGE_MIRROR", false) }
func StorageLocalRoot() string { _ = Load(); return get("STORAGE_LOCAL_ROOT", "storage") }
func StorageURL() string       { _ = Load(); return get("STORAGE_URL", PublicURL()+"/storage") }

func StorageS3Bucket() string   { _ = Load(); return get("S3_BUCKET", "") }
func StorageS3Region() string   { _ = Load(); return get("S3_REGION", "us-east-1") }
func StorageS3Key() string      { _ = Load(); return get("S3_KEY", "") }
func StorageS3Secret() string   { _ = Load(); return get("S3_SECRET", "") }
func StorageS3Endpoint() string { _ = Load(); return get("S3_ENDPOINT", "") }
func StorageS3URL() string      { _ = Load(); return get("S3_URL", "") }

// ── Typed helpers ────────────────────────────────────────────────────────────

// Get reads any config key by name with an optional fallback.
func Get(key, fallback string) string {
	_ = Load()
	return get(key, fallback)
}

// Int reads key as an integer; fallback is returned when the key is
// missing, malformed or not positive.
func Int(key string, fallback int) int {
	n, err := strconv.Atoi(Get(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Bool accepts the usual strconv.ParseBool spellings.
func Bool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(Get(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

// Duration accepts Go duration strings ("30s") or plain seconds ("30").
func Duration(key string, fallback time.Duration) time.Duration {
	raw := Get(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// List splits a comma-separated value, dropping blanks.
func List(key string) []string {
	raw := Get(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ── Loading ──────────────────────────────────────────────────────────────────

func loadFromFiles(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	if err := mergeDotEnv(envPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	mergeEnviron(loaded)

	mu.Lock()
	for k, v := range loaded {
		if pinned[k] {
			continue
		}
		values[k] = v
	}
	mu.Unlock()

	return nil
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		switch v := val.(type) {
		case string:
			out[k] = strings.TrimSpace(v)
		case float64, bool:
			out[k] = fmt.Sprint(v)
		}
	}

	return nil
}

func mergeDotEnv(path string, out map[string]string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for key, value := range env {
		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(value)
	}
	return nil
}

func mergeEnviron(out map[string]string) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			out[k] = strings.TrimSpace(v)
		}
	}
}

func get(key, fallback string) string {
	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}

	return fallback
}
